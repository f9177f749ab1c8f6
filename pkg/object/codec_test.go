package object

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRecordRoundTrip(t *testing.T) {
	orig := New(TypeBlob, []byte("hello"))
	data, err := EncodeRecord(orig)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.Type != TypeBlob || got.Length != 5 || !bytes.Equal(got.Payload, []byte("hello")) {
		t.Fatalf("round trip = {%s %d %q}", got.Type, got.Length, got.Payload)
	}
}

func TestRecordEmptyPayload(t *testing.T) {
	data, err := EncodeRecord(New(TypeBlob, nil))
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.Length != 0 || got.Payload == nil || len(got.Payload) != 0 {
		t.Fatalf("empty payload round trip = %d %#v", got.Length, got.Payload)
	}
}

func TestEncodeRecordDeterminism(t *testing.T) {
	o := New(TypeCommit, []byte("tree abc\n\nmsg\n"))
	d1, err := EncodeRecord(o)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := EncodeRecord(o)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("EncodeRecord not deterministic")
	}
}

func TestEncodeRecordRejectsInvalid(t *testing.T) {
	if _, err := EncodeRecord(&Object{Type: TypeBlob, Length: 3, Payload: []byte("hello")}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := EncodeRecord(&Object{Payload: []byte("x"), Length: 1}); err == nil {
		t.Fatal("expected error for empty type")
	}
	if _, err := EncodeRecord(nil); err == nil {
		t.Fatal("expected error for nil object")
	}
}

func TestDecodeRecordMalformed(t *testing.T) {
	valid, err := EncodeRecord(New(TypeBlob, []byte("hello world")))
	if err != nil {
		t.Fatal(err)
	}
	lying, err := recordEncMode.Marshal(record{Type: "blob", Length: "99", Payload: []byte("short")})
	if err != nil {
		t.Fatal(err)
	}
	badLength, err := recordEncMode.Marshal(record{Type: "blob", Length: "five", Payload: []byte("hello")})
	if err != nil {
		t.Fatal(err)
	}
	pair, err := recordEncMode.Marshal([]string{"blob", "5"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)-3]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0x00)},
		{name: "not an array", data: []byte{0x63, 'a', 'b', 'c'}},
		{name: "two elements", data: pair},
		{name: "length mismatch", data: lying},
		{name: "non-numeric length", data: badLength},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeRecord(tc.data); !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("DecodeRecord error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestRecordProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(x)) == x", prop.ForAll(
		func(objType string, payload []byte) bool {
			orig := New(ObjectType(objType), payload)
			data, err := EncodeRecord(orig)
			if err != nil {
				return false
			}
			got, err := DecodeRecord(data)
			if err != nil {
				return false
			}
			return got.Type == orig.Type && got.Length == orig.Length && bytes.Equal(got.Payload, orig.Payload)
		},
		gen.Identifier(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("hash is a pure function of its inputs", prop.ForAll(
		func(objType string, payload []byte) bool {
			a := HashObject(ObjectType(objType), int64(len(payload)), payload)
			b := HashObject(ObjectType(objType), int64(len(payload)), append([]byte(nil), payload...))
			return a == b && ValidateHash(a) == nil
		},
		gen.Identifier(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
