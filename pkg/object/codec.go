package object

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrMalformedRecord reports a stored record that is truncated or does
	// not decode to a (type, length, payload) triple.
	ErrMalformedRecord = errors.New("malformed object record")
	// ErrLengthMismatch reports an object whose declared length differs
	// from the number of payload bytes.
	ErrLengthMismatch = errors.New("object length mismatch")
)

// record is the stored form of an Object: a CBOR array of
// [type, decimal length, payload]. The array is self-describing, so one
// blob decodes on its own.
type record struct {
	_       struct{} `cbor:",toarray"`
	Type    string
	Length  string
	Payload []byte
}

var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error
	recordEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("object: CBOR encoder initialization failed: " + err.Error())
	}
	recordDecMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
	}.DecMode()
	if err != nil {
		panic("object: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeRecord serializes o for storage in the blob store.
func EncodeRecord(o *Object) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("encode record: nil object")
	}
	if o.Type == "" {
		return nil, fmt.Errorf("encode record: object type is required")
	}
	if o.Length != int64(len(o.Payload)) {
		return nil, fmt.Errorf("encode record: %w (declared %d, payload %d)", ErrLengthMismatch, o.Length, len(o.Payload))
	}
	payload := o.Payload
	if payload == nil {
		payload = []byte{}
	}
	data, err := recordEncMode.Marshal(record{
		Type:    string(o.Type),
		Length:  strconv.FormatInt(o.Length, 10),
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a record produced by EncodeRecord. Any structural
// problem is reported as ErrMalformedRecord.
func DecodeRecord(data []byte) (*Object, error) {
	var rec record
	if err := recordDecMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.Type == "" {
		return nil, fmt.Errorf("%w: empty object type", ErrMalformedRecord)
	}
	length, err := strconv.ParseInt(rec.Length, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: invalid length %q", ErrMalformedRecord, rec.Length)
	}
	if length != int64(len(rec.Payload)) {
		return nil, fmt.Errorf("%w: length %d does not match payload size %d", ErrMalformedRecord, length, len(rec.Payload))
	}
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}
	return &Object{Type: ObjectType(rec.Type), Length: length, Payload: payload}, nil
}
