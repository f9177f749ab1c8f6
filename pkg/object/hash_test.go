package object

import (
	"strings"
	"testing"
)

func TestHashObjectMatchesGit(t *testing.T) {
	tests := []struct {
		name    string
		objType ObjectType
		payload string
		want    Hash
	}{
		{name: "hello blob", objType: TypeBlob, payload: "hello", want: "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0"},
		{name: "empty blob", objType: TypeBlob, payload: "", want: "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HashObject(tc.objType, int64(len(tc.payload)), []byte(tc.payload))
			if got != tc.want {
				t.Fatalf("HashObject = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	h1 := HashObject(TypeBlob, 5, data)
	h2 := HashObject(TypeBlob, 5, data)
	if h1 != h2 {
		t.Error("HashObject not deterministic")
	}
	if len(h1) != HashSize {
		t.Errorf("Hash length: got %d, want %d", len(h1), HashSize)
	}

	// Different type => different hash
	if h3 := HashObject(TypeCommit, 5, data); h1 == h3 {
		t.Error("Different types should produce different hashes")
	}
	// The declared length is part of the framing.
	if h4 := HashObject(TypeBlob, 6, data); h1 == h4 {
		t.Error("Different declared lengths should produce different hashes")
	}
}

func TestObjectHashIsDerived(t *testing.T) {
	o := New(TypeBlob, []byte("hello"))
	if o.Length != 5 {
		t.Fatalf("Length = %d, want 5", o.Length)
	}
	if got := o.Hash(); got != "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0" {
		t.Fatalf("Hash = %s", got)
	}
	o.Payload = []byte("world")
	if got := o.Hash(); got == "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0" {
		t.Fatal("Hash should follow payload changes")
	}
}

func TestValidateHash(t *testing.T) {
	tests := []struct {
		in      Hash
		wantErr string
	}{
		{in: "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0"},
		{in: "", wantErr: "empty"},
		{in: "abc123", wantErr: "length"},
		{in: "B6FC4C620B67D95F953A5C1C1230AAAB5DB5A1B0", wantErr: "lowercase"},
		{in: "z6fc4c620b67d95f953a5c1c1230aaab5db5a1b0", wantErr: "non-hex"},
	}
	for _, tc := range tests {
		err := ValidateHash(tc.in)
		if tc.wantErr == "" {
			if err != nil {
				t.Errorf("ValidateHash(%q): %v", tc.in, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("ValidateHash(%q) = %v, want error containing %q", tc.in, err, tc.wantErr)
		}
	}
}
