package object

import (
	"bytes"
	"io"
)

// Hash is a 40-character hex-encoded SHA-1 object identifier, identical to
// the identifier Git computes for the same object.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// Object is one immutable version-control object. Length is the declared
// payload length used in the identifier envelope and always equals
// len(Payload) for a well-formed object.
type Object struct {
	Type    ObjectType
	Length  int64
	Payload []byte
}

// New returns an Object whose declared length matches its payload.
func New(objType ObjectType, payload []byte) *Object {
	return &Object{Type: objType, Length: int64(len(payload)), Payload: payload}
}

// Hash returns the object's identifier. It is derived on every call and
// never cached on the object.
func (o *Object) Hash() Hash {
	return HashObject(o.Type, o.Length, o.Payload)
}

// Reader returns a reader over the payload.
func (o *Object) Reader() io.Reader {
	return bytes.NewReader(o.Payload)
}
