package index

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/mango/pkg/blobstore"
	"github.com/odvcencio/mango/pkg/object"
)

// ErrMalformedSnapshot reports a snapshot blob that cannot be decoded. It is
// never treated as an empty snapshot.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Snapshot format tags. The first byte of every snapshot blob names how the
// CBOR map that follows is compressed. These values are persisted;
// changing them breaks existing snapshot chains.
const (
	snapshotPlain byte = 0x00
	snapshotZstd  byte = 0x01
)

// maxSnapshotSize bounds decompression of a single snapshot.
const maxSnapshotSize = 1 << 30

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error
	snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("index: CBOR encoder initialization failed: " + err.Error())
	}
	snapshotDecMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs:     1 << 30,
		MaxNestedLevels: 4,
	}.DecMode()
	if err != nil {
		panic("index: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot serializes a full copy of an index mapping. An empty
// mapping still produces a valid, non-empty blob.
func EncodeSnapshot(entries map[object.Hash]blobstore.Locator) ([]byte, error) {
	m := make(map[string]string, len(entries))
	for id, loc := range entries {
		m[string(id)] = string(loc)
	}
	body, err := snapshotEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	defer enc.Close()

	out := make([]byte, 1, len(body)/2+16)
	out[0] = snapshotZstd
	return enc.EncodeAll(body, out), nil
}

// DecodeSnapshot parses a blob produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (map[object.Hash]blobstore.Locator, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrMalformedSnapshot)
	}

	var body []byte
	switch data[0] {
	case snapshotPlain:
		body = data[1:]
	case snapshotZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotSize))
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		defer dec.Close()
		body, err = dec.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrMalformedSnapshot, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format tag 0x%02x", ErrMalformedSnapshot, data[0])
	}

	var m map[string]string
	if err := snapshotDecMode.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a mapping", ErrMalformedSnapshot)
	}

	out := make(map[object.Hash]blobstore.Locator, len(m))
	for id, loc := range m {
		if id == "" || loc == "" {
			return nil, fmt.Errorf("%w: empty identifier or locator", ErrMalformedSnapshot)
		}
		out[object.Hash(id)] = blobstore.Locator(loc)
	}
	return out, nil
}
