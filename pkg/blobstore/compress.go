package blobstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// isZstdFrame checks for the zstd frame magic number.
func isZstdFrame(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// WithCompression returns a Store that zstd-compresses blobs on Put and
// transparently decompresses them on Get. Blobs written without
// compression are returned unchanged.
func WithCompression(next Store) Store {
	return &compressedStore{next: next}
}

type compressedStore struct {
	next Store
}

func (s *compressedStore) Put(ctx context.Context, data []byte) (Locator, error) {
	packed, err := compressZstd(data)
	if err != nil {
		return "", fmt.Errorf("compress blob: %w", err)
	}
	return s.next.Put(ctx, packed)
}

func (s *compressedStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	data, err := s.next.Get(ctx, loc)
	if err != nil {
		return nil, err
	}
	if !isZstdFrame(data) {
		return data, nil
	}
	out, err := decompressZstd(data)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %s: %w", loc, err)
	}
	return out, nil
}
