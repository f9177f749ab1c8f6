package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashSize is the length of a hex-encoded object identifier.
const HashSize = 2 * sha1.Size

// HashObject computes the SHA-1 of the envelope "type len\0content". The
// framing and digest match Git so identifiers agree with ones computed
// upstream.
func HashObject(objType ObjectType, length int64, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, length)
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ValidateHash checks that a hash is a valid 40-character lowercase hex string.
func ValidateHash(h Hash) error {
	s := strings.TrimSpace(string(h))
	if s == "" {
		return fmt.Errorf("hash is empty")
	}
	if len(s) != HashSize {
		return fmt.Errorf("hash length %d, expected %d", len(s), HashSize)
	}
	if strings.ToLower(s) != s {
		return fmt.Errorf("hash %q is not lowercase", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("hash contains non-hex characters: %w", err)
	}
	return nil
}
