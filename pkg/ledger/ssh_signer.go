package ledger

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const journalSignaturePrefix = "sshsig-v1"

// SSHSigner signs journal entries with an SSH private key. Signatures have
// the form sshsig-v1:<format>:<base64 public key>:<base64 signature>.
type SSHSigner struct {
	signer ssh.Signer
	pubB64 string
	path   string
}

// NewSSHSigner loads the private key at keyPath. An empty keyPath picks the
// first of ~/.ssh/id_ed25519, id_ecdsa and id_rsa that exists.
func NewSSHSigner(keyPath string) (*SSHSigner, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	s := NewSSHSignerFrom(signer)
	s.path = resolvedPath
	return s, nil
}

// NewSSHSignerFrom wraps an already-loaded ssh.Signer.
func NewSSHSignerFrom(signer ssh.Signer) *SSHSigner {
	return &SSHSigner{
		signer: signer,
		pubB64: base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal()),
	}
}

// Path returns the key file the signer was loaded from, if any.
func (s *SSHSigner) Path() string { return s.path }

func (s *SSHSigner) Sign(payload []byte) (string, error) {
	sig, err := s.signer.Sign(rand.Reader, payload)
	if err != nil {
		return "", err
	}
	sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
	return fmt.Sprintf("%s:%s:%s:%s", journalSignaturePrefix, sig.Format, s.pubB64, sigB64), nil
}

// VerifySSHSignature checks a signature produced by SSHSigner against
// payload and returns the signing public key.
func VerifySSHSignature(payload []byte, signature string) (ssh.PublicKey, error) {
	parts := strings.Split(signature, ":")
	if len(parts) != 4 || parts[0] != journalSignaturePrefix {
		return nil, fmt.Errorf("unrecognized signature format")
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if err := pub.Verify(payload, &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return nil, err
	}
	return pub, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		candidate := filepath.Join(home, ".ssh", name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
