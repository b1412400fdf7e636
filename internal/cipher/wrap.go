package cipher

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// KDFParams are the argon2id parameters used to derive a key-encryption key.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDF matches the parameters used by existing wrapped keys.
var DefaultKDF = KDFParams{Time: 3, Memory: 128 * 1024, Threads: 4}

func (p KDFParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}

// WrapKey seals a field key under password with DefaultKDF.
func WrapKey(key []byte, password string) (string, error) {
	return DefaultKDF.Wrap(key, password)
}

// UnwrapKey recovers a field key sealed by WrapKey.
func UnwrapKey(wrapped, password string) ([]byte, error) {
	return DefaultKDF.Unwrap(wrapped, password)
}

// Wrap seals key under a key derived from password.
// The result is hex(salt || nonce || ciphertext).
func (p KDFParams) Wrap(key []byte, password string) (string, error) {
	salt := make([]byte, saltSize, saltSize+chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cipher: read salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: read nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(p.derive(password, salt))
	if err != nil {
		return "", fmt.Errorf("cipher: %w", err)
	}

	out := append(salt, nonce...)
	out = aead.Seal(out, nonce, key, nil)
	return hex.EncodeToString(out), nil
}

// Unwrap opens a wrapped key.
func (p KDFParams) Unwrap(wrapped, password string) ([]byte, error) {
	data, err := hex.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes", ErrMalformed, len(data))
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	aead, err := chacha20poly1305.NewX(p.derive(password, salt))
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}

	key, err := aead.Open(nil, nonce, data[saltSize+chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrAuth
	}
	return key, nil
}
