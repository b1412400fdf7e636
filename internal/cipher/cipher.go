package cipher

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of a field key.
const KeySize = chacha20poly1305.KeySize

// ErrMalformed is returned when a ciphertext is not valid hex or is too short.
var ErrMalformed = errors.New("cipher: malformed ciphertext")

// ErrAuth is returned when a ciphertext fails authentication.
var ErrAuth = errors.New("cipher: message authentication failed")

// FieldCipher encrypts and decrypts single string fields.
//
// Both operations may block and may fail; implementations must honor
// context cancellation.
type FieldCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// XChaCha is a FieldCipher backed by XChaCha20-Poly1305.
// It is safe for concurrent use.
type XChaCha struct {
	aead cipher.AEAD
	rand io.Reader
}

// Option configures an XChaCha cipher.
type Option func(*XChaCha)

// WithRand sets the nonce source. Defaults to crypto/rand.
func WithRand(r io.Reader) Option {
	return func(c *XChaCha) {
		c.rand = r
	}
}

// New returns a field cipher for the 32-byte key.
func New(key []byte, opts ...Option) (*XChaCha, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	c := &XChaCha{aead: aead, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromHex is New for a hex-encoded key.
func NewFromHex(keyHex string, opts ...Option) (*XChaCha, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("cipher: decode key: %w", err)
	}
	return New(key, opts...)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *XChaCha) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	nonceSize := c.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return "", fmt.Errorf("cipher: read nonce: %w", err)
	}
	out = c.aead.Seal(out, out[:nonceSize], []byte(plaintext), nil)
	return hex.EncodeToString(out), nil
}

// Decrypt opens a field produced by Encrypt.
func (c *XChaCha) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	plain, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrAuth
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not utf-8", ErrMalformed)
	}
	return string(plain), nil
}

// GenerateKey returns a fresh random field key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cipher: generate key: %w", err)
	}
	return key, nil
}
