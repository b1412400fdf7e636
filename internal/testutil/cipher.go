package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInjected is returned by FaultyCipher for inputs it is told to fail on.
var ErrInjected = errors.New("testutil: injected cipher failure")

// IdentityCipher seals nothing: Encrypt and Decrypt return their input.
// Scenario runs use it so rosters can be written in plaintext.
type IdentityCipher struct{}

// Encrypt returns plaintext unchanged.
func (IdentityCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return plaintext, ctx.Err()
}

// Decrypt returns ciphertext unchanged.
func (IdentityCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return ciphertext, ctx.Err()
}

// PrefixCipher marks sealed values with a prefix, so tests can tell
// whether a field went through the cipher. Decrypt rejects unmarked input.
type PrefixCipher struct {
	Prefix string
}

// Seal is Encrypt without a context.
func (c PrefixCipher) Seal(plaintext string) string {
	return c.Prefix + plaintext
}

// Encrypt prepends the prefix.
func (c PrefixCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Seal(plaintext), nil
}

// Decrypt strips the prefix.
func (c PrefixCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	plain, ok := strings.CutPrefix(ciphertext, c.Prefix)
	if !ok {
		return "", fmt.Errorf("testutil: %q is not sealed with %q", ciphertext, c.Prefix)
	}
	return plain, nil
}

// FieldCipher mirrors the cipher interface so FaultyCipher can wrap any
// implementation.
type FieldCipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// FaultyCipher wraps another cipher and fails on chosen inputs.
// It counts calls; safe for concurrent use.
type FaultyCipher struct {
	Inner FieldCipher

	mu          sync.Mutex
	failEncrypt map[string]bool
	failDecrypt map[string]bool
	encrypts    int
	decrypts    int
}

// NewFaultyCipher wraps inner. A nil inner means IdentityCipher.
func NewFaultyCipher(inner FieldCipher) *FaultyCipher {
	if inner == nil {
		inner = IdentityCipher{}
	}
	return &FaultyCipher{
		Inner:       inner,
		failEncrypt: make(map[string]bool),
		failDecrypt: make(map[string]bool),
	}
}

// FailEncrypt makes Encrypt fail for plaintext.
func (c *FaultyCipher) FailEncrypt(plaintext string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failEncrypt[plaintext] = true
}

// FailDecrypt makes Decrypt fail for ciphertext.
func (c *FaultyCipher) FailDecrypt(ciphertext string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failDecrypt[ciphertext] = true
}

// Encrypt delegates unless plaintext is marked to fail.
func (c *FaultyCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	c.mu.Lock()
	c.encrypts++
	fail := c.failEncrypt[plaintext]
	c.mu.Unlock()
	if fail {
		return "", ErrInjected
	}
	return c.Inner.Encrypt(ctx, plaintext)
}

// Decrypt delegates unless ciphertext is marked to fail.
func (c *FaultyCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	c.mu.Lock()
	c.decrypts++
	fail := c.failDecrypt[ciphertext]
	c.mu.Unlock()
	if fail {
		return "", ErrInjected
	}
	return c.Inner.Decrypt(ctx, ciphertext)
}

// Calls returns the number of Encrypt and Decrypt calls so far.
func (c *FaultyCipher) Calls() (encrypts, decrypts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encrypts, c.decrypts
}
