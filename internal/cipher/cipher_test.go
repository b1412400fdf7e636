package cipher

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestXChaCha_RoundTrip(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)
	ctx := context.Background()

	for _, plain := range []string{"", "Ada", "Zoë Ångström", "12345"} {
		sealed, err := c.Encrypt(ctx, plain)
		require.NoError(t, err)

		raw, err := hex.DecodeString(sealed)
		require.NoError(t, err)
		assert.Len(t, raw, 24+len(plain)+16, "nonce || ciphertext || tag")

		got, err := c.Decrypt(ctx, sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestXChaCha_FreshNoncePerCall(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	a, err := c.Encrypt(context.Background(), "same")
	require.NoError(t, err)
	b, err := c.Encrypt(context.Background(), "same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestXChaCha_DeterministicWithFixedRand(t *testing.T) {
	nonces := bytes.Repeat([]byte{7}, 48)
	c, err := New(testKey(t), WithRand(bytes.NewReader(nonces)))
	require.NoError(t, err)

	a, err := c.Encrypt(context.Background(), "x")
	require.NoError(t, err)
	b, err := c.Encrypt(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "07070707", a[:8])
}

func TestXChaCha_DecryptErrors(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Decrypt(ctx, "zz")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = c.Decrypt(ctx, "abcd")
	assert.ErrorIs(t, err, ErrMalformed)

	sealed, err := c.Encrypt(ctx, "secret")
	require.NoError(t, err)

	other, err := New(bytes.Repeat([]byte{1}, KeySize))
	require.NoError(t, err)
	_, err = other.Decrypt(ctx, sealed)
	assert.ErrorIs(t, err, ErrAuth)

	tampered := []byte(sealed)
	last := len(tampered) - 1
	if tampered[last] == '0' {
		tampered[last] = '1'
	} else {
		tampered[last] = '0'
	}
	_, err = c.Decrypt(ctx, string(tampered))
	assert.ErrorIs(t, err, ErrAuth)
}

func TestXChaCha_HonorsCancellation(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Encrypt(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Decrypt(ctx, "00")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)

	_, err = NewFromHex("not-hex")
	assert.Error(t, err)
}

func TestWrapKey_RoundTrip(t *testing.T) {
	// Small parameters keep the test fast; the format is independent of cost.
	params := KDFParams{Time: 1, Memory: 64, Threads: 1}
	key, err := GenerateKey()
	require.NoError(t, err)

	wrapped, err := params.Wrap(key, "correct horse")
	require.NoError(t, err)

	raw, err := hex.DecodeString(wrapped)
	require.NoError(t, err)
	assert.Len(t, raw, 16+24+KeySize+16)

	got, err := params.Unwrap(wrapped, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = params.Unwrap(wrapped, "wrong")
	assert.ErrorIs(t, err, ErrAuth)

	_, err = params.Unwrap("00", "correct horse")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDefaultKDF(t *testing.T) {
	assert.Equal(t, uint32(3), DefaultKDF.Time)
	assert.Equal(t, uint32(128*1024), DefaultKDF.Memory)
	assert.Equal(t, uint8(4), DefaultKDF.Threads)
}
