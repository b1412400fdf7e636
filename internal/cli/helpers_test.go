package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/devserver"
	"github.com/roach88/rostersync/internal/store"
)

const (
	testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testSecret = "test-secret"
)

// syncBuffer is a bytes.Buffer safe for a command writing while the test
// reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// clearEnv unsets every variable the CLI falls back to.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvURL, EnvToken, EnvKey, EnvSecret} {
		t.Setenv(key, "")
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func testCipher(t *testing.T) *cipher.XChaCha {
	t.Helper()
	c, err := cipher.NewFromHex(testKeyHex)
	require.NoError(t, err)
	return c
}

var testSeed = &devserver.SeedFile{Students: []devserver.SeedStudent{
	{
		ID: "1001", First: "Ada", Last: "Lovelace",
		Entries: []devserver.SeedEntry{
			{ID: "e1", Date: "2024-01-02", Kind: "build", Start: "2024-01-02T09:00:00-05:00", End: "2024-01-02T12:00:00-05:00"},
		},
	},
	{ID: "1002", First: "Grace", Last: "Hopper"},
}}

// startDevServer serves a seeded sqlite store and returns its websocket URL
// and database path.
func startDevServer(t *testing.T) (url, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "dev.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = devserver.Seed(context.Background(), st, testCipher(t), testSeed)
	require.NoError(t, err)

	srv, err := devserver.New(st, []byte(testSecret), devserver.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
		st.Close()
	})
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws", dbPath
}

func mintToken(t *testing.T) string {
	t.Helper()
	token, err := devserver.MintToken([]byte(testSecret), "tester", time.Hour)
	require.NoError(t, err)
	return token
}
