package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/devserver"
	"github.com/roach88/rostersync/internal/engine"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/store"
)

// writeJournal records the seed snapshot followed by ops.
func writeJournal(t *testing.T, ops ...ir.Operation) string {
	t.Helper()
	full, err := testSeed.Build(context.Background(), testCipher(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roster.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	j := engine.NewJournalWriter(f)
	require.NoError(t, j.Record(full))
	for _, op := range ops {
		require.NoError(t, j.Record(op))
	}
	return path
}

func TestReplay_Journal(t *testing.T) {
	clearEnv(t)
	ada := devserver.HashStudentID("1001")
	start := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	path := writeJournal(t,
		ir.AddEntry{Hashed: ada, Date: civil.DateOf(start), Entry: ir.Entry{ID: "e2", Kind: ir.KindDemo, Start: start}},
		ir.UpdateStudent{Hashed: ada, Updates: []ir.StudentFieldUpdate{{Key: ir.FieldFirst, Value: "Augusta"}}},
	)

	out, err := execute(t, "--format", "json", "replay", "--key", testKeyHex, path)
	require.NoError(t, err, out)

	var report ReplayReport
	decodeData(t, out, &report)
	assert.Equal(t, path, report.Source)
	assert.Equal(t, 3, report.Operations)
	assert.Equal(t, 3, report.Applied)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int64(3), report.Revision)
	assert.Len(t, report.Digest, 64)
	assert.True(t, report.Deterministic)

	text, err := execute(t, "replay", "--key", testKeyHex, path)
	require.NoError(t, err)
	assert.Contains(t, text, "✓ Replayed 3 operation(s)")
	assert.Contains(t, text, "Digest: "+report.Digest)
	assert.Contains(t, text, "Replay verified deterministic")
}

func TestReplay_WrongKeyCountsFailures(t *testing.T) {
	clearEnv(t)
	path := writeJournal(t)

	other := "ff" + testKeyHex[2:]
	out, err := execute(t, "--verbose", "replay", "--key", other, path)
	require.NoError(t, err, "failures are reported, not fatal")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Revision: 1", "a failed apply still advances the revision")
}

func TestReplay_OperationsLog(t *testing.T) {
	clearEnv(t)
	_, dbPath := startDevServer(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.Apply(context.Background(), ir.DeleteStudent{Hashed: devserver.HashStudentID("1002")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "--format", "json", "replay", "--key", testKeyHex, "--db", dbPath)
	require.NoError(t, err, out)

	var report ReplayReport
	decodeData(t, out, &report)
	assert.Equal(t, 2, report.Operations, "seed snapshot and delete")
	assert.Equal(t, 2, report.Applied)
	assert.True(t, report.Deterministic)
}

func TestReplay_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"seq\":1,\"op\":{\"type\":\"Explode\"}}\n"), 0644))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no source", []string{"replay", "--key", testKeyHex}, "exactly one of"},
		{"both sources", []string{"replay", "--key", testKeyHex, "--db", "x.db", bad}, "exactly one of"},
		{"no key", []string{"replay", bad}, "invalid field key"},
		{"missing journal", []string{"replay", "--key", testKeyHex, filepath.Join(dir, "none.jsonl")}, "failed to load operations"},
		{"missing database", []string{"replay", "--key", testKeyHex, "--db", filepath.Join(dir, "none.db")}, "failed to load operations"},
		{"bad journal", []string{"replay", "--key", testKeyHex, bad}, "unknown type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
