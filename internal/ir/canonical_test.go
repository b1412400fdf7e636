package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"number", json.Number("7"), "7"},
		{"null", nil, "null"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"control escaped", "a\nb\x01", `"a\nb\u0001"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D..., which sort before U+FB01 in UTF-16
	// but after it in UTF-8.
	result, err := MarshalCanonical(map[string]any{"ﬁ": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"ﬁ\":1}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	result, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1.5}`))
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)
}

func TestRosterDigest_SensitiveToEveryField(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	base := Roster{{
		Hashed: "h1", ID: "1", First: "Ada", Last: "Lovelace",
		Cells: []Cell{{Date: day(1), Entries: []Entry{{ID: "e1", Kind: KindBuild, Start: start}}}},
	}}
	baseDigest := MustRosterDigest(base)

	assert.Equal(t, baseDigest, MustRosterDigest(base.Clone()), "clone must hash identically")

	mutations := map[string]func(r Roster){
		"first": func(r Roster) { r[0].First = "Grace" },
		"kind":  func(r Roster) { r[0].Cells[0].Entries[0].Kind = KindDemo },
		"start": func(r Roster) { r[0].Cells[0].Entries[0].Start = start.Add(time.Minute) },
		"zone":  func(r Roster) { r[0].Cells[0].Entries[0].Start = start.In(time.FixedZone("X", 3600)) },
		"end":   func(r Roster) { e := start; r[0].Cells[0].Entries[0].End = &e },
		"date":  func(r Roster) { r[0].Cells[0].Date = day(2) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := base.Clone()
			mutate(r)
			assert.NotEqual(t, baseDigest, MustRosterDigest(r))
		})
	}
}

func TestOperationDigest_Stable(t *testing.T) {
	op := DeleteStudent{Hashed: "h1"}
	a, err := OperationDigest(op)
	require.NoError(t, err)
	b, err := OperationDigest(DeleteStudent{Hashed: "h1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := OperationDigest(DeleteStudent{Hashed: "h2"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
