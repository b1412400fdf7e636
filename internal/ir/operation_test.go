package ir

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalOperation_AddEntry(t *testing.T) {
	data := []byte(`{
		"type": "AddEntry",
		"hashed": "h2",
		"date": "2024-01-02",
		"entry": {
			"id": "e1",
			"kind": "build",
			"start": "2024-01-02T15:00:00-05:00",
			"end": null
		}
	}`)

	op, err := UnmarshalOperation(data)
	require.NoError(t, err)

	add, ok := op.(AddEntry)
	require.True(t, ok, "expected AddEntry, got %T", op)
	assert.Equal(t, "h2", add.Hashed)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 2}, add.Date)
	assert.Equal(t, "e1", add.Entry.ID)
	assert.Equal(t, KindBuild, add.Entry.Kind)
	assert.Nil(t, add.Entry.End)

	_, offset := add.Entry.Start.Zone()
	assert.Equal(t, -5*3600, offset, "zone offset must survive decoding")
}

func TestUnmarshalOperation_UpdateEntry(t *testing.T) {
	data := []byte(`{
		"type": "UpdateEntry",
		"hashed": "h1",
		"date": "2024-01-01",
		"id": "e1",
		"updates": [
			{"key": "kind", "value": "demo"},
			{"key": "end", "value": "2024-01-01T18:30:00Z"},
			{"key": "end", "value": null}
		]
	}`)

	op, err := UnmarshalOperation(data)
	require.NoError(t, err)

	upd := op.(UpdateEntry)
	require.Len(t, upd.Updates, 3)
	assert.Equal(t, SetKind(KindDemo), upd.Updates[0])
	require.NotNil(t, upd.Updates[1].End)
	assert.True(t, upd.Updates[1].End.Equal(time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)))
	assert.Equal(t, FieldEnd, upd.Updates[2].Key)
	assert.Nil(t, upd.Updates[2].End)
}

func TestUnmarshalOperation_AddStudentDefaultsCells(t *testing.T) {
	op, err := UnmarshalOperation([]byte(`{"type":"AddStudent","student":{"id":"c1","hashed":"h1","first":"c2","last":"c3"}}`))
	require.NoError(t, err)

	add := op.(AddStudent)
	assert.Equal(t, "h1", add.Student.Hashed)
	assert.NotNil(t, add.Cells)
	assert.Empty(t, add.Cells)
}

func TestUnmarshalOperation_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing type", `{"hashed":"h1"}`},
		{"unknown type", `{"type":"Explode"}`},
		{"not json", `nope`},
		{"bad date", `{"type":"DeleteEntry","hashed":"h1","date":"yesterday","id":"e1"}`},
		{"bad update key", `{"type":"UpdateEntry","hashed":"h1","date":"2024-01-01","id":"e1","updates":[{"key":"color","value":"red"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalOperation([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestMarshalOperation_InlinesType(t *testing.T) {
	op := DeleteEntry{Hashed: "h2", Date: civil.Date{Year: 2024, Month: 1, Day: 2}, ID: "e1"}

	data, err := MarshalOperation(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"DeleteEntry","hashed":"h2","date":"2024-01-02","id":"e1"}`, string(data))
}

func TestMarshalOperation_NewEntryUsesAddEntryTag(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	op := NewEntry{
		Hashed: "h1",
		Date:   civil.DateOf(start),
		Entry:  EntryDraft{Kind: KindLearning, Start: start},
	}

	data, err := MarshalOperation(op)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "AddEntry", decoded["type"])

	entry := decoded["entry"].(map[string]any)
	_, hasID := entry["id"]
	assert.False(t, hasID, "drafts carry no id")
	assert.Nil(t, entry["end"])
}

func TestEntryFieldUpdate_EncodesValueByKey(t *testing.T) {
	end := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		update EntryFieldUpdate
		want   string
	}{
		{SetKind(KindOffseason), `{"key":"kind","value":"offseason"}`},
		{SetStart(end), `{"key":"start","value":"2024-01-01T12:00:00Z"}`},
		{SetEnd(&end), `{"key":"end","value":"2024-01-01T12:00:00Z"}`},
		{SetEnd(nil), `{"key":"end","value":null}`},
	}

	for _, tt := range tests {
		got, err := json.Marshal(tt.update)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(got))
	}
}

func TestSetEnd_CopiesTime(t *testing.T) {
	end := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	u := SetEnd(&end)
	end = end.Add(time.Hour)
	assert.Equal(t, 12, u.End.Hour())
}

func TestParseHourKind(t *testing.T) {
	for _, k := range HourKinds {
		got, err := ParseHourKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseHourKind("Build")
	assert.Error(t, err, "kinds are lowercase on the wire")
}
