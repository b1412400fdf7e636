package devserver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/store"
)

// SeedFile is a plaintext roster used to populate a development store.
type SeedFile struct {
	Students []SeedStudent `yaml:"students"`
}

// SeedStudent is one plaintext student. Hashed defaults to HashStudentID(ID).
type SeedStudent struct {
	ID      string      `yaml:"id"`
	Hashed  string      `yaml:"hashed,omitempty"`
	First   string      `yaml:"first"`
	Last    string      `yaml:"last"`
	Entries []SeedEntry `yaml:"entries,omitempty"`
}

// SeedEntry is one plaintext entry. Times are RFC 3339.
type SeedEntry struct {
	ID    string `yaml:"id"`
	Date  string `yaml:"date"`
	Kind  string `yaml:"kind"`
	Start string `yaml:"start"`
	End   string `yaml:"end,omitempty"`
}

// LoadSeed reads a seed file with strict field checking.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML, rejecting unknown fields.
func ParseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// HashStudentID derives the opaque correlation key for a student id.
func HashStudentID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Build encrypts the seed's student fields with c and returns the Full
// snapshot it describes.
func (f *SeedFile) Build(ctx context.Context, c cipher.FieldCipher) (ir.Full, error) {
	full := ir.Full{Rows: make([]ir.Row, 0, len(f.Students))}
	seen := make(map[string]bool, len(f.Students))

	for i, st := range f.Students {
		if st.ID == "" {
			return ir.Full{}, fmt.Errorf("student %d: missing id", i)
		}
		hashed := st.Hashed
		if hashed == "" {
			hashed = HashStudentID(st.ID)
		}
		if seen[hashed] {
			return ir.Full{}, fmt.Errorf("student %d: duplicate student %s", i, st.ID)
		}
		seen[hashed] = true

		data := ir.StudentData{Hashed: hashed}
		for _, field := range []struct {
			dst   *string
			plain string
		}{{&data.ID, st.ID}, {&data.First, st.First}, {&data.Last, st.Last}} {
			sealed, err := c.Encrypt(ctx, field.plain)
			if err != nil {
				return ir.Full{}, fmt.Errorf("student %d: encrypt: %w", i, err)
			}
			*field.dst = sealed
		}

		cells, err := buildCells(st.Entries)
		if err != nil {
			return ir.Full{}, fmt.Errorf("student %s: %w", st.ID, err)
		}
		full.Rows = append(full.Rows, ir.Row{Student: data, Cells: cells})
	}
	return full, nil
}

func buildCells(entries []SeedEntry) ([]ir.Cell, error) {
	byDate := make(map[civil.Date]*ir.Cell)
	for i, e := range entries {
		date, err := civil.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		kind, err := ir.ParseHourKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		start, err := time.Parse(time.RFC3339, e.Start)
		if err != nil {
			return nil, fmt.Errorf("entry %d: start: %w", i, err)
		}
		entry := ir.Entry{ID: e.ID, Kind: kind, Start: start}
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("seed-%s-%d", e.Date, i)
		}
		if e.End != "" {
			end, err := time.Parse(time.RFC3339, e.End)
			if err != nil {
				return nil, fmt.Errorf("entry %d: end: %w", i, err)
			}
			entry.End = &end
		}

		cell, ok := byDate[date]
		if !ok {
			c := ir.NewCell(date)
			cell = &c
			byDate[date] = cell
		}
		cell.Entries = append(cell.Entries, entry)
	}

	cells := make([]ir.Cell, 0, len(byDate))
	for _, c := range byDate {
		cells = append(cells, *c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Date.Before(cells[j].Date) })
	return cells, nil
}

// Seed replaces the store's roster with the seed file's contents.
func Seed(ctx context.Context, st *store.Store, c cipher.FieldCipher, f *SeedFile) (int, error) {
	full, err := f.Build(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	if _, err := st.Apply(ctx, full); err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	return len(full.Rows), nil
}
