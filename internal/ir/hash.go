package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRoster    = "rostersync/roster/v1"
	DomainOperation = "rostersync/operation/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RosterDigest hashes the canonical JSON of a plaintext roster.
// Two rosters share a digest exactly when every student, cell and entry
// (including order and timestamp offsets) is identical.
func RosterDigest(r Roster) (string, error) {
	if r == nil {
		r = Roster{}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("RosterDigest: failed to marshal: %w", err)
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("RosterDigest: %w", err)
	}
	return hashWithDomain(DomainRoster, canonical), nil
}

// OperationDigest computes a content-addressed id for an operation.
// It is stable for a given operation value and used to correlate log lines
// and journal records.
func OperationDigest(op Operation) (string, error) {
	raw, err := MarshalOperation(op)
	if err != nil {
		return "", fmt.Errorf("OperationDigest: %w", err)
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("OperationDigest: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// MustRosterDigest is like RosterDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRosterDigest(r Roster) string {
	d, err := RosterDigest(r)
	if err != nil {
		panic(err)
	}
	return d
}
