package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/rostersync/internal/ir"
)

// maxJournalLine bounds one journal record. A Full snapshot of a large
// roster is a single line.
const maxJournalLine = 64 << 20

// JournalRecord is one line of an operation journal.
type JournalRecord struct {
	Seq int64           `json:"seq"`
	Op  json.RawMessage `json:"op"`
}

// JournalWriter appends operations to a JSON-lines journal.
// Safe for concurrent use.
type JournalWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	seq int64
}

// NewJournalWriter creates a journal writing to w.
func NewJournalWriter(w io.Writer) *JournalWriter {
	return &JournalWriter{enc: json.NewEncoder(w)}
}

// Record appends op with the next sequence number.
func (j *JournalWriter) Record(op ir.Operation) error {
	raw, err := ir.MarshalOperation(op)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	if err := j.enc.Encode(JournalRecord{Seq: j.seq, Op: raw}); err != nil {
		j.seq--
		return fmt.Errorf("journal: write seq %d: %w", j.seq+1, err)
	}
	return nil
}

// ReadJournal decodes every operation in a journal, in order.
// Blank lines are skipped. Sequence numbers must be strictly increasing.
func ReadJournal(r io.Reader) ([]ir.Operation, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxJournalLine)

	var ops []ir.Operation
	var last int64
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}

		var rec JournalRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		if rec.Seq <= last {
			return nil, fmt.Errorf("journal line %d: seq %d does not follow %d", line, rec.Seq, last)
		}
		last = rec.Seq

		op, err := ir.UnmarshalOperation(rec.Op)
		if err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return ops, nil
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Applied  int    `json:"applied"`
	Failed   int    `json:"failed"`
	Revision int64  `json:"revision"`
	Digest   string `json:"digest"`
}

// Replay applies ops to e in order, the way the Run loop would: each with
// clearRedo=true, failures logged and skipped.
//
// Replay is deterministic: the same journal and key always produce the same
// roster digest.
func Replay(ctx context.Context, e *Engine, ops []ir.Operation) (ReplayResult, error) {
	var res ReplayResult
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.Apply(ctx, op, BucketUndo, true); err != nil {
			var ae *ApplyError
			if !errors.As(err, &ae) {
				return res, fmt.Errorf("replay op %d: %w", i+1, err)
			}
			e.logOpError(op, err)
			res.Failed++
			continue
		}
		res.Applied++
	}

	snap := e.Snapshot()
	digest, err := ir.RosterDigest(snap.Roster)
	if err != nil {
		return res, err
	}
	res.Revision = snap.Revision
	res.Digest = digest
	return res, nil
}
