package engine

import (
	"context"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/ir"
)

// Apply applies one operation to the roster.
//
// The inverse of the operation, if it has one and the operation changed
// anything, is pushed onto bucket. When clearRedo is true the redo stack is
// emptied first; server-originated operations always clear it.
//
// References to a student, cell or entry that no longer exists make the
// operation a silent no-op. With no field key set every operation is a
// silent no-op. A cipher failure abandons the operation, leaves the roster
// unchanged, and is returned as an *ApplyError.
//
// Every call advances the revision and publishes a new snapshot.
func (e *Engine) Apply(ctx context.Context, op ir.Operation, bucket Bucket, clearRedo bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(ctx, op, bucket, clearRedo)
}

// applyLocked runs one apply step. Caller must hold e.mu.
func (e *Engine) applyLocked(ctx context.Context, op ir.Operation, bucket Bucket, clearRedo bool) error {
	e.loading.Store(true)
	defer e.loading.Store(false)

	err := e.mutate(ctx, op, bucket, clearRedo)
	e.publish()
	return err
}

func (e *Engine) mutate(ctx context.Context, op ir.Operation, bucket Bucket, clearRedo bool) error {
	c := e.currentCipher()
	if c == nil {
		e.logger.Debug("no field key, operation skipped", "op", opType(op))
		return nil
	}

	if clearRedo {
		e.history.ClearRedo()
	}

	var inverse ir.Operation
	var err error

	switch op := op.(type) {
	case ir.Full:
		err = e.applyFull(ctx, c, op)
	case ir.AddStudent:
		inverse, err = e.applyAddStudent(ctx, c, op)
	case ir.UpdateStudent:
		inverse = e.applyUpdateStudent(op)
	case ir.DeleteStudent:
		inverse, err = e.applyDeleteStudent(ctx, c, op)
	case ir.AddEntry:
		inverse = e.applyAddEntry(op)
	case ir.UpdateEntry:
		inverse = e.applyUpdateEntry(op)
	case ir.DeleteEntry:
		inverse = e.applyDeleteEntry(op)
	default:
		return &ApplyError{
			Code: ErrCodeUnknownOperation,
			Op:   opType(op),
			Err:  fmt.Errorf("%T cannot be applied locally", op),
		}
	}

	if err != nil {
		return err
	}
	if inverse != nil {
		e.history.Push(bucket, inverse)
	}
	return nil
}

// publish advances the revision and stores an immutable copy of the roster.
func (e *Engine) publish() {
	snap := &Snapshot{Revision: e.clock.Next(), Roster: e.roster.Clone()}
	e.snapshot.Store(snap)
	if e.onApply != nil {
		e.onApply(snap.copy())
	}
}

func (e *Engine) applyFull(ctx context.Context, c cipher.FieldCipher, op ir.Full) error {
	if e.progress != nil {
		e.progress.FullStarted(len(op.Rows))
	}

	students := make(ir.Roster, len(op.Rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, row := range op.Rows {
		g.Go(func() error {
			s, err := e.decryptStudent(gctx, c, row.Student, true)
			if err != nil {
				return err
			}
			s.Cells = ir.CloneCells(row.Cells)
			students[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cipherError(op, "", err)
	}

	roster := make(ir.Roster, 0, len(students))
	seen := make(map[string]bool, len(students))
	for _, s := range students {
		if seen[s.Hashed] {
			e.logger.Warn("duplicate student in snapshot", "hashed", s.Hashed)
			continue
		}
		seen[s.Hashed] = true
		roster = append(roster, s)
	}
	roster.Align()

	e.roster = roster
	e.history.Clear()

	e.logger.Info("snapshot applied", "students", len(roster), "dates", len(roster.Dates()))
	if e.progress != nil {
		e.progress.FullApplied()
	}
	return nil
}

func (e *Engine) applyAddStudent(ctx context.Context, c cipher.FieldCipher, op ir.AddStudent) (ir.Operation, error) {
	if e.roster.Index(op.Student.Hashed) != -1 {
		e.logger.Debug("student already present", "hashed", op.Student.Hashed)
		return nil, nil
	}

	s, err := e.decryptStudent(ctx, c, op.Student, false)
	if err != nil {
		return nil, cipherError(op, op.Student.Hashed, err)
	}
	s.Cells = ir.CloneCells(op.Cells)

	e.roster = append(e.roster, s)
	e.roster.Align()

	return ir.DeleteStudent{Hashed: s.Hashed}, nil
}

func (e *Engine) applyUpdateStudent(op ir.UpdateStudent) ir.Operation {
	i := e.roster.Index(op.Hashed)
	if i == -1 {
		return nil
	}
	s := &e.roster[i]

	// One undo per touched field, holding its value from before the batch.
	var undos []ir.StudentFieldUpdate
	touched := make(map[ir.StudentField]bool, 2)
	for _, u := range op.Updates {
		var field *string
		switch u.Key {
		case ir.FieldFirst:
			field = &s.First
		case ir.FieldLast:
			field = &s.Last
		default:
			continue
		}
		if !touched[u.Key] {
			touched[u.Key] = true
			undos = append(undos, ir.StudentFieldUpdate{Key: u.Key, Value: *field})
		}
		*field = u.Value
	}

	if len(undos) == 0 {
		return nil
	}
	return ir.UpdateStudent{Hashed: op.Hashed, Updates: undos}
}

func (e *Engine) applyDeleteStudent(ctx context.Context, c cipher.FieldCipher, op ir.DeleteStudent) (ir.Operation, error) {
	i := e.roster.Index(op.Hashed)
	if i == -1 {
		return nil, nil
	}
	removed := e.roster[i]

	// Seal before removing so a cipher failure leaves the roster intact.
	data, err := encryptStudent(ctx, c, removed)
	if err != nil {
		return nil, cipherError(op, op.Hashed, err)
	}

	e.roster = slices.Delete(e.roster, i, i+1)

	return ir.AddStudent{Student: data, Cells: removed.Cells}, nil
}

func (e *Engine) applyAddEntry(op ir.AddEntry) ir.Operation {
	i := e.roster.Index(op.Hashed)
	if i == -1 {
		return nil
	}
	s := &e.roster[i]

	ci := s.CellIndex(op.Date)
	if ci == -1 {
		e.roster.InsertCell(op.Date)
		ci = s.CellIndex(op.Date)
	}
	cell := &s.Cells[ci]

	if cell.EntryIndex(op.Entry.ID) != -1 {
		e.logger.Debug("entry already present", "hashed", op.Hashed, "date", op.Date, "id", op.Entry.ID)
		return nil
	}
	cell.Entries = append(cell.Entries, op.Entry.Clone())

	return ir.DeleteEntry{Hashed: op.Hashed, Date: op.Date, ID: op.Entry.ID}
}

func (e *Engine) applyUpdateEntry(op ir.UpdateEntry) ir.Operation {
	entry := e.findEntry(op.Hashed, op.Date, op.ID)
	if entry == nil {
		return nil
	}

	var undos []ir.EntryFieldUpdate
	touched := make(map[ir.EntryField]bool, 3)
	for _, u := range op.Updates {
		var prior ir.EntryFieldUpdate
		switch u.Key {
		case ir.FieldKind:
			prior = ir.SetKind(entry.Kind)
			entry.Kind = u.Kind
		case ir.FieldStart:
			prior = ir.SetStart(entry.Start)
			entry.Start = u.Start
		case ir.FieldEnd:
			prior = ir.SetEnd(entry.End)
			entry.End = ir.SetEnd(u.End).End
		default:
			continue
		}
		if !touched[u.Key] {
			touched[u.Key] = true
			undos = append(undos, prior)
		}
	}

	if len(undos) == 0 {
		return nil
	}
	return ir.UpdateEntry{Hashed: op.Hashed, Date: op.Date, ID: op.ID, Updates: undos}
}

func (e *Engine) applyDeleteEntry(op ir.DeleteEntry) ir.Operation {
	i := e.roster.Index(op.Hashed)
	if i == -1 {
		return nil
	}
	s := &e.roster[i]
	ci := s.CellIndex(op.Date)
	if ci == -1 {
		return nil
	}
	cell := &s.Cells[ci]
	ei := cell.EntryIndex(op.ID)
	if ei == -1 {
		return nil
	}

	removed := cell.Entries[ei]
	cell.Entries = slices.Delete(cell.Entries, ei, ei+1)

	return ir.AddEntry{Hashed: op.Hashed, Date: op.Date, Entry: removed}
}

func (e *Engine) findEntry(hashed string, date civil.Date, id string) *ir.Entry {
	i := e.roster.Index(hashed)
	if i == -1 {
		return nil
	}
	s := &e.roster[i]
	ci := s.CellIndex(date)
	if ci == -1 {
		return nil
	}
	cell := &s.Cells[ci]
	ei := cell.EntryIndex(id)
	if ei == -1 {
		return nil
	}
	return &cell.Entries[ei]
}

// decryptStudent opens the three sealed fields of a wire student.
// When report is set each decrypted field is counted toward Full progress.
func (e *Engine) decryptStudent(ctx context.Context, c cipher.FieldCipher, data ir.StudentData, report bool) (ir.Student, error) {
	open := func(field, sealed string) (string, error) {
		plain, err := c.Decrypt(ctx, sealed)
		if err != nil {
			return "", fmt.Errorf("decrypt %s of %s: %w", field, data.Hashed, err)
		}
		if report && e.progress != nil {
			e.progress.FieldDecrypted()
		}
		return plain, nil
	}

	s := ir.Student{Hashed: data.Hashed}
	var err error
	if s.ID, err = open("id", data.ID); err != nil {
		return ir.Student{}, err
	}
	if s.First, err = open("first", data.First); err != nil {
		return ir.Student{}, err
	}
	if s.Last, err = open("last", data.Last); err != nil {
		return ir.Student{}, err
	}
	return s, nil
}

// encryptStudent seals a student's fields for an AddStudent inverse.
func encryptStudent(ctx context.Context, c cipher.FieldCipher, s ir.Student) (ir.StudentData, error) {
	data := ir.StudentData{Hashed: s.Hashed}
	var err error
	if data.ID, err = c.Encrypt(ctx, s.ID); err != nil {
		return ir.StudentData{}, fmt.Errorf("encrypt id of %s: %w", s.Hashed, err)
	}
	if data.First, err = c.Encrypt(ctx, s.First); err != nil {
		return ir.StudentData{}, fmt.Errorf("encrypt first of %s: %w", s.Hashed, err)
	}
	if data.Last, err = c.Encrypt(ctx, s.Last); err != nil {
		return ir.StudentData{}, fmt.Errorf("encrypt last of %s: %w", s.Hashed, err)
	}
	return data, nil
}
