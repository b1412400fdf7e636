package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// OpType is the wire tag of a replication operation.
type OpType string

const (
	OpFull          OpType = "Full"
	OpAddStudent    OpType = "AddStudent"
	OpUpdateStudent OpType = "UpdateStudent"
	OpDeleteStudent OpType = "DeleteStudent"
	OpAddEntry      OpType = "AddEntry"
	OpUpdateEntry   OpType = "UpdateEntry"
	OpDeleteEntry   OpType = "DeleteEntry"
)

// Operation is a single replication operation.
//
// The set of implementations is closed: Full, AddStudent, UpdateStudent,
// DeleteStudent, AddEntry, UpdateEntry, DeleteEntry, and the outgoing-only
// NewEntry. Switches over Operation should handle every variant.
type Operation interface {
	OpType() OpType
	operation() // sealed
}

// Full replaces the entire roster. Student fields are ciphertext.
type Full struct {
	Rows []Row `json:"data"`
}

// AddStudent inserts a student. Student fields are ciphertext.
type AddStudent struct {
	Student StudentData `json:"student"`
	Cells   []Cell      `json:"cells"`
}

// UpdateStudent applies a batch of plaintext field updates to one student.
type UpdateStudent struct {
	Hashed  string               `json:"hashed"`
	Updates []StudentFieldUpdate `json:"updates"`
}

// DeleteStudent removes a student.
type DeleteStudent struct {
	Hashed string `json:"hashed"`
}

// AddEntry inserts an entry into the cell for (Hashed, Date).
type AddEntry struct {
	Hashed string     `json:"hashed"`
	Date   civil.Date `json:"date"`
	Entry  Entry      `json:"entry"`
}

// NewEntry asks the server to create an entry; the server assigns the id
// and answers with an AddEntry. It is never applied locally.
type NewEntry struct {
	Hashed string     `json:"hashed"`
	Date   civil.Date `json:"date"`
	Entry  EntryDraft `json:"entry"`
}

// UpdateEntry applies a batch of field updates to one entry.
type UpdateEntry struct {
	Hashed  string             `json:"hashed"`
	Date    civil.Date         `json:"date"`
	ID      string             `json:"id"`
	Updates []EntryFieldUpdate `json:"updates"`
}

// DeleteEntry removes one entry.
type DeleteEntry struct {
	Hashed string     `json:"hashed"`
	Date   civil.Date `json:"date"`
	ID     string     `json:"id"`
}

func (Full) OpType() OpType          { return OpFull }
func (AddStudent) OpType() OpType    { return OpAddStudent }
func (UpdateStudent) OpType() OpType { return OpUpdateStudent }
func (DeleteStudent) OpType() OpType { return OpDeleteStudent }
func (AddEntry) OpType() OpType      { return OpAddEntry }
func (NewEntry) OpType() OpType      { return OpAddEntry }
func (UpdateEntry) OpType() OpType   { return OpUpdateEntry }
func (DeleteEntry) OpType() OpType   { return OpDeleteEntry }

func (Full) operation()          {}
func (AddStudent) operation()    {}
func (UpdateStudent) operation() {}
func (DeleteStudent) operation() {}
func (AddEntry) operation()      {}
func (NewEntry) operation()      {}
func (UpdateEntry) operation()   {}
func (DeleteEntry) operation()   {}

// StudentField names an editable student field.
type StudentField string

const (
	FieldFirst StudentField = "first"
	FieldLast  StudentField = "last"
)

// StudentFieldUpdate sets one plaintext student field.
type StudentFieldUpdate struct {
	Key   StudentField `json:"key"`
	Value string       `json:"value"`
}

// EntryField names an editable entry field.
type EntryField string

const (
	FieldKind  EntryField = "kind"
	FieldStart EntryField = "start"
	FieldEnd   EntryField = "end"
)

// EntryFieldUpdate sets one entry field. Only the value matching Key is
// meaningful: Kind for "kind", Start for "start", End for "end" (nil clears
// the end time and reopens the session).
type EntryFieldUpdate struct {
	Key   EntryField
	Kind  HourKind
	Start time.Time
	End   *time.Time
}

// SetKind returns an update for the kind field.
func SetKind(k HourKind) EntryFieldUpdate {
	return EntryFieldUpdate{Key: FieldKind, Kind: k}
}

// SetStart returns an update for the start field.
func SetStart(t time.Time) EntryFieldUpdate {
	return EntryFieldUpdate{Key: FieldStart, Start: t}
}

// SetEnd returns an update for the end field.
func SetEnd(t *time.Time) EntryFieldUpdate {
	if t != nil {
		end := *t
		t = &end
	}
	return EntryFieldUpdate{Key: FieldEnd, End: t}
}

// MarshalJSON encodes the update as {"key": ..., "value": ...}.
func (u EntryFieldUpdate) MarshalJSON() ([]byte, error) {
	var value any
	switch u.Key {
	case FieldKind:
		value = u.Kind
	case FieldStart:
		value = u.Start
	case FieldEnd:
		value = u.End
	default:
		return nil, fmt.Errorf("unknown entry field %q", u.Key)
	}
	return json.Marshal(struct {
		Key   EntryField `json:"key"`
		Value any        `json:"value"`
	}{u.Key, value})
}

// UnmarshalJSON decodes {"key": ..., "value": ...}.
func (u *EntryFieldUpdate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key   EntryField      `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*u = EntryFieldUpdate{Key: raw.Key}
	switch raw.Key {
	case FieldKind:
		return json.Unmarshal(raw.Value, &u.Kind)
	case FieldStart:
		return json.Unmarshal(raw.Value, &u.Start)
	case FieldEnd:
		if len(raw.Value) == 0 || bytes.Equal(raw.Value, []byte("null")) {
			return nil
		}
		var end time.Time
		if err := json.Unmarshal(raw.Value, &end); err != nil {
			return err
		}
		u.End = &end
		return nil
	default:
		return fmt.Errorf("unknown entry field %q", raw.Key)
	}
}

// MarshalOperation encodes op with its "type" tag inlined.
func MarshalOperation(op Operation) ([]byte, error) {
	if op == nil {
		return nil, fmt.Errorf("marshal operation: nil operation")
	}
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", op.OpType(), err)
	}
	tag, err := json.Marshal(op.OpType())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// UnmarshalOperation decodes an incoming operation by its "type" tag.
// AddEntry always decodes to AddEntry, never NewEntry.
func UnmarshalOperation(data []byte) (Operation, error) {
	var head struct {
		Type OpType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal operation: %w", err)
	}

	var op Operation
	var err error
	switch head.Type {
	case OpFull:
		var v Full
		err = json.Unmarshal(data, &v)
		op = v
	case OpAddStudent:
		var v AddStudent
		err = json.Unmarshal(data, &v)
		if v.Cells == nil {
			v.Cells = []Cell{}
		}
		op = v
	case OpUpdateStudent:
		var v UpdateStudent
		err = json.Unmarshal(data, &v)
		op = v
	case OpDeleteStudent:
		var v DeleteStudent
		err = json.Unmarshal(data, &v)
		op = v
	case OpAddEntry:
		var v AddEntry
		err = json.Unmarshal(data, &v)
		op = v
	case OpUpdateEntry:
		var v UpdateEntry
		err = json.Unmarshal(data, &v)
		op = v
	case OpDeleteEntry:
		var v DeleteEntry
		err = json.Unmarshal(data, &v)
		op = v
	case "":
		return nil, fmt.Errorf("unmarshal operation: missing type tag")
	default:
		return nil, fmt.Errorf("unmarshal operation: unknown type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", head.Type, err)
	}
	return op, nil
}
