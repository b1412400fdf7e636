package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Direction names which peer sent a frame.
type Direction string

const (
	// ClientToServer frames are sent by the roster client.
	ClientToServer Direction = "client"
	// ServerToClient frames are sent by the server.
	ServerToClient Direction = "server"
)

// Message tags.
const (
	TagAuthenticate = "Authenticate"
	TagReplicate    = "Replicate"
	TagError        = "Error"
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Catalog validates frames against the compiled CUE schema.
// CUE values are not safe for concurrent evaluation, so validation is
// serialized by mu.
type Catalog struct {
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[Direction]map[string]cue.Value
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns a process-wide catalog compiled once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = New()
	})
	return defaultCat, defaultErr
}

// New compiles the embedded schema.
func New() (*Catalog, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	c := &Catalog{
		ctx:     ctx,
		schemas: make(map[Direction]map[string]cue.Value),
	}
	for _, dir := range []Direction{ClientToServer, ServerToClient} {
		dirVal := root.LookupPath(cue.ParsePath(string(dir)))
		if !dirVal.Exists() {
			return nil, fmt.Errorf("catalog schema: missing %q catalog", dir)
		}
		iter, err := dirVal.Fields()
		if err != nil {
			return nil, fmt.Errorf("catalog schema: %s: %w", dir, err)
		}
		tags := make(map[string]cue.Value)
		for iter.Next() {
			tags[iter.Selector().String()] = iter.Value()
		}
		c.schemas[dir] = tags
	}
	return c, nil
}

// Tags lists the tags registered for a direction, sorted.
func (c *Catalog) Tags(dir Direction) []string {
	tags := make([]string, 0, len(c.schemas[dir]))
	for tag := range c.schemas[dir] {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Validate checks a payload against the schema registered for (dir, tag).
// A nil or empty payload is validated as JSON null.
func (c *Catalog) Validate(dir Direction, tag string, data []byte) error {
	schema, ok := c.schemas[dir][tag]
	if !ok {
		return &ValidationError{
			Code:      CodeUnknownTag,
			Direction: dir,
			Tag:       tag,
			Err:       fmt.Errorf("no schema registered for %q", tag),
		}
	}
	if len(data) == 0 {
		data = []byte("null")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	payload := c.ctx.CompileBytes(data, cue.Filename(tag+".json"))
	if err := payload.Err(); err != nil {
		return &ValidationError{Code: CodeMalformed, Direction: dir, Tag: tag, Err: err}
	}
	if err := schema.Unify(payload).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Code: CodeInvalidData, Direction: dir, Tag: tag, Err: err}
	}
	return nil
}

// Decode parses a raw frame and validates it against the catalog for dir.
func (c *Catalog) Decode(dir Direction, frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, &ValidationError{Code: CodeMalformed, Direction: dir, Err: err}
	}
	if env.Type == "" {
		return Envelope{}, &ValidationError{
			Code:      CodeMissingTag,
			Direction: dir,
			Err:       errors.New("frame has no type tag"),
		}
	}
	if err := c.Validate(dir, env.Type, env.Data); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Encode builds a frame for tag, validating the payload for dir first.
func (c *Catalog) Encode(dir Direction, tag string, data any) ([]byte, error) {
	var raw json.RawMessage
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", tag, err)
		}
		raw = b
	}
	if err := c.Validate(dir, tag, raw); err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: tag, Data: raw})
}
