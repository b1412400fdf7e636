package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/rostersync/internal/catalog"
)

// Reconnect defaults.
const (
	DefaultStep        = 5 * time.Second
	DefaultMaxAttempts = 5
	DefaultTick        = time.Second
)

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Hooks are called from the Run goroutine. A hook may call Send, Reconnect
// or Close, but must not block for long: no frame is read while it runs.
type Hooks struct {
	// Connect is called after the socket opens and queued frames are flushed.
	Connect func(c *Client)
	// Disconnect is called after an open socket closes.
	Disconnect func(c *Client, err error)
	// Message is called for every inbound frame that passed validation.
	Message func(c *Client, env catalog.Envelope)
	// Countdown is called once per tick while a reconnect is pending.
	Countdown func(c *Client, attempt int, remaining time.Duration)
	// GiveUp is called when the attempt budget is spent.
	GiveUp func(c *Client)
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBackoff sets the per-attempt wait step and the number of automatic
// attempts before a manual reconnect is required.
//
// Default: DefaultStep, DefaultMaxAttempts.
func WithBackoff(step time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		if step > 0 {
			c.step = step
		}
		if maxAttempts >= 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithTick sets the countdown granularity. Default: DefaultTick.
func WithTick(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithAfter replaces time.After for countdown ticks.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) {
		c.after = after
	}
}

// WithCatalog sets the message catalog. Defaults to catalog.Default().
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Client) {
		c.catalog = cat
	}
}

// Client is a reconnecting, catalog-validating socket client.
//
// Thread-safety model:
//   - Send(), Reconnect(), Close(), State(), Assert(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Client struct {
	url         string
	hooks       Hooks
	dialer      Dialer
	catalog     *catalog.Catalog
	logger      *slog.Logger
	step        time.Duration
	maxAttempts int
	tick        time.Duration
	after       func(time.Duration) <-chan time.Time

	writeMu sync.Mutex // one writer per socket

	mu         sync.Mutex
	state      State
	conn       Conn
	opened     bool
	pending    [][]byte
	attempts   int
	manual     bool
	immediate  bool
	cancelWait context.CancelFunc
	closed     bool
	done       chan struct{}
}

// New creates a client for url. It does not dial until Run is called.
func New(url string, hooks Hooks, opts ...Option) (*Client, error) {
	c := &Client{
		url:         url,
		hooks:       hooks,
		dialer:      WebsocketDialer{},
		logger:      slog.Default(),
		step:        DefaultStep,
		maxAttempts: DefaultMaxAttempts,
		tick:        DefaultTick,
		after:       time.After,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		cat, err := catalog.Default()
		if err != nil {
			return nil, err
		}
		c.catalog = cat
	}
	return c, nil
}

// URL returns the address the client dials.
func (c *Client) URL() string {
	return c.url
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Assert reports whether the client is in state s.
func (c *Client) Assert(s State) bool {
	return c.State() == s
}

// Attempts returns the number of reconnect attempts since the last
// successful connection.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// NeedsManualReconnect reports whether the client stopped retrying.
func (c *Client) NeedsManualReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// Run dials and keeps redialing until ctx is cancelled or Close is called.
// Returns nil after Close and ctx.Err() after cancellation.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_ = c.serve(ctx)
		if c.isClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.backoff(ctx); err != nil {
			if c.isClosed() {
				return nil
			}
			return err
		}
	}
}

// serve dials once and reads frames until the socket closes.
func (c *Client) serve(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.logger.Warn("dial failed", "url", c.url, "error", err)
		return err
	}

	// Hold the write lock across the state change so queued frames go out
	// before anything sent concurrently.
	c.writeMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.writeMu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	c.opened = true
	c.attempts = 0
	c.manual = false
	c.immediate = false
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, frame := range pending {
		if err := conn.WriteMessage(frame); err != nil {
			c.logger.Warn("flush queued frame failed", "error", err)
		}
	}
	c.writeMu.Unlock()

	c.logger.Info("connected", "url", c.url, "flushed", len(pending))
	if c.hooks.Connect != nil {
		c.hooks.Connect(c)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	err = c.read(conn)

	c.mu.Lock()
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()
	conn.Close()

	c.logger.Info("disconnected", "url", c.url, "error", err)
	if c.hooks.Disconnect != nil {
		c.hooks.Disconnect(c, err)
	}
	return err
}

func (c *Client) read(conn Conn) error {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := c.catalog.Decode(catalog.ServerToClient, frame)
		if err != nil {
			c.logger.Warn("dropping inbound frame",
				"code", catalog.ValidationCode(err),
				"error", err,
			)
			continue
		}
		if c.hooks.Message != nil {
			c.hooks.Message(c, env)
		}
	}
}

// backoff waits before the next dial. It returns nil when it is time to
// dial, and ctx.Err() when the client is shutting down.
func (c *Client) backoff(ctx context.Context) error {
	c.mu.Lock()
	if c.immediate {
		c.immediate = false
		c.mu.Unlock()
		return nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	c.cancelWait = cancel
	defer func() {
		c.mu.Lock()
		c.cancelWait = nil
		c.mu.Unlock()
		cancel()
	}()

	if c.attempts >= c.maxAttempts {
		c.manual = true
		attempts := c.attempts
		c.mu.Unlock()

		c.logger.Warn("reconnect attempts exhausted", "attempts", attempts, "error", ErrManualReconnect)
		if c.hooks.GiveUp != nil {
			c.hooks.GiveUp(c)
		}
		<-waitCtx.Done()
		return ctx.Err()
	}

	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	wait := time.Duration(attempt) * c.step
	c.logger.Info("reconnect scheduled", "attempt", attempt, "wait", wait)

	for remaining := wait; remaining > 0; remaining -= c.tick {
		if c.hooks.Countdown != nil {
			c.hooks.Countdown(c, attempt, remaining)
		}
		select {
		case <-c.after(min(c.tick, remaining)):
		case <-waitCtx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Send encodes data under tag and writes it to the socket.
//
// Before the first connection frames are queued and flushed once the
// socket opens. Afterwards Send fails with ErrNotConnected while the
// socket is down. Payloads that do not match the client catalog are
// rejected with a *catalog.ValidationError.
func (c *Client) Send(tag string, data any) error {
	frame, err := c.catalog.Encode(catalog.ClientToServer, tag, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		if c.opened {
			c.mu.Unlock()
			return ErrNotConnected
		}
		c.pending = append(c.pending, frame)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(frame)
}

// Reconnect dials again now. A pending countdown or a manual-reconnect wait
// is cancelled; an open socket is closed and redialed without delay.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.manual = false
	if c.cancelWait != nil {
		c.cancelWait()
		return nil
	}
	c.immediate = true
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// Close stops the client. Run returns nil once it notices.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	if c.cancelWait != nil {
		c.cancelWait()
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
