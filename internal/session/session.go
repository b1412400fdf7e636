package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rostersync/internal/catalog"
	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/engine"
	"github.com/roach88/rostersync/internal/ir"
	"github.com/roach88/rostersync/internal/transport"
)

// ErrOffline is returned by Send while the socket is down.
var ErrOffline = errors.New("session: edits made while disconnected will NOT apply")

// Credentials authorize the subscription and unlock student fields.
type Credentials struct {
	Token string
	Key   cipher.FieldCipher
}

// Option configures a Session.
type Option func(*config)

type config struct {
	engineOpts    []engine.EngineOption
	transportOpts []transport.Option
	notifier      Notifier
	logger        *slog.Logger
	creds         *Credentials
	onExpired     func()
}

// WithCredentials sets the initial credentials.
func WithCredentials(c Credentials) Option {
	return func(cfg *config) {
		cfg.creds = &c
	}
}

// WithNotifier sets where user-facing notices go. Defaults to LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(cfg *config) {
		cfg.notifier = n
	}
}

// WithLogger sets the logger for the session, its engine and its client.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(cfg *config) {
		cfg.engineOpts = append(cfg.engineOpts, opts...)
	}
}

// WithTransportOptions passes options through to the socket client.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(cfg *config) {
		cfg.transportOpts = append(cfg.transportOpts, opts...)
	}
}

// WithExpiredHandler is called after the server rejects the credentials.
func WithExpiredHandler(fn func()) Option {
	return func(cfg *config) {
		cfg.onExpired = fn
	}
}

// Session is a live, replicated roster.
type Session struct {
	engine    *engine.Engine
	client    *transport.Client
	notifier  Notifier
	logger    *slog.Logger
	onExpired func()

	mu        sync.Mutex
	creds     *Credentials
	ready     Ready
	countdown int
}

// New creates a session subscribing to url. Nothing is dialed until Run.
func New(url string, opts ...Option) (*Session, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.notifier == nil {
		cfg.notifier = LogNotifier{Logger: cfg.logger}
	}

	s := &Session{
		notifier:  cfg.notifier,
		logger:    cfg.logger,
		onExpired: cfg.onExpired,
		ready:     Ready{Task: TaskConnecting, Max: 2},
	}

	engOpts := []engine.EngineOption{engine.WithLogger(cfg.logger)}
	engOpts = append(engOpts, cfg.engineOpts...)
	engOpts = append(engOpts,
		engine.WithProgress(progress{s}),
		engine.WithErrorHandler(s.applyFailed),
	)
	if cfg.creds != nil {
		creds := *cfg.creds
		s.creds = &creds
		engOpts = append(engOpts, engine.WithCipher(creds.Key))
	}
	s.engine = engine.New(engOpts...)

	trOpts := []transport.Option{transport.WithLogger(cfg.logger)}
	trOpts = append(trOpts, cfg.transportOpts...)
	client, err := transport.New(url, transport.Hooks{
		Connect:    s.onConnect,
		Disconnect: s.onDisconnect,
		Message:    s.onMessage,
		Countdown:  s.onCountdown,
		GiveUp:     s.onGiveUp,
	}, trOpts...)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.client = client
	return s, nil
}

// Run drives the engine and the socket until ctx is cancelled or Close is
// called.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.engine.Run(gctx)
	})
	g.Go(func() error {
		err := s.client.Run(gctx)
		// The client stopping on Close also stops the engine.
		s.engine.Stop()
		return err
	})
	return g.Wait()
}

// Close disconnects and stops the engine once queued operations are applied.
func (s *Session) Close() error {
	err := s.client.Close()
	s.engine.Stop()
	return err
}

// Engine returns the underlying engine.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Snapshot returns the latest roster snapshot.
func (s *Session) Snapshot() engine.Snapshot {
	return s.engine.Snapshot()
}

// Loading reports whether an operation is being applied.
func (s *Session) Loading() bool {
	return s.engine.Loading()
}

// Ready returns the current readiness.
func (s *Session) Ready() Ready {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Countdown returns the seconds until the next automatic reconnect, or 0.
func (s *Session) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// Connected reports whether the socket is open.
func (s *Session) Connected() bool {
	return s.client.Assert(transport.StateConnected)
}

// NeedsReconnect reports whether automatic reconnects are exhausted.
func (s *Session) NeedsReconnect() bool {
	return s.client.NeedsManualReconnect()
}

// Reconnect dials again immediately.
func (s *Session) Reconnect() error {
	return s.client.Reconnect()
}

// SetCredentials replaces the credentials. The field key takes effect for
// the next operation. If the token or the key changed while connected, the
// subscription is re-authenticated so the roster is reloaded under them.
func (s *Session) SetCredentials(c Credentials) error {
	s.mu.Lock()
	prev := s.creds
	s.creds = &c
	s.mu.Unlock()

	s.engine.SetCipher(c.Key)

	if prev != nil && prev.Token == c.Token && sameKey(prev.Key, c.Key) {
		return nil
	}
	if !s.Connected() {
		return nil
	}
	return s.authenticate(c.Token)
}

// sameKey reports whether a and b are the same key. Keys of types that
// cannot be compared are treated as different.
func sameKey(a, b cipher.FieldCipher) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// ClearCredentials forgets the credentials. Later operations are dropped
// until new credentials are set.
func (s *Session) ClearCredentials() {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	s.engine.SetCipher(nil)
}

// HasCredentials reports whether credentials are held.
func (s *Session) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds != nil
}

// Send replicates a local edit to the server. It is never queued: while
// disconnected the edit is rejected with ErrOffline.
func (s *Session) Send(op ir.Operation) error {
	if !s.Connected() {
		s.notifier.Error(MsgOffline)
		return ErrOffline
	}
	raw, err := ir.MarshalOperation(op)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := s.client.Send(catalog.TagReplicate, json.RawMessage(raw)); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			s.notifier.Error(MsgOffline)
			return ErrOffline
		}
		return fmt.Errorf("session: send %s: %w", op.OpType(), err)
	}
	return nil
}

// Undo reverts the most recent applied operation locally.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	return s.engine.Undo(ctx)
}

// Redo re-applies the most recently undone operation locally.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	return s.engine.Redo(ctx)
}

func (s *Session) authenticate(token string) error {
	err := s.client.Send(catalog.TagAuthenticate, catalog.Authenticate{Token: token})
	if err != nil {
		s.logger.Warn("authenticate failed", "error", err)
		return fmt.Errorf("session: authenticate: %w", err)
	}
	s.logger.Debug("authenticate sent")
	return nil
}

func (s *Session) onConnect(*transport.Client) {
	s.mu.Lock()
	s.ready.Progress++
	s.countdown = 0
	creds := s.creds
	s.mu.Unlock()

	if creds == nil {
		s.logger.Info("connected without credentials, not subscribing")
		return
	}
	_ = s.authenticate(creds.Token)
}

func (s *Session) onDisconnect(_ *transport.Client, err error) {
	s.logger.Debug("socket closed", "error", err)
}

func (s *Session) onMessage(_ *transport.Client, env catalog.Envelope) {
	switch env.Type {
	case catalog.TagReplicate:
		s.mu.Lock()
		if !s.ready.OK {
			s.ready.Progress++
		}
		s.mu.Unlock()

		op, err := ir.UnmarshalOperation(env.Data)
		if err != nil {
			s.notifier.Error(fmt.Sprintf("%s: %v", MsgApplyFailed, err))
			return
		}
		if !s.engine.Enqueue(op) {
			s.logger.Warn("engine stopped, operation dropped", "op", op.OpType())
		}

	case catalog.TagError:
		var p catalog.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.logger.Warn("undecodable server error", "error", err)
			return
		}
		s.logger.Warn("server error",
			"message", p.Message,
			"type", p.Meta.Type,
			"source", p.Meta.Source,
			"location", p.Meta.Location,
		)
		if p.Meta.Type == catalog.ErrorAuth {
			s.ClearCredentials()
			s.notifier.Warn(MsgSessionExpired)
			if s.onExpired != nil {
				s.onExpired()
			}
		}
		s.notifier.Error(p.Message)
	}
}

func (s *Session) onCountdown(_ *transport.Client, _ int, remaining time.Duration) {
	secs := int(math.Ceil(remaining.Seconds()))
	s.mu.Lock()
	s.countdown = secs
	s.mu.Unlock()
	s.notifier.Warn(fmt.Sprintf("Reconnecting… in %d seconds", secs))
}

func (s *Session) onGiveUp(*transport.Client) {
	s.mu.Lock()
	s.countdown = 0
	s.mu.Unlock()
	s.notifier.Error(MsgTimedOut)
}

func (s *Session) applyFailed(op ir.Operation, err error) {
	s.notifier.Error(fmt.Sprintf("%s: %v", MsgApplyFailed, err))
}
