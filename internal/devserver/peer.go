package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rostersync/internal/catalog"
	"github.com/roach88/rostersync/internal/ir"
)

// Error messages sent to clients, by meta type.
const (
	msgAuthFailed = "Failed to authenticate"
	msgNoChange   = "Invalid update. The database was not updated."
)

// peer is one open socket. subject is set once the session authenticates
// and is guarded by Server.mu.
type peer struct {
	id      uint64
	conn    *websocket.Conn
	writeMu sync.Mutex
	subject string
}

func (p *peer) authenticated() bool {
	return p.subject != ""
}

func (p *peer) write(frame []byte, timeout time.Duration) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

// serve reads frames until the socket fails or closes.
func (s *Server) serve(ctx context.Context, p *peer) {
	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session read ended", "session_id", p.id, "error", err)
			}
			return
		}
		s.handleFrame(ctx, p, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, p *peer, frame []byte) {
	env, err := s.cat.Decode(catalog.ClientToServer, frame)
	if err != nil {
		s.logger.Warn("invalid frame", "session_id", p.id, "code", catalog.ValidationCode(err), "error", err)
		s.sendError(p, catalog.ErrorSerde, "decode", err)
		return
	}

	switch env.Type {
	case catalog.TagAuthenticate:
		s.authenticate(ctx, p, env.Data)
	case catalog.TagReplicate:
		s.replicate(ctx, p, env.Data)
	}
}

func (s *Server) authenticate(ctx context.Context, p *peer, data json.RawMessage) {
	var msg catalog.Authenticate
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(p, catalog.ErrorSerde, "authenticate", err)
		return
	}
	claims, err := VerifyToken(s.secret, msg.Token)
	if err != nil {
		s.mu.Lock()
		p.subject = ""
		s.mu.Unlock()
		s.logger.Warn("authentication failed", "session_id", p.id, "error", err)
		s.sendAuthError(p, err)
		return
	}

	// Full is read and sent under mu so no broadcast slips in ahead of it.
	s.mu.Lock()
	defer s.mu.Unlock()
	p.subject = claims.Subject
	if p.subject == "" {
		p.subject = fmt.Sprintf("session-%d", p.id)
	}

	full, err := s.store.Full(ctx)
	if err != nil {
		s.logger.Error("read full snapshot", "session_id", p.id, "error", err)
		s.sendError(p, catalog.ErrorSqlx, "authenticate", err)
		return
	}
	frame, err := s.encodeOperation(full)
	if err != nil {
		s.logger.Error("encode full snapshot", "session_id", p.id, "error", err)
		s.sendError(p, catalog.ErrorSerde, "authenticate", err)
		return
	}
	if err := p.write(frame, s.writeTimeout); err != nil {
		s.logger.Warn("send full snapshot", "session_id", p.id, "error", err)
		return
	}
	s.logger.Info("session authenticated", "session_id", p.id, "subject", p.subject, "students", len(full.Rows))
}

func (s *Server) replicate(ctx context.Context, p *peer, data json.RawMessage) {
	s.mu.Lock()
	authed := p.authenticated()
	s.mu.Unlock()
	if !authed {
		s.logger.Warn("unauthenticated session attempted to replicate", "session_id", p.id)
		s.sendAuthError(p, nil)
		return
	}

	op, err := s.decodeClientOperation(data)
	if err != nil {
		s.sendError(p, catalog.ErrorSerde, "replicate", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.store.Apply(ctx, op)
	if err != nil {
		s.logger.Error("apply operation", "session_id", p.id, "op", op.OpType(), "error", err)
		s.sendError(p, catalog.ErrorSqlx, "replicate", err)
		return
	}
	if !res.Changed {
		s.logger.Debug("operation changed nothing", "session_id", p.id, "op", op.OpType())
		s.sendError(p, catalog.ErrorData, "replicate", nil)
		return
	}

	frame, err := s.encodeOperation(op)
	if err != nil {
		s.logger.Error("encode operation", "seq", res.Seq, "error", err)
		return
	}
	s.broadcastLocked(frame)
	s.logger.Info("operation applied", "session_id", p.id, "op", op.OpType(), "seq", res.Seq)
}

// decodeClientOperation turns a client Replicate payload into the operation
// the store applies. Client AddEntry frames never carry an id; one is
// assigned here.
func (s *Server) decodeClientOperation(data json.RawMessage) (ir.Operation, error) {
	var head struct {
		Type ir.OpType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	if head.Type != ir.OpAddEntry {
		return ir.UnmarshalOperation(data)
	}

	var draft ir.NewEntry
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return ir.AddEntry{
		Hashed: draft.Hashed,
		Date:   draft.Date,
		Entry: ir.Entry{
			ID:    s.ids.Generate(),
			Kind:  draft.Entry.Kind,
			Start: draft.Entry.Start,
			End:   draft.Entry.End,
		},
	}, nil
}

// broadcastLocked writes frame to every authenticated session.
// Callers hold s.mu.
func (s *Server) broadcastLocked(frame []byte) {
	for p := range s.peers {
		if !p.authenticated() {
			continue
		}
		if err := p.write(frame, s.writeTimeout); err != nil {
			s.logger.Warn("broadcast failed", "session_id", p.id, "error", err)
			p.conn.Close()
		}
	}
}

func (s *Server) encodeOperation(op ir.Operation) ([]byte, error) {
	body, err := ir.MarshalOperation(op)
	if err != nil {
		return nil, err
	}
	return s.cat.Encode(catalog.ServerToClient, catalog.TagReplicate, json.RawMessage(body))
}

func (s *Server) sendAuthError(p *peer, cause error) {
	payload := catalog.ErrorPayload{
		Message: msgAuthFailed,
		Meta:    catalog.ErrorMeta{Type: catalog.ErrorAuth, Location: "authenticate"},
	}
	if cause != nil {
		payload.Meta.Source = cause.Error()
	}
	s.send(p, payload)
}

func (s *Server) sendError(p *peer, typ catalog.ErrorType, location string, cause error) {
	payload := catalog.ErrorPayload{Meta: catalog.ErrorMeta{Type: typ, Location: location}}
	switch {
	case typ == catalog.ErrorData:
		payload.Message = msgNoChange
	case cause != nil:
		payload.Message = fmt.Sprintf("At %s: %s error: %v", location, typ, cause)
		payload.Meta.Source = cause.Error()
	default:
		payload.Message = fmt.Sprintf("At %s: %s error", location, typ)
	}
	s.send(p, payload)
}

func (s *Server) send(p *peer, payload catalog.ErrorPayload) {
	frame, err := s.cat.Encode(catalog.ServerToClient, catalog.TagError, payload)
	if err != nil {
		s.logger.Error("encode error frame", "error", err)
		return
	}
	if err := p.write(frame, s.writeTimeout); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("send error frame", "session_id", p.id, "error", err)
	}
}
