package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/models"
	"github.com/noah-isme/gema-teamchat/internal/observability"
)

// SessionState is a step of the connection lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateJoining
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one websocket connection from handshake to teardown.
type Session struct {
	id       string
	scope    string
	targetID string
	channel  string
	actor    Actor
	conn     Transport
	gateway  *Gateway
	handler  scopeHandler
	limiter  *rate.Limiter
	logger   zerolog.Logger

	send     chan []byte
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	// typing is only touched from the reader goroutine.
	typing bool
}

// SessionID implements Member.
func (s *Session) SessionID() string {
	return s.id
}

// State reports the current lifecycle step.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Enqueue implements Member. It never blocks.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Drop implements Member by closing the connection; the reader then runs the normal teardown.
func (s *Session) Drop(reason string) {
	s.logger.Warn().Str("reason", reason).Msg("session dropped")
	s.stop()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// reject closes a connection that never became active.
func (s *Session) reject(code int, reason string) {
	s.setState(StateClosing)
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.gateway.cfg.WriteWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, closeFrame(code, reason))
	s.finish()
}

func (s *Session) finish() {
	s.stop()
	s.setState(StateClosed)
}

func (s *Session) run(ctx context.Context) {
	g := s.gateway

	g.hub.Join(s.channel, s)
	s.setState(StateActive)
	observability.ActiveSessions().WithLabelValues(s.scope).Inc()

	go s.writer()

	if err := g.presence.MarkOnline(ctx, s.scope, s.targetID, s.actor.UserID, s.id); err != nil {
		s.logger.Warn().Err(err).Msg("failed to mark presence online")
	}
	s.publish(ctx, presenceEvent(s.scope, s.targetID, s.actor, dto.PresenceOnline))
	s.logger.Info().Msg("session active")

	s.reader(ctx)

	s.setState(StateClosing)
	s.teardown()
	observability.ActiveSessions().WithLabelValues(s.scope).Dec()
	s.stop()
	<-s.stopped
	s.setState(StateClosed)
	s.logger.Info().Msg("session closed")
}

func (s *Session) reader(ctx context.Context) {
	cfg := s.gateway.cfg
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.refreshPresence(ctx)
		return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug().Err(err).Msg("session read loop ended")
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		if !s.limiter.Allow() {
			observability.CommandsTotal().WithLabelValues("any", "rate_limited").Inc()
			s.sendError(dto.ErrorCodeRateLimited, "too many commands, slow down")
			continue
		}

		cmd, err := DecodeCommand(data)
		if err != nil {
			observability.CommandsTotal().WithLabelValues("invalid", "rejected").Inc()
			s.sendError(dto.ErrorCodeInvalidPayload, err.Error())
			continue
		}

		s.refreshPresence(ctx)
		if err := s.handler.dispatch(ctx, s, cmd); err != nil {
			observability.CommandsTotal().WithLabelValues(commandLabel(cmd), "error").Inc()
			s.logger.Warn().Err(err).Str("command", cmd.Name()).Msg("command failed")
			s.sendError(errorCode(err), errorMessage(err))
			continue
		}
		observability.CommandsTotal().WithLabelValues(commandLabel(cmd), "ok").Inc()
	}
}

func (s *Session) writer() {
	cfg := s.gateway.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(s.stopped)
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug().Err(err).Msg("session write loop terminated")
				s.stop()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				s.logger.Debug().Err(err).Msg("session ping failed")
				s.stop()
				return
			}
		case <-s.done:
			return
		}
	}
}

// teardown runs presence, typing, offline broadcast and leave in that order.
// Each step gets its own deadline and runs regardless of earlier failures.
func (s *Session) teardown() {
	g := s.gateway

	// Another tab of the same user keeps the entry and suppresses the offline notice.
	offline := true
	s.cleanupStep("presence", func(ctx context.Context) error {
		released, err := g.presence.MarkOffline(ctx, s.scope, s.targetID, s.actor.UserID, s.id)
		if err == nil {
			offline = released
		}
		return err
	})
	s.cleanupStep("typing", func(ctx context.Context) error {
		if !s.typing {
			return nil
		}
		s.typing = false
		return s.handler.stopTyping(ctx, s.actor)
	})
	s.cleanupStep("offline broadcast", func(ctx context.Context) error {
		if !offline {
			return nil
		}
		return g.hub.Publish(ctx, s.channel, presenceEvent(s.scope, s.targetID, s.actor, dto.PresenceOffline), ExcludeSession(s.id))
	})
	s.cleanupStep("leave", func(context.Context) error {
		g.hub.Leave(s.channel, s)
		return nil
	})
}

func (s *Session) cleanupStep(name string, step func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.gateway.cfg.CleanupTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("step", name).Msg("session cleanup step panicked")
		}
	}()
	if err := step(ctx); err != nil {
		s.logger.Warn().Err(err).Str("step", name).Msg("session cleanup step failed")
	}
}

func (s *Session) refreshPresence(ctx context.Context) {
	if err := s.gateway.presence.MarkOnline(ctx, s.scope, s.targetID, s.actor.UserID, s.id); err != nil {
		s.logger.Debug().Err(err).Msg("failed to refresh presence")
	}
}

func (s *Session) publish(ctx context.Context, event dto.Event) {
	if err := s.gateway.hub.Publish(ctx, s.channel, event, ExcludeSession(s.id)); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to relay session event")
	}
}

func (s *Session) sendError(code, message string) {
	event := dto.NewEvent(dto.EventError, dto.ErrorEvent{Code: code, Message: message})
	frame, err := json.Marshal(event)
	if err != nil {
		return
	}
	if !s.Enqueue(frame) {
		s.Drop("outbound queue full")
	}
}

func errorCode(err error) string {
	var unknown unsupportedCommandError
	if errors.As(err, &unknown) {
		return dto.ErrorCodeUnknownCommand
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidationFailed:
		return dto.ErrorCodeValidation
	case apperror.KindNotFound:
		return dto.ErrorCodeNotFound
	case apperror.KindForbidden:
		return dto.ErrorCodeForbidden
	case apperror.KindConflict:
		return dto.ErrorCodeConflict
	case apperror.KindAuthenticationFailed:
		return dto.ErrorCodeForbidden
	default:
		return dto.ErrorCodeUnavailable
	}
}

func errorMessage(err error) string {
	var unknown unsupportedCommandError
	if errors.As(err, &unknown) {
		return unknown.Error()
	}
	return apperror.PublicMessage(err)
}

func commandLabel(cmd Command) string {
	if _, ok := cmd.(UnknownCommand); ok {
		return "unknown"
	}
	return cmd.Name()
}

// scopeHandler is the per-channel-kind half of a session.
type scopeHandler interface {
	channel() string
	dispatch(ctx context.Context, s *Session, cmd Command) error
	stopTyping(ctx context.Context, actor Actor) error
}

type roomScope struct {
	chats  ChatService
	roomID string
}

func (r *roomScope) channel() string {
	return RoomChannel(r.roomID)
}

func (r *roomScope) dispatch(ctx context.Context, s *Session, cmd Command) error {
	switch c := cmd.(type) {
	case SendMessageCommand:
		if _, err := r.chats.SendMessage(ctx, s.actor, r.roomID, c.Content, c.ParentMessageID); err != nil {
			return err
		}
		s.typing = false
		return nil
	case TypingStartCommand:
		if err := r.chats.StartTyping(ctx, s.actor, r.roomID); err != nil {
			return err
		}
		s.typing = true
		return nil
	case TypingStopCommand:
		s.typing = false
		return r.chats.StopTyping(ctx, s.actor, r.roomID)
	case MarkReadCommand:
		return r.chats.MarkRead(ctx, s.actor, r.roomID)
	case ReactionAddCommand:
		_, err := r.chats.ToggleReaction(ctx, s.actor, r.roomID, c.MessageID, c.Emoji)
		return err
	case ReactionRemoveCommand:
		_, err := r.chats.RemoveReaction(ctx, s.actor, r.roomID, c.MessageID, c.Emoji)
		return err
	default:
		return unsupported(cmd)
	}
}

func (r *roomScope) stopTyping(ctx context.Context, actor Actor) error {
	return r.chats.StopTyping(ctx, actor, r.roomID)
}

type directScope struct {
	directs DirectService
	thread  models.DirectMessageThread
}

func (d *directScope) channel() string {
	return ThreadChannel(d.thread)
}

func (d *directScope) dispatch(ctx context.Context, s *Session, cmd Command) error {
	switch c := cmd.(type) {
	case DirectMessageCommand:
		if _, err := d.directs.SendMessage(ctx, s.actor, d.thread.ID, c.Content); err != nil {
			return err
		}
		s.typing = false
		return nil
	case TypingStartCommand:
		if err := d.directs.StartTyping(ctx, s.actor, d.thread); err != nil {
			return err
		}
		s.typing = true
		return nil
	case TypingStopCommand:
		s.typing = false
		return d.directs.StopTyping(ctx, s.actor, d.thread)
	case MarkReadCommand:
		_, err := d.directs.MarkRead(ctx, s.actor, d.thread.ID)
		return err
	default:
		return unsupported(cmd)
	}
}

func (d *directScope) stopTyping(ctx context.Context, actor Actor) error {
	return d.directs.StopTyping(ctx, actor, d.thread)
}

type unsupportedCommandError struct {
	name string
}

func (e unsupportedCommandError) Error() string {
	return "unknown command " + e.name
}

func unsupported(cmd Command) error {
	return unsupportedCommandError{name: cmd.Name()}
}
