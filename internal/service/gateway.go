package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/observability"
)

// Session scopes.
const (
	ScopeRoom   = "room"
	ScopeDirect = "dm"
)

// Transport is the part of a websocket connection a session drives. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// GatewayConfig tunes session timing and flow control.
type GatewayConfig struct {
	AuthTimeout    time.Duration
	SendBuffer     int
	CommandRate    float64
	CommandBurst   int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	CleanupTimeout time.Duration
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.CommandBurst <= 0 {
		c.CommandBurst = 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = 5 * time.Second
	}
	return c
}

// ConnectRequest carries what the upgrade request told us about a new connection.
type ConnectRequest struct {
	Scope         string
	TargetID      string
	Token         string
	CorrelationID string
	Context       context.Context
}

// Gateway authenticates websocket connections, joins them to their channel and runs their sessions.
type Gateway struct {
	resolver auth.Resolver
	chats    ChatService
	directs  DirectService
	presence *PresenceTracker
	hub      *BroadcastHub
	cfg      GatewayConfig
	logger   zerolog.Logger
}

// NewGateway wires the session manager.
func NewGateway(resolver auth.Resolver, chats ChatService, directs DirectService, presence *PresenceTracker, hub *BroadcastHub, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		resolver: resolver,
		chats:    chats,
		directs:  directs,
		presence: presence,
		hub:      hub,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "chat_gateway").Logger(),
	}
}

// Serve owns conn until the session is closed. It blocks for the lifetime of the connection.
func (g *Gateway) Serve(conn Transport, req ConnectRequest) {
	baseCtx := req.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	session := &Session{
		id:       uuid.NewString(),
		scope:    req.Scope,
		targetID: req.TargetID,
		conn:     conn,
		gateway:  g,
		send:     make(chan []byte, g.cfg.SendBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		limiter:  newCommandLimiter(g.cfg.CommandRate, g.cfg.CommandBurst),
	}
	session.setState(StateConnecting)
	session.logger = g.logger.With().
		Str("session_id", session.id).
		Str("scope", req.Scope).
		Str("target_id", req.TargetID).
		Str("correlation_id", req.CorrelationID).
		Logger()

	session.setState(StateAuthenticating)
	identity, err := g.authenticate(baseCtx, session, req.Token)
	if err != nil {
		outcome := "unauthenticated"
		code := apperror.CloseUnauthenticated
		if errors.Is(err, errAuthTimeout) {
			outcome = "auth_timeout"
			code = apperror.CloseAuthTimeout
		}
		if errors.Is(err, errPeerGone) {
			observability.SessionsTotal().WithLabelValues(req.Scope, "abandoned").Inc()
			session.finish()
			return
		}
		observability.SessionsTotal().WithLabelValues(req.Scope, outcome).Inc()
		session.reject(code, apperror.PublicMessage(err))
		return
	}
	session.actor = Actor{Identity: identity, SessionID: session.id}
	session.logger = session.logger.With().Str("user_id", identity.UserID).Logger()

	session.setState(StateJoining)
	handler, err := g.scopeFor(baseCtx, session)
	if err != nil {
		observability.SessionsTotal().WithLabelValues(req.Scope, string(apperror.KindOf(err))).Inc()
		session.logger.Info().Err(err).Msg("session join rejected")
		session.reject(apperror.CloseCode(err), joinRejectReason(req.Scope, err))
		return
	}
	session.handler = handler
	session.channel = handler.channel()
	session.logger = session.logger.With().Str("channel", session.channel).Logger()

	observability.SessionsTotal().WithLabelValues(req.Scope, "accepted").Inc()
	session.run(baseCtx)
}

var (
	errAuthTimeout = errors.New("authentication timed out")
	errPeerGone    = errors.New("connection closed before authentication")
)

// authenticate resolves the token from the upgrade request or, when absent, from the first frame.
func (g *Gateway) authenticate(ctx context.Context, session *Session, token string) (auth.Identity, error) {
	deadline := time.Now().Add(g.cfg.AuthTimeout)

	if token == "" {
		if err := session.conn.SetReadDeadline(deadline); err != nil {
			return auth.Identity{}, errPeerGone
		}
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if (errors.As(err, &netErr) && netErr.Timeout()) || !time.Now().Before(deadline) {
				return auth.Identity{}, errAuthTimeout
			}
			return auth.Identity{}, errPeerGone
		}
		cmd, err := DecodeCommand(data)
		if err != nil {
			return auth.Identity{}, apperror.Unauthenticated("first frame must authenticate")
		}
		authCmd, ok := cmd.(AuthenticateCommand)
		if !ok {
			return auth.Identity{}, apperror.Unauthenticated("first frame must authenticate")
		}
		token = authCmd.Token
		_ = session.conn.SetReadDeadline(time.Time{})
	}

	resolveCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	identity, err := g.resolver.Resolve(resolveCtx, token)
	if err != nil {
		session.logger.Info().Err(err).Msg("session authentication failed")
		if apperror.KindOf(err) != apperror.KindAuthenticationFailed {
			return auth.Identity{}, apperror.Unauthenticated("authentication failed")
		}
		return auth.Identity{}, err
	}
	if identity.UserID == "" {
		return auth.Identity{}, apperror.Unauthenticated("identity has no user id")
	}
	return identity, nil
}

func (g *Gateway) scopeFor(ctx context.Context, session *Session) (scopeHandler, error) {
	switch session.scope {
	case ScopeRoom:
		room, err := g.chats.AuthorizeRoom(ctx, session.actor, session.targetID)
		if err != nil {
			return nil, err
		}
		return &roomScope{chats: g.chats, roomID: room.ID}, nil
	case ScopeDirect:
		thread, err := g.directs.AuthorizeThread(ctx, session.actor, session.targetID)
		if err != nil {
			return nil, err
		}
		return &directScope{directs: g.directs, thread: thread}, nil
	default:
		return nil, apperror.NotFound("unknown channel scope %q", session.scope)
	}
}

func newCommandLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func presenceEvent(scope, targetID string, actor Actor, status string) dto.Event {
	event := dto.PresenceEvent{UserID: actor.UserID, UserName: actor.UserName, Status: status}
	if scope == ScopeDirect {
		event.ThreadID = targetID
	} else {
		event.RoomID = targetID
	}
	return dto.NewEvent(dto.EventUserPresence, event)
}

// maxCloseReason keeps the close payload under the 125 byte control frame limit.
const maxCloseReason = 120

func closeFrame(code int, reason string) []byte {
	reason = strings.ToValidUTF8(reason, "")
	if len(reason) > maxCloseReason {
		cut := maxCloseReason
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	return websocket.FormatCloseMessage(code, reason)
}

// joinRejectReason avoids echoing the client supplied target id back in the close frame.
func joinRejectReason(scope string, err error) string {
	if apperror.KindOf(err) != apperror.KindNotFound {
		return apperror.PublicMessage(err)
	}
	switch scope {
	case ScopeRoom:
		return "room not found"
	case ScopeDirect:
		return "thread not found"
	default:
		return "channel not found"
	}
}
