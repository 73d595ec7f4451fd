package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/middleware"
	"github.com/noah-isme/gema-teamchat/internal/service"
)

// RealtimeHandler upgrades room and DM connections and hands them to the gateway.
type RealtimeHandler struct {
	gateway *service.Gateway
	logger  zerolog.Logger
}

// NewRealtimeHandler creates the websocket handler.
func NewRealtimeHandler(gateway *service.Gateway, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		gateway: gateway,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket routes under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Get("/chat/:room_id", middleware.WithWebsocketAuth(), websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, service.ScopeRoom, conn.Params("room_id"))
	}))
	router.Get("/dm/:thread_id", middleware.WithWebsocketAuth(), websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, service.ScopeDirect, conn.Params("thread_id"))
	}))
}

func (h *RealtimeHandler) serve(conn *websocket.Conn, scope, targetID string) {
	correlationID := middleware.LocalString(conn.Locals(middleware.LocalCorrelationID))
	ctx := middleware.ContextWithCorrelation(context.Background(), correlationID)

	logger := middleware.CorrelatedLogger(ctx, h.logger)
	logger.Debug().Str("scope", scope).Str("target_id", targetID).Msg("websocket upgraded")
	h.gateway.Serve(conn, service.ConnectRequest{
		Scope:         scope,
		TargetID:      targetID,
		Token:         middleware.LocalString(conn.Locals(middleware.LocalWebsocketToken)),
		CorrelationID: correlationID,
		Context:       ctx,
	})
}
