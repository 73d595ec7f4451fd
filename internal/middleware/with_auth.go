package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

// Locals shared with upgraded websocket handlers.
const (
	LocalWebsocketToken = "ws_token"
	LocalCorrelationID  = "correlation_id"
)

// WithWebsocketAuth accepts only websocket upgrades and carries the caller's token into the upgraded
// connection. The token comes from the token query parameter or a bearer Authorization header; when
// neither is present the session expects an authenticate frame instead.
func WithWebsocketAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
		}

		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = auth.BearerToken(c.Get("Authorization"))
		}
		c.Locals(LocalWebsocketToken, token)

		return c.Next()
	}
}

// LocalString reads a string local, returning "" for absent or non string values.
func LocalString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
