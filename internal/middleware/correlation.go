package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	headerRequestID     = "X-Request-ID"
	// Browsers cannot set headers on a websocket handshake, so the id may also ride in the query string.
	queryCorrelationID = "correlation_id"
)

type correlationIDKey struct{}

// CorrelationID makes sure every request and websocket handshake carries a correlation identifier.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := incomingCorrelationID(c)

		c.Locals(LocalCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

func incomingCorrelationID(c *fiber.Ctx) string {
	for _, candidate := range []string{
		c.Get(HeaderCorrelationID),
		c.Get(headerRequestID),
		c.Query(queryCorrelationID),
	} {
		if id := strings.TrimSpace(candidate); id != "" && len(id) <= 128 {
			return id
		}
	}
	return uuid.NewString()
}

// ContextWithCorrelation attaches the correlation identifier to ctx. Blank ids leave ctx untouched.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// CorrelationIDFromContext extracts the correlation identifier from ctx, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id := LocalString(c.Locals(LocalCorrelationID)); id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// CorrelatedLogger derives a logger tagged with the correlation id carried by ctx.
func CorrelatedLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return base.With().Str("correlation_id", id).Logger()
	}
	return base
}
