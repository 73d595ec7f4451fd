package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDSources(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/probe", func(c *fiber.Ctx) error {
		require.Equal(t, GetCorrelationID(c), CorrelationIDFromContext(c.UserContext()))
		return c.SendString(GetCorrelationID(c))
	})

	cases := []struct {
		name   string
		target string
		header map[string]string
		want   string
	}{
		{"correlation header", "/probe", map[string]string{HeaderCorrelationID: "corr-1", "X-Request-ID": "req-1"}, "corr-1"},
		{"request id header", "/probe", map[string]string{"X-Request-ID": "req-2"}, "req-2"},
		{"query for websocket clients", "/probe?correlation_id=ws-3", nil, "ws-3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.Header.Get(HeaderCorrelationID))
		})
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.NoError(t, err)
	_, err = uuid.Parse(resp.Header.Get(HeaderCorrelationID))
	require.NoError(t, err)
}

func TestContextWithCorrelation(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  ")
	require.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelation(context.Background(), " abc ")
	require.Equal(t, "abc", CorrelationIDFromContext(ctx))

	var buf bytes.Buffer
	logger := CorrelatedLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), `"correlation_id":"abc"`)
}
