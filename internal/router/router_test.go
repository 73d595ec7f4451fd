package router_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/config"
	"github.com/noah-isme/gema-teamchat/internal/handler"
	"github.com/noah-isme/gema-teamchat/internal/router"
	"github.com/noah-isme/gema-teamchat/internal/service"
)

func newApp(probes map[string]handler.HealthProbe) *fiber.App {
	logger := zerolog.New(io.Discard)
	gateway := service.NewGateway(nil, nil, nil, nil, service.NewBroadcastHub(nil, logger), service.GatewayConfig{}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "teamchat-test", RateLimitPerMinute: 100}, router.Dependencies{
		RealtimeHandler: handler.NewRealtimeHandler(gateway, logger),
		HealthProbes:    probes,
	})
	return app
}

func TestHealthReportsProbes(t *testing.T) {
	app := newApp(map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "teamchat-test", resp.Header.Get("X-Application"))
}

func TestHealthDegradedWhenProbeFails(t *testing.T) {
	app := newApp(map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestChatRoutesRequireAuthentication(t *testing.T) {
	app := newApp(nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/rooms", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketRoutesRequireUpgrade(t *testing.T) {
	app := newApp(nil)

	for _, path := range []string{"/ws/chat/room-1", "/ws/dm/thread-1"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
