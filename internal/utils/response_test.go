package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func TestSendSuccessDefaultsMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "", map[string]string{"hello": "world"})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var payload envelope
	decode(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "world", payload.Data["hello"])
}

func TestSendAppErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{apperror.Forbidden("not a member"), fiber.StatusForbidden, "not a member"},
		{apperror.NotFound("room missing"), fiber.StatusNotFound, "room missing"},
		{apperror.Validation("content required"), fiber.StatusBadRequest, "content required"},
		{apperror.Conflict("last owner"), fiber.StatusConflict, "last owner"},
		{apperror.Unauthenticated("bad token"), fiber.StatusUnauthorized, "bad token"},
		{apperror.Transient(errors.New("dial tcp: refused")), fiber.StatusServiceUnavailable, "temporarily unavailable, please retry"},
	}
	for _, tc := range cases {
		app := fiber.New()
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error {
			return utils.SendAppError(c, err)
		})

		resp := performRequest(t, app, http.MethodGet, "/")
		require.Equal(t, tc.status, resp.StatusCode)

		var payload envelope
		decode(t, resp, &payload)
		require.False(t, payload.Success)
		require.Equal(t, tc.message, payload.Message)
		require.Nil(t, payload.Data)
	}
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
