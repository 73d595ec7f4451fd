package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/middleware"
	"github.com/noah-isme/gema-teamchat/internal/service"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

var errMissingIdentity = errors.New("authentication required")

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseHistoryQuery(c *fiber.Ctx) (dto.HistoryQuery, error) {
	query := dto.HistoryQuery{}
	if before := strings.TrimSpace(c.Query("before")); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return dto.HistoryQuery{}, errors.New("invalid before timestamp")
		}
		query.Before = &parsed
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return dto.HistoryQuery{}, errors.New("invalid limit")
	}
	query.Limit = limit
	return query, nil
}

// actorFromContext builds a REST actor; REST callers have no live session to exclude from broadcasts.
func actorFromContext(c *fiber.Ctx) (service.Actor, error) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return service.Actor{}, errMissingIdentity
	}
	return service.Actor{Identity: identity}, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// bindBody parses and validates a JSON body, writing the 400 response itself when it fails.
func bindBody(c *fiber.Ctx, validate *validator.Validate, target interface{}) (bool, error) {
	if err := c.BodyParser(target); err != nil {
		return false, utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if validate != nil {
		if err := validate.Struct(target); err != nil {
			if isValidationError(err) {
				return false, utils.SendError(c, fiber.StatusBadRequest, err.Error())
			}
			return false, utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	return true, nil
}
