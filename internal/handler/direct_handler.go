package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/service"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

// DirectHandler exposes the direct message REST endpoints.
type DirectHandler struct {
	service   service.DirectService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewDirectHandler creates a direct message handler.
func NewDirectHandler(service service.DirectService, validator *validator.Validate, logger zerolog.Logger) *DirectHandler {
	return &DirectHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "direct_handler").Logger(),
	}
}

// Register binds DM routes under the provided router group.
func (h *DirectHandler) Register(router fiber.Router) {
	router.Post("/dm/threads", h.openThread)
	router.Get("/dm/threads", h.listThreads)
	router.Get("/dm/threads/:id/messages", h.history)
	router.Post("/dm/threads/:id/messages", h.sendMessage)
	router.Post("/dm/threads/:id/read", h.markRead)
}

func (h *DirectHandler) openThread(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.DirectThreadCreateRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	thread, created, err := h.service.OpenThread(c.UserContext(), actor, req)
	if err != nil {
		return h.fail(c, err, "open thread")
	}
	if created {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "thread created", thread)
	}
	return utils.SendSuccess(c, "thread retrieved", thread)
}

func (h *DirectHandler) listThreads(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	threads, err := h.service.ListThreads(c.UserContext(), actor, limit)
	if err != nil {
		return h.fail(c, err, "list threads")
	}
	return utils.SendSuccess(c, "threads retrieved", threads)
}

func (h *DirectHandler) history(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}
	query, err := parseHistoryQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := h.service.History(c.UserContext(), actor, c.Params("id"), query)
	if err != nil {
		return h.fail(c, err, "load dm history")
	}
	return utils.SendSuccess(c, "history retrieved", page)
}

func (h *DirectHandler) sendMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.DirectMessageCreateRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	message, err := h.service.SendMessage(c.UserContext(), actor, c.Params("id"), req.Content)
	if err != nil {
		return h.fail(c, err, "send dm")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *DirectHandler) markRead(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	result, err := h.service.MarkRead(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "mark thread read")
	}
	return utils.SendSuccess(c, "thread marked read", result)
}

func (h *DirectHandler) fail(c *fiber.Ctx, err error, op string) error {
	requestLogger(h.logger, c).Warn().Err(err).Str("op", op).Msg("direct message request failed")
	return utils.SendAppError(c, err)
}
