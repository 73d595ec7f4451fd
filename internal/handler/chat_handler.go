package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/service"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

// ChatHandler exposes the room and message REST endpoints.
type ChatHandler struct {
	service   service.ChatService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/rooms", h.createRoom)
	router.Get("/rooms", h.listRooms)
	router.Get("/rooms/:id", h.getRoom)
	router.Post("/rooms/:id/archive", h.archiveRoom)
	router.Post("/rooms/:id/join", h.joinRoom)
	router.Post("/rooms/:id/leave", h.leaveRoom)
	router.Get("/rooms/:id/messages", h.history)
	router.Post("/rooms/:id/messages", h.sendMessage)
	router.Post("/rooms/:id/attachments", h.sendAttachment)
	router.Post("/rooms/:id/read", h.markRead)

	router.Patch("/messages/:id", h.editMessage)
	router.Delete("/messages/:id", h.deleteMessage)
	router.Post("/messages/:id/reactions", h.toggleReaction)
	router.Delete("/messages/:id/reactions", h.removeReaction)
}

func (h *ChatHandler) createRoom(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.RoomCreateRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	room, err := h.service.CreateRoom(c.UserContext(), actor, req)
	if err != nil {
		return h.fail(c, err, "create room")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "room created", room)
}

func (h *ChatHandler) listRooms(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	rooms, err := h.service.ListRooms(c.UserContext(), actor, limit)
	if err != nil {
		return h.fail(c, err, "list rooms")
	}
	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *ChatHandler) getRoom(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	room, err := h.service.GetRoom(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "get room")
	}
	return utils.SendSuccess(c, "room retrieved", room)
}

func (h *ChatHandler) archiveRoom(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.ArchiveRoom(c.UserContext(), actor, c.Params("id")); err != nil {
		return h.fail(c, err, "archive room")
	}
	return utils.SendSuccess(c, "room archived", nil)
}

func (h *ChatHandler) joinRoom(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	member, err := h.service.JoinRoom(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "join room")
	}
	return utils.SendSuccess(c, "joined room", member)
}

func (h *ChatHandler) leaveRoom(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.LeaveRoom(c.UserContext(), actor, c.Params("id")); err != nil {
		return h.fail(c, err, "leave room")
	}
	return utils.SendSuccess(c, "left room", nil)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
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
		return h.fail(c, err, "load history")
	}
	return utils.SendSuccess(c, "history retrieved", page)
}

func (h *ChatHandler) sendMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.MessageCreateRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	message, err := h.service.SendMessage(c.UserContext(), actor, c.Params("id"), req.Content, req.ParentMessageID)
	if err != nil {
		return h.fail(c, err, "send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) sendAttachment(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	message, err := h.service.SendAttachment(c.UserContext(), actor, c.Params("id"), file, c.FormValue("caption"))
	if err != nil {
		return h.fail(c, err, "send attachment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment sent", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.MarkRead(c.UserContext(), actor, c.Params("id")); err != nil {
		return h.fail(c, err, "mark room read")
	}
	return utils.SendSuccess(c, "room marked read", nil)
}

func (h *ChatHandler) editMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.MessageUpdateRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	message, err := h.service.EditMessage(c.UserContext(), actor, c.Params("id"), req.Content)
	if err != nil {
		return h.fail(c, err, "edit message")
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.DeleteMessage(c.UserContext(), actor, c.Params("id")); err != nil {
		return h.fail(c, err, "delete message")
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *ChatHandler) toggleReaction(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req dto.ReactionRequest
	if ok, err := bindBody(c, h.validator, &req); !ok {
		return err
	}

	event, err := h.service.ToggleReaction(c.UserContext(), actor, "", c.Params("id"), req.Emoji)
	if err != nil {
		return h.fail(c, err, "toggle reaction")
	}
	return utils.SendSuccess(c, "reaction "+event.Action, event)
}

func (h *ChatHandler) removeReaction(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	event, err := h.service.RemoveReaction(c.UserContext(), actor, "", c.Params("id"), c.Query("emoji"))
	if err != nil {
		return h.fail(c, err, "remove reaction")
	}
	return utils.SendSuccess(c, "reaction removed", event)
}

func (h *ChatHandler) fail(c *fiber.Ctx, err error, op string) error {
	requestLogger(h.logger, c).Warn().Err(err).Str("op", op).Msg("chat request failed")
	return utils.SendAppError(c, err)
}
