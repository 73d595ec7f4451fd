package service

import (
	"context"
	"mime/multipart"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/models"
	"github.com/noah-isme/gema-teamchat/internal/repository"
)

// Actor is the identity performing an operation plus the live session it came from, if any.
type Actor struct {
	auth.Identity
	SessionID string
}

func (a Actor) publishOptions() []PublishOption {
	if a.SessionID == "" {
		return nil
	}
	return []PublishOption{ExcludeSession(a.SessionID)}
}

// ChatService holds the room use-cases shared by REST handlers and websocket sessions.
type ChatService interface {
	CreateRoom(ctx context.Context, actor Actor, req dto.RoomCreateRequest) (dto.RoomResponse, error)
	ListRooms(ctx context.Context, actor Actor, limit int) ([]dto.RoomResponse, error)
	GetRoom(ctx context.Context, actor Actor, roomID string) (dto.RoomResponse, error)
	ArchiveRoom(ctx context.Context, actor Actor, roomID string) error
	JoinRoom(ctx context.Context, actor Actor, roomID string) (dto.MemberResponse, error)
	LeaveRoom(ctx context.Context, actor Actor, roomID string) error
	AuthorizeRoom(ctx context.Context, actor Actor, roomID string) (models.Room, error)
	History(ctx context.Context, actor Actor, roomID string, query dto.HistoryQuery) (dto.MessagePage, error)
	SendMessage(ctx context.Context, actor Actor, roomID, content string, parentID *string) (dto.MessageResponse, error)
	SendAttachment(ctx context.Context, actor Actor, roomID string, file *multipart.FileHeader, caption string) (dto.MessageResponse, error)
	EditMessage(ctx context.Context, actor Actor, messageID, content string) (dto.MessageResponse, error)
	DeleteMessage(ctx context.Context, actor Actor, messageID string) error
	ToggleReaction(ctx context.Context, actor Actor, roomID, messageID, emoji string) (dto.ReactionEvent, error)
	RemoveReaction(ctx context.Context, actor Actor, roomID, messageID, emoji string) (dto.ReactionEvent, error)
	StartTyping(ctx context.Context, actor Actor, roomID string) error
	StopTyping(ctx context.Context, actor Actor, roomID string) error
	MarkRead(ctx context.Context, actor Actor, roomID string) error
}

var mentionPattern = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9._-]{1,64})`)

type chatService struct {
	rooms       repository.RoomRepository
	messages    repository.MessageRepository
	typing      repository.TypingRepository
	hub         *BroadcastHub
	attachments AttachmentService
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewChatService wires the room use-cases. attachments may be nil when uploads are disabled.
func NewChatService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	typing repository.TypingRepository,
	hub *BroadcastHub,
	attachments AttachmentService,
	validate *validator.Validate,
	logger zerolog.Logger,
) ChatService {
	return &chatService{
		rooms:       rooms,
		messages:    messages,
		typing:      typing,
		hub:         hub,
		attachments: attachments,
		validator:   validate,
		sanitizer:   newContentSanitizer(),
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-teamchat/internal/service/chat"),
	}
}

func newContentSanitizer() *bluemonday.Policy {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")
	return sanitizer
}

func (s *chatService) CreateRoom(ctx context.Context, actor Actor, req dto.RoomCreateRequest) (dto.RoomResponse, error) {
	if err := s.validate(req); err != nil {
		return dto.RoomResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "chat.room.create", trace.WithAttributes(attribute.String("chat.user_id", actor.UserID)))
	defer span.End()

	roomType := req.RoomType
	if roomType == "" {
		roomType = models.RoomTypePublic
	}
	room := models.Room{
		Name:        strings.TrimSpace(s.sanitizer.Sanitize(req.Name)),
		Description: strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		RoomType:    roomType,
		ProjectID:   req.ProjectID,
		CreatedBy:   actor.UserID,
	}
	if room.Name == "" {
		return dto.RoomResponse{}, apperror.Validation("room name must not be empty")
	}
	owner := models.RoomMember{
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		UserEmail: actor.UserEmail,
		JoinedAt:  time.Now().UTC(),
	}
	if err := s.rooms.Create(ctx, &room, &owner); err != nil {
		span.RecordError(err)
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Str("room_id", room.ID).Str("user_id", actor.UserID).Msg("room created")
	return dto.NewRoomResponse(room), nil
}

func (s *chatService) ListRooms(ctx context.Context, actor Actor, limit int) ([]dto.RoomResponse, error) {
	rooms, err := s.rooms.ListForUser(ctx, actor.UserID, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomResponseSlice(rooms), nil
}

func (s *chatService) GetRoom(ctx context.Context, actor Actor, roomID string) (dto.RoomResponse, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return dto.RoomResponse{}, err
	}
	if err := s.checkAccess(ctx, actor, room); err != nil {
		return dto.RoomResponse{}, err
	}
	return dto.NewRoomResponse(room), nil
}

func (s *chatService) ArchiveRoom(ctx context.Context, actor Actor, roomID string) error {
	if _, err := s.rooms.GetActive(ctx, roomID); err != nil {
		return err
	}
	member, err := s.rooms.GetMember(ctx, roomID, actor.UserID)
	if err != nil || !member.IsManager() {
		return apperror.Forbidden("only room owners or admins can archive room %s", roomID)
	}
	if err := s.rooms.Archive(ctx, roomID); err != nil {
		return err
	}
	s.logger.Info().Str("room_id", roomID).Str("user_id", actor.UserID).Msg("room archived")
	return nil
}

// JoinRoom adds the actor to a public or project room. Private rooms only admit existing members.
func (s *chatService) JoinRoom(ctx context.Context, actor Actor, roomID string) (dto.MemberResponse, error) {
	room, err := s.rooms.GetActive(ctx, roomID)
	if err != nil {
		return dto.MemberResponse{}, err
	}
	if isRestricted(room) {
		member, err := s.rooms.GetMember(ctx, roomID, actor.UserID)
		if err != nil {
			return dto.MemberResponse{}, apperror.Forbidden("room %s is private", roomID)
		}
		return dto.NewMemberResponse(member), nil
	}

	member, err := s.rooms.AddMember(ctx, &models.RoomMember{
		RoomID:    roomID,
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		UserEmail: actor.UserEmail,
	})
	if err != nil {
		return dto.MemberResponse{}, err
	}
	return dto.NewMemberResponse(member), nil
}

func (s *chatService) LeaveRoom(ctx context.Context, actor Actor, roomID string) error {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return err
	}
	return s.rooms.RemoveMember(ctx, roomID, actor.UserID)
}

// AuthorizeRoom resolves the room a session wants to join: it must exist, not be archived,
// and private rooms require a membership.
func (s *chatService) AuthorizeRoom(ctx context.Context, actor Actor, roomID string) (models.Room, error) {
	room, err := s.rooms.GetActive(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.checkAccess(ctx, actor, room); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (s *chatService) checkAccess(ctx context.Context, actor Actor, room models.Room) error {
	if !isRestricted(room) {
		return nil
	}
	if _, err := s.rooms.GetMember(ctx, room.ID, actor.UserID); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return apperror.Forbidden("user %s is not a member of room %s", actor.UserID, room.ID)
		}
		return err
	}
	return nil
}

func isRestricted(room models.Room) bool {
	return room.RoomType == models.RoomTypePrivate || room.RoomType == models.RoomTypeDirect
}

func (s *chatService) History(ctx context.Context, actor Actor, roomID string, query dto.HistoryQuery) (dto.MessagePage, error) {
	if err := s.validate(query); err != nil {
		return dto.MessagePage{}, err
	}
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return dto.MessagePage{}, err
	}
	if err := s.checkAccess(ctx, actor, room); err != nil {
		return dto.MessagePage{}, err
	}

	messages, hasMore, err := s.messages.ListByRoom(ctx, roomID, query.Before, query.Limit)
	if err != nil {
		return dto.MessagePage{}, err
	}

	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	reactions, err := s.messages.ReactionsFor(ctx, ids)
	if err != nil {
		return dto.MessagePage{}, err
	}

	return dto.MessagePage{
		Messages: dto.NewMessageResponseSlice(messages, reactions),
		HasMore:  hasMore,
	}, nil
}

func (s *chatService) SendMessage(ctx context.Context, actor Actor, roomID, content string, parentID *string) (dto.MessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.MessageResponse{}, apperror.Validation("message content must not be empty")
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}
	// Live sessions were authorized when they joined.
	if actor.SessionID == "" {
		if _, err := s.AuthorizeRoom(ctx, actor, roomID); err != nil {
			return dto.MessageResponse{}, err
		}
	}

	message := models.Message{
		RoomID:          roomID,
		SenderID:        actor.UserID,
		SenderName:      actor.UserName,
		SenderEmail:     actor.UserEmail,
		MessageType:     models.MessageTypeText,
		Content:         clean,
		Mentions:        extractMentions(clean),
		ParentMessageID: parentID,
	}
	return s.persistAndBroadcast(ctx, actor, message)
}

func (s *chatService) SendAttachment(ctx context.Context, actor Actor, roomID string, file *multipart.FileHeader, caption string) (dto.MessageResponse, error) {
	if s.attachments == nil {
		return dto.MessageResponse{}, apperror.Validation("attachments are disabled")
	}
	if _, err := s.AuthorizeRoom(ctx, actor, roomID); err != nil {
		return dto.MessageResponse{}, err
	}

	attachment, err := s.attachments.Store(ctx, file)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(caption))
	if clean == "" {
		clean = attachment.Name
	}
	message := models.Message{
		RoomID:         roomID,
		SenderID:       actor.UserID,
		SenderName:     actor.UserName,
		SenderEmail:    actor.UserEmail,
		MessageType:    models.MessageTypeFile,
		Content:        clean,
		Mentions:       extractMentions(clean),
		AttachmentURL:  attachment.URL,
		AttachmentName: attachment.Name,
		AttachmentSize: attachment.Size,
		AttachmentMime: attachment.MimeType,
	}
	return s.persistAndBroadcast(ctx, actor, message)
}

func (s *chatService) persistAndBroadcast(ctx context.Context, actor Actor, message models.Message) (dto.MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "chat.message.create", trace.WithAttributes(
		attribute.String("chat.room_id", message.RoomID),
		attribute.String("chat.sender_id", message.SenderID),
		attribute.String("chat.type", message.MessageType),
	))
	defer span.End()

	if err := s.messages.Create(ctx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(message)
	s.publish(ctx, RoomChannel(message.RoomID), dto.NewEvent(dto.EventNewMessage, response))
	return response, nil
}

func (s *chatService) EditMessage(ctx context.Context, actor Actor, messageID, content string) (dto.MessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.MessageResponse{}, apperror.Validation("message content must not be empty")
	}

	ctx, span := s.tracer.Start(ctx, "chat.message.edit", trace.WithAttributes(attribute.String("chat.message_id", messageID)))
	defer span.End()

	message, err := s.messages.Edit(ctx, messageID, actor.UserID, clean)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}
	return dto.NewMessageResponse(message), nil
}

func (s *chatService) DeleteMessage(ctx context.Context, actor Actor, messageID string) error {
	ctx, span := s.tracer.Start(ctx, "chat.message.delete", trace.WithAttributes(attribute.String("chat.message_id", messageID)))
	defer span.End()

	if _, err := s.messages.SoftDelete(ctx, messageID, actor.UserID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ToggleReaction flips the actor's reaction. roomID scopes the lookup for live sessions; REST callers pass "".
func (s *chatService) ToggleReaction(ctx context.Context, actor Actor, roomID, messageID, emoji string) (dto.ReactionEvent, error) {
	message, err := s.reactionTarget(ctx, actor, roomID, messageID, emoji)
	if err != nil {
		return dto.ReactionEvent{}, err
	}

	added, err := s.messages.ToggleReaction(ctx, &models.MessageReaction{
		MessageID: message.ID,
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		Emoji:     strings.TrimSpace(emoji),
	})
	if err != nil {
		return dto.ReactionEvent{}, err
	}

	action := dto.ReactionRemoved
	if added {
		action = dto.ReactionAdded
	}
	event := s.reactionEvent(actor, message, emoji, action)
	s.publish(ctx, RoomChannel(message.RoomID), dto.NewEvent(dto.EventReaction, event))
	return event, nil
}

func (s *chatService) RemoveReaction(ctx context.Context, actor Actor, roomID, messageID, emoji string) (dto.ReactionEvent, error) {
	message, err := s.reactionTarget(ctx, actor, roomID, messageID, emoji)
	if err != nil {
		return dto.ReactionEvent{}, err
	}

	existed, err := s.messages.RemoveReaction(ctx, message.ID, actor.UserID, strings.TrimSpace(emoji))
	if err != nil {
		return dto.ReactionEvent{}, err
	}

	event := s.reactionEvent(actor, message, emoji, dto.ReactionRemoved)
	if existed {
		s.publish(ctx, RoomChannel(message.RoomID), dto.NewEvent(dto.EventReaction, event))
	}
	return event, nil
}

func (s *chatService) reactionTarget(ctx context.Context, actor Actor, roomID, messageID, emoji string) (models.Message, error) {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(emoji) == "" {
		return models.Message{}, apperror.Validation("message_id and emoji are required")
	}
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if message.IsDeleted || (roomID != "" && message.RoomID != roomID) {
		return models.Message{}, apperror.NotFound("message %s not found", messageID)
	}
	if roomID == "" {
		if _, err := s.AuthorizeRoom(ctx, actor, message.RoomID); err != nil {
			return models.Message{}, err
		}
	}
	return message, nil
}

func (s *chatService) reactionEvent(actor Actor, message models.Message, emoji, action string) dto.ReactionEvent {
	return dto.ReactionEvent{
		RoomID:    message.RoomID,
		MessageID: message.ID,
		UserID:    actor.UserID,
		UserName:  actor.UserName,
		Emoji:     strings.TrimSpace(emoji),
		Action:    action,
	}
}

func (s *chatService) StartTyping(ctx context.Context, actor Actor, roomID string) error {
	if err := s.typing.Upsert(ctx, &models.TypingIndicator{
		RoomID:   roomID,
		UserID:   actor.UserID,
		UserName: actor.UserName,
	}); err != nil {
		return err
	}
	s.publishTyping(ctx, actor, roomID, true)
	return nil
}

func (s *chatService) StopTyping(ctx context.Context, actor Actor, roomID string) error {
	if _, err := s.typing.Delete(ctx, roomID, actor.UserID); err != nil {
		return err
	}
	s.publishTyping(ctx, actor, roomID, false)
	return nil
}

func (s *chatService) publishTyping(ctx context.Context, actor Actor, roomID string, typing bool) {
	event := dto.NewEvent(dto.EventTyping, dto.TypingEvent{
		RoomID:   roomID,
		UserID:   actor.UserID,
		UserName: actor.UserName,
		IsTyping: typing,
	})
	s.publish(ctx, RoomChannel(roomID), event, actor.publishOptions()...)
}

func (s *chatService) MarkRead(ctx context.Context, actor Actor, roomID string) error {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return err
	}
	return s.rooms.MarkRead(ctx, roomID, actor.UserID, time.Now().UTC())
}

func (s *chatService) publish(ctx context.Context, channel string, event dto.Event, opts ...PublishOption) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, channel, event, opts...); err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Str("type", event.Type).Msg("failed to relay chat event")
	}
}

func (s *chatService) validate(payload interface{}) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.Struct(payload); err != nil {
		return apperror.Validation("%s", err.Error())
	}
	return nil
}

func extractMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	mentions := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		handle := strings.TrimRight(match[1], ".")
		if handle == "" {
			continue
		}
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		mentions = append(mentions, handle)
	}
	return mentions
}
