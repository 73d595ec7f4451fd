package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/models"
	"github.com/noah-isme/gema-teamchat/internal/repository"
)

// DirectService holds the 1:1 messaging use-cases shared by REST handlers and websocket sessions.
type DirectService interface {
	OpenThread(ctx context.Context, actor Actor, req dto.DirectThreadCreateRequest) (dto.DirectThreadResponse, bool, error)
	ListThreads(ctx context.Context, actor Actor, limit int) ([]dto.DirectThreadResponse, error)
	AuthorizeThread(ctx context.Context, actor Actor, threadID string) (models.DirectMessageThread, error)
	History(ctx context.Context, actor Actor, threadID string, query dto.HistoryQuery) (dto.DirectMessagePage, error)
	SendMessage(ctx context.Context, actor Actor, threadID, content string) (dto.DirectMessageResponse, error)
	StartTyping(ctx context.Context, actor Actor, thread models.DirectMessageThread) error
	StopTyping(ctx context.Context, actor Actor, thread models.DirectMessageThread) error
	MarkRead(ctx context.Context, actor Actor, threadID string) (dto.ThreadReadResponse, error)
}

type directService struct {
	repo      repository.DirectMessageRepository
	presence  *PresenceTracker
	hub       *BroadcastHub
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewDirectService wires the DM use-cases.
func NewDirectService(repo repository.DirectMessageRepository, presence *PresenceTracker, hub *BroadcastHub, validate *validator.Validate, logger zerolog.Logger) DirectService {
	return &directService{
		repo:      repo,
		presence:  presence,
		hub:       hub,
		validator: validate,
		sanitizer: newContentSanitizer(),
		logger:    logger.With().Str("component", "direct_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-teamchat/internal/service/direct"),
	}
}

// ThreadChannel is the broadcast key of a DM thread.
func ThreadChannel(thread models.DirectMessageThread) string {
	return DirectChannel(thread.User1ID, thread.User2ID)
}

// OpenThread gets or creates the thread between the actor and the recipient. It reports whether the thread was created.
func (s *directService) OpenThread(ctx context.Context, actor Actor, req dto.DirectThreadCreateRequest) (dto.DirectThreadResponse, bool, error) {
	if s.validator != nil {
		if err := s.validator.Struct(req); err != nil {
			return dto.DirectThreadResponse{}, false, apperror.Validation("%s", err.Error())
		}
	}
	recipient := strings.TrimSpace(req.RecipientID)
	if recipient == "" || recipient == actor.UserID {
		return dto.DirectThreadResponse{}, false, apperror.Validation("recipient must be another user")
	}

	ctx, span := s.tracer.Start(ctx, "chat.dm.open", trace.WithAttributes(
		attribute.String("chat.channel", DirectChannel(actor.UserID, recipient)),
	))
	defer span.End()

	thread := models.DirectMessageThread{}
	first, _ := CanonicalPair(actor.UserID, recipient)
	if first == actor.UserID {
		thread.User1ID, thread.User1Name, thread.User1Email = actor.UserID, actor.UserName, actor.UserEmail
		thread.User2ID, thread.User2Name, thread.User2Email = recipient, req.RecipientName, req.RecipientEmail
	} else {
		thread.User1ID, thread.User1Name, thread.User1Email = recipient, req.RecipientName, req.RecipientEmail
		thread.User2ID, thread.User2Name, thread.User2Email = actor.UserID, actor.UserName, actor.UserEmail
	}

	stored, created, err := s.repo.GetOrCreateThread(ctx, thread)
	if err != nil {
		span.RecordError(err)
		return dto.DirectThreadResponse{}, false, err
	}
	if created {
		s.logger.Info().Str("thread_id", stored.ID).Str("user_id", actor.UserID).Msg("direct thread created")
	}
	return dto.NewDirectThreadResponse(stored), created, nil
}

func (s *directService) ListThreads(ctx context.Context, actor Actor, limit int) ([]dto.DirectThreadResponse, error) {
	threads, err := s.repo.ListThreadsForUser(ctx, actor.UserID, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewDirectThreadResponseSlice(threads), nil
}

// AuthorizeThread returns the thread when it exists and the actor is one of its participants.
func (s *directService) AuthorizeThread(ctx context.Context, actor Actor, threadID string) (models.DirectMessageThread, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return models.DirectMessageThread{}, err
	}
	if !thread.HasParticipant(actor.UserID) {
		return models.DirectMessageThread{}, apperror.Forbidden("user %s is not a participant of thread %s", actor.UserID, threadID)
	}
	return thread, nil
}

func (s *directService) History(ctx context.Context, actor Actor, threadID string, query dto.HistoryQuery) (dto.DirectMessagePage, error) {
	if s.validator != nil {
		if err := s.validator.Struct(query); err != nil {
			return dto.DirectMessagePage{}, apperror.Validation("%s", err.Error())
		}
	}
	if _, err := s.AuthorizeThread(ctx, actor, threadID); err != nil {
		return dto.DirectMessagePage{}, err
	}

	messages, hasMore, err := s.repo.ListMessages(ctx, threadID, query.Before, query.Limit)
	if err != nil {
		return dto.DirectMessagePage{}, err
	}
	return dto.DirectMessagePage{
		Messages: dto.NewDirectMessageResponseSlice(messages),
		HasMore:  hasMore,
	}, nil
}

func (s *directService) SendMessage(ctx context.Context, actor Actor, threadID, content string) (dto.DirectMessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.DirectMessageResponse{}, apperror.Validation("message content must not be empty")
	}

	thread, err := s.AuthorizeThread(ctx, actor, threadID)
	if err != nil {
		return dto.DirectMessageResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "chat.dm.create", trace.WithAttributes(
		attribute.String("chat.thread_id", threadID),
		attribute.String("chat.sender_id", actor.UserID),
	))
	defer span.End()

	message := models.DirectMessage{
		ThreadID:    threadID,
		SenderID:    actor.UserID,
		SenderName:  actor.UserName,
		SenderEmail: actor.UserEmail,
		MessageType: models.MessageTypeText,
		Content:     clean,
	}
	if err := s.repo.CreateMessage(ctx, &message); err != nil {
		span.RecordError(err)
		return dto.DirectMessageResponse{}, err
	}

	if err := s.presence.StopDirectTyping(ctx, threadID, actor.UserID); err != nil {
		s.logger.Debug().Err(err).Str("thread_id", threadID).Msg("failed to clear dm typing after send")
	}

	response := dto.NewDirectMessageResponse(message)
	s.publish(ctx, ThreadChannel(thread), dto.NewEvent(dto.EventNewDM, response))
	return response, nil
}

func (s *directService) StartTyping(ctx context.Context, actor Actor, thread models.DirectMessageThread) error {
	if err := s.presence.StartDirectTyping(ctx, thread.ID, actor.UserID); err != nil {
		return apperror.Transient(err)
	}
	s.publishTyping(ctx, actor, thread, true)
	return nil
}

func (s *directService) StopTyping(ctx context.Context, actor Actor, thread models.DirectMessageThread) error {
	if err := s.presence.StopDirectTyping(ctx, thread.ID, actor.UserID); err != nil {
		return apperror.Transient(err)
	}
	s.publishTyping(ctx, actor, thread, false)
	return nil
}

func (s *directService) publishTyping(ctx context.Context, actor Actor, thread models.DirectMessageThread, typing bool) {
	event := dto.NewEvent(dto.EventTyping, dto.TypingEvent{
		ThreadID: thread.ID,
		UserID:   actor.UserID,
		UserName: actor.UserName,
		IsTyping: typing,
	})
	s.publish(ctx, ThreadChannel(thread), event, actor.publishOptions()...)
}

func (s *directService) MarkRead(ctx context.Context, actor Actor, threadID string) (dto.ThreadReadResponse, error) {
	updated, err := s.repo.MarkThreadRead(ctx, threadID, actor.UserID)
	if err != nil {
		return dto.ThreadReadResponse{}, err
	}
	return dto.ThreadReadResponse{ThreadID: threadID, Updated: updated}, nil
}

func (s *directService) publish(ctx context.Context, channel string, event dto.Event, opts ...PublishOption) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, channel, event, opts...); err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Str("type", event.Type).Msg("failed to relay dm event")
	}
}
