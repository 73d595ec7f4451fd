package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/models"
)

// DirectMessageRepository persists 1:1 threads and their messages.
type DirectMessageRepository interface {
	GetOrCreateThread(ctx context.Context, thread models.DirectMessageThread) (models.DirectMessageThread, bool, error)
	GetThread(ctx context.Context, id string) (models.DirectMessageThread, error)
	ListThreadsForUser(ctx context.Context, userID string, limit int) ([]models.DirectMessageThread, error)
	CreateMessage(ctx context.Context, message *models.DirectMessage) error
	ListMessages(ctx context.Context, threadID string, before *time.Time, limit int) ([]models.DirectMessage, bool, error)
	MarkThreadRead(ctx context.Context, threadID, userID string) (int64, error)
}

type directMessageRepository struct {
	db *gorm.DB
}

// NewDirectMessageRepository constructs a DM repository backed by GORM.
func NewDirectMessageRepository(db *gorm.DB) DirectMessageRepository {
	return &directMessageRepository{db: db}
}

// GetOrCreateThread returns the thread for the pair, creating it on first use.
// Callers must pass the pair in canonical order; concurrent callers converge on one row through the unique pair index.
func (r *directMessageRepository) GetOrCreateThread(ctx context.Context, thread models.DirectMessageThread) (models.DirectMessageThread, bool, error) {
	if thread.User1ID == "" || thread.User2ID == "" {
		return models.DirectMessageThread{}, false, apperror.Validation("both participants are required")
	}
	if thread.User1ID >= thread.User2ID {
		return models.DirectMessageThread{}, false, apperror.Validation("participants must be distinct and sorted")
	}

	existing, err := r.findPair(ctx, thread.User1ID, thread.User2ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DirectMessageThread{}, false, transient(err, "find thread")
	}

	now := time.Now().UTC()
	thread.ID = ""
	thread.CreatedAt = now
	thread.UpdatedAt = now
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&thread)
	if result.Error != nil {
		return models.DirectMessageThread{}, false, transient(result.Error, "create thread")
	}
	if result.RowsAffected == 1 {
		return thread, true, nil
	}

	existing, err = r.findPair(ctx, thread.User1ID, thread.User2ID)
	if err != nil {
		return models.DirectMessageThread{}, false, transient(err, "find thread")
	}
	return existing, false, nil
}

func (r *directMessageRepository) findPair(ctx context.Context, user1ID, user2ID string) (models.DirectMessageThread, error) {
	var thread models.DirectMessageThread
	err := r.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", user1ID, user2ID).First(&thread).Error
	return thread, err
}

func (r *directMessageRepository) GetThread(ctx context.Context, id string) (models.DirectMessageThread, error) {
	var thread models.DirectMessageThread
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.DirectMessageThread{}, apperror.NotFound("thread %s not found", id)
		}
		return models.DirectMessageThread{}, transient(err, "get thread")
	}
	return thread, nil
}

func (r *directMessageRepository) ListThreadsForUser(ctx context.Context, userID string, limit int) ([]models.DirectMessageThread, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var threads []models.DirectMessageThread
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&threads).Error
	if err != nil {
		return nil, transient(err, "list threads")
	}
	return threads, nil
}

// CreateMessage stores the DM and moves the thread's latest pointer to it.
func (r *directMessageRepository) CreateMessage(ctx context.Context, message *models.DirectMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.DirectMessageThread
		if err := tx.Where("id = ?", message.ThreadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("thread %s not found", message.ThreadID)
			}
			return transient(err, "load thread")
		}
		if !thread.HasParticipant(message.SenderID) {
			return apperror.Forbidden("user %s is not a participant of thread %s", message.SenderID, thread.ID)
		}

		now := time.Now().UTC()
		if message.MessageType == "" {
			message.MessageType = models.MessageTypeText
		}
		message.CreatedAt = now
		if err := tx.Create(message).Error; err != nil {
			return transient(err, "create direct message")
		}
		return tx.Model(&models.DirectMessageThread{}).Where("id = ?", thread.ID).Updates(map[string]interface{}{
			"latest_message_id": message.ID,
			"updated_at":        now,
		}).Error
	})
	return transient(err, "create direct message")
}

func (r *directMessageRepository) ListMessages(ctx context.Context, threadID string, before *time.Time, limit int) ([]models.DirectMessage, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("thread_id = ? AND is_deleted = ?", threadID, false)
	if before != nil {
		query = query.Where("created_at < ?", before.UTC())
	}

	var messages []models.DirectMessage
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, false, transient(err, "list direct messages")
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, len(messages) == limit, nil
}

// MarkThreadRead stamps the reader's side of the thread and flips the other participant's unread messages.
// It returns how many messages were flipped.
func (r *directMessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string) (int64, error) {
	var flipped int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.DirectMessageThread
		if err := tx.Where("id = ?", threadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("thread %s not found", threadID)
			}
			return transient(err, "load thread")
		}
		if !thread.HasParticipant(userID) {
			return apperror.Forbidden("user %s is not a participant of thread %s", userID, threadID)
		}

		now := time.Now().UTC()
		column := "user2_last_read_at"
		if thread.User1ID == userID {
			column = "user1_last_read_at"
		}
		if err := tx.Model(&models.DirectMessageThread{}).Where("id = ?", threadID).Update(column, now).Error; err != nil {
			return transient(err, "stamp thread read")
		}

		result := tx.Model(&models.DirectMessage{}).
			Where("thread_id = ? AND sender_id = ? AND is_read = ?", threadID, thread.OtherParticipant(userID), false).
			Updates(map[string]interface{}{"is_read": true, "read_at": now})
		if result.Error != nil {
			return transient(result.Error, "flip unread")
		}
		flipped = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, transient(err, "mark thread read")
	}
	return flipped, nil
}
