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

// MessageRepository persists room messages and their reactions.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	Get(ctx context.Context, id string) (models.Message, error)
	Edit(ctx context.Context, id, actorID, content string) (models.Message, error)
	SoftDelete(ctx context.Context, id, actorID string) (models.Message, error)
	ListByRoom(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.Message, bool, error)
	ToggleReaction(ctx context.Context, reaction *models.MessageReaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ReactionsFor(ctx context.Context, messageIDs []string) (map[string][]models.MessageReaction, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create stores the message, bumps the room and clears the sender's typing row.
// A parent that is missing or lives in another room is dropped rather than rejected.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Select("id", "is_archived").Where("id = ?", message.RoomID).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("room %s not found", message.RoomID)
			}
			return transient(err, "load room")
		}
		if room.IsArchived {
			return apperror.NotFound("room %s is archived", message.RoomID)
		}

		if message.ParentMessageID != nil {
			var count int64
			err := tx.Model(&models.Message{}).
				Where("id = ? AND room_id = ? AND is_deleted = ?", *message.ParentMessageID, message.RoomID, false).
				Count(&count).Error
			if err != nil {
				return transient(err, "resolve parent")
			}
			if count == 0 {
				message.ParentMessageID = nil
			}
		}

		now := time.Now().UTC()
		if message.MessageType == "" {
			message.MessageType = models.MessageTypeText
		}
		if message.Mentions == nil {
			message.Mentions = []string{}
		}
		message.CreatedAt = now

		if err := tx.Create(message).Error; err != nil {
			return transient(err, "create message")
		}
		if err := tx.Model(&models.Room{}).Where("id = ?", message.RoomID).Update("updated_at", now).Error; err != nil {
			return transient(err, "bump room")
		}
		if err := tx.Where("room_id = ? AND user_id = ?", message.RoomID, message.SenderID).Delete(&models.TypingIndicator{}).Error; err != nil {
			return transient(err, "clear typing")
		}
		return nil
	})
	return transient(err, "create message")
}

func (r *messageRepository) Get(ctx context.Context, id string) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, apperror.NotFound("message %s not found", id)
		}
		return models.Message{}, transient(err, "get message")
	}
	return message, nil
}

// Edit replaces the content when actorID sent the message.
func (r *messageRepository) Edit(ctx context.Context, id, actorID, content string) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := ownedMessage(tx, id, actorID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"content":   content,
			"is_edited": true,
			"edited_at": now,
		}
		if err := tx.Model(&models.Message{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return transient(err, "edit message")
		}
		loaded.Content = content
		loaded.IsEdited = true
		loaded.EditedAt = &now
		message = loaded
		return nil
	})
	if err != nil {
		return models.Message{}, transient(err, "edit message")
	}
	return message, nil
}

// SoftDelete hides the message from listings and detaches its replies.
func (r *messageRepository) SoftDelete(ctx context.Context, id, actorID string) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := ownedMessage(tx, id, actorID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
		}).Error; err != nil {
			return transient(err, "delete message")
		}
		if err := tx.Model(&models.Message{}).Where("parent_message_id = ?", id).Update("parent_message_id", nil).Error; err != nil {
			return transient(err, "detach replies")
		}
		loaded.IsDeleted = true
		loaded.DeletedAt = &now
		message = loaded
		return nil
	})
	if err != nil {
		return models.Message{}, transient(err, "delete message")
	}
	return message, nil
}

func ownedMessage(tx *gorm.DB, id, actorID string) (models.Message, error) {
	var message models.Message
	if err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, apperror.NotFound("message %s not found", id)
		}
		return models.Message{}, transient(err, "load message")
	}
	if message.SenderID != actorID {
		return models.Message{}, apperror.Forbidden("only the sender can change message %s", id)
	}
	return message, nil
}

// ListByRoom returns up to limit non-deleted messages older than before, oldest first.
func (r *messageRepository) ListByRoom(ctx context.Context, roomID string, before *time.Time, limit int) ([]models.Message, bool, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).
		Where("room_id = ? AND is_deleted = ?", roomID, false)
	if before != nil {
		query = query.Where("created_at < ?", before.UTC())
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, false, transient(err, "list messages")
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, len(messages) == limit, nil
}

// ToggleReaction adds the reaction, or removes it when the same user already reacted with the same emoji.
// It reports whether the reaction is present afterwards.
func (r *messageRepository) ToggleReaction(ctx context.Context, reaction *models.MessageReaction) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := messageExists(tx, reaction.MessageID); err != nil {
			return err
		}

		result := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", reaction.MessageID, reaction.UserID, reaction.Emoji).
			Delete(&models.MessageReaction{})
		if result.Error != nil {
			return transient(result.Error, "remove reaction")
		}
		if result.RowsAffected > 0 {
			return nil
		}

		reaction.CreatedAt = time.Now().UTC()
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction).Error; err != nil {
			return transient(err, "add reaction")
		}
		added = true
		return nil
	})
	if err != nil {
		return false, transient(err, "toggle reaction")
	}
	return added, nil
}

// RemoveReaction deletes the reaction and reports whether one existed.
func (r *messageRepository) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	if err := messageExists(r.db.WithContext(ctx), messageID); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.MessageReaction{})
	if result.Error != nil {
		return false, transient(result.Error, "remove reaction")
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) ReactionsFor(ctx context.Context, messageIDs []string) (map[string][]models.MessageReaction, error) {
	grouped := make(map[string][]models.MessageReaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return grouped, nil
	}

	var reactions []models.MessageReaction
	if err := r.db.WithContext(ctx).Where("message_id IN ?", messageIDs).Order("created_at ASC").Find(&reactions).Error; err != nil {
		return nil, transient(err, "list reactions")
	}
	for _, reaction := range reactions {
		grouped[reaction.MessageID] = append(grouped[reaction.MessageID], reaction)
	}
	return grouped, nil
}

func messageExists(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&models.Message{}).Where("id = ? AND is_deleted = ?", id, false).Count(&count).Error; err != nil {
		return transient(err, "load message")
	}
	if count == 0 {
		return apperror.NotFound("message %s not found", id)
	}
	return nil
}
