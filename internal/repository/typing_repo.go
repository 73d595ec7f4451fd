package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-teamchat/internal/models"
)

// TypingRepository stores the ephemeral per-room typing markers.
type TypingRepository interface {
	Upsert(ctx context.Context, indicator *models.TypingIndicator) error
	Delete(ctx context.Context, roomID, userID string) (bool, error)
	ListInRoom(ctx context.Context, roomID string) ([]models.TypingIndicator, error)
	DeleteStale(ctx context.Context, olderThan time.Time) ([]models.TypingIndicator, error)
}

type typingRepository struct {
	db *gorm.DB
}

// NewTypingRepository constructs a typing repository backed by GORM.
func NewTypingRepository(db *gorm.DB) TypingRepository {
	return &typingRepository{db: db}
}

func (r *typingRepository) Upsert(ctx context.Context, indicator *models.TypingIndicator) error {
	indicator.StartedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_name", "started_at"}),
	}).Create(indicator).Error
	return transient(err, "upsert typing")
}

func (r *typingRepository) Delete(ctx context.Context, roomID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.TypingIndicator{})
	if result.Error != nil {
		return false, transient(result.Error, "delete typing")
	}
	return result.RowsAffected > 0, nil
}

func (r *typingRepository) ListInRoom(ctx context.Context, roomID string) ([]models.TypingIndicator, error) {
	var indicators []models.TypingIndicator
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("started_at ASC").Find(&indicators).Error; err != nil {
		return nil, transient(err, "list typing")
	}
	return indicators, nil
}

// DeleteStale removes markers started before olderThan and returns what was removed.
func (r *typingRepository) DeleteStale(ctx context.Context, olderThan time.Time) ([]models.TypingIndicator, error) {
	var stale []models.TypingIndicator
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("started_at < ?", olderThan.UTC()).Find(&stale).Error; err != nil {
			return err
		}
		for _, indicator := range stale {
			if err := tx.Where("room_id = ? AND user_id = ? AND started_at < ?", indicator.RoomID, indicator.UserID, olderThan.UTC()).
				Delete(&models.TypingIndicator{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, transient(err, "sweep typing")
	}
	return stale, nil
}
