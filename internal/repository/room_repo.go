package repository

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/models"
)

// RoomRepository persists rooms and their memberships.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room, owner *models.RoomMember) error
	Get(ctx context.Context, id string) (models.Room, error)
	GetActive(ctx context.Context, id string) (models.Room, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Room, error)
	Archive(ctx context.Context, id string) error
	GetMember(ctx context.Context, roomID, userID string) (models.RoomMember, error)
	AddMember(ctx context.Context, member *models.RoomMember) (models.RoomMember, error)
	RemoveMember(ctx context.Context, roomID, userID string) error
	MarkRead(ctx context.Context, roomID, userID string, at time.Time) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room, owner *models.RoomMember) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if owner == nil {
			return nil
		}
		owner.RoomID = room.ID
		owner.Role = models.MemberRoleOwner
		return tx.Create(owner).Error
	})
	return transient(err, "create room")
}

func (r *roomRepository) Get(ctx context.Context, id string) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Room{}, apperror.NotFound("room %s not found", id)
		}
		return models.Room{}, transient(err, "get room")
	}
	return room, nil
}

// GetActive returns the room only when it exists and is not archived.
func (r *roomRepository) GetActive(ctx context.Context, id string) (models.Room, error) {
	room, err := r.Get(ctx, id)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsArchived {
		return models.Room{}, apperror.NotFound("room %s is archived", id)
	}
	return room, nil
}

func (r *roomRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rooms []models.Room
	err := r.db.WithContext(ctx).
		Where("is_archived = ?", false).
		Where("id IN (?)", r.db.Model(&models.RoomMember{}).Select("room_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, transient(err, "list rooms")
	}
	return rooms, nil
}

func (r *roomRepository) Archive(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_archived": true,
		"updated_at":  time.Now().UTC(),
	})
	if result.Error != nil {
		return transient(result.Error, "archive room")
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("room %s not found", id)
	}
	return nil
}

func (r *roomRepository) GetMember(ctx context.Context, roomID, userID string) (models.RoomMember, error) {
	var member models.RoomMember
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RoomMember{}, apperror.NotFound("user %s is not a member of room %s", userID, roomID)
		}
		return models.RoomMember{}, transient(err, "get member")
	}
	return member, nil
}

// AddMember inserts the membership or returns the existing one for the same (room, user).
func (r *roomRepository) AddMember(ctx context.Context, member *models.RoomMember) (models.RoomMember, error) {
	if member.Role == "" {
		member.Role = models.MemberRoleMember
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}

	var stored models.RoomMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error; err != nil {
			return err
		}
		return tx.Where("room_id = ? AND user_id = ?", member.RoomID, member.UserID).First(&stored).Error
	})
	if err != nil {
		return models.RoomMember{}, transient(err, "add member")
	}
	return stored, nil
}

// RemoveMember deletes a membership unless it is the last owner/admin of the room.
func (r *roomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.RoomMember
		if err := tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("user %s is not a member of room %s", userID, roomID)
			}
			return transient(err, "load member")
		}

		if member.IsManager() {
			var others int64
			err := tx.Model(&models.RoomMember{}).
				Where("room_id = ? AND user_id <> ? AND role IN ?", roomID, userID, []string{models.MemberRoleOwner, models.MemberRoleAdmin}).
				Count(&others).Error
			if err != nil {
				return transient(err, "count managers")
			}
			if others == 0 {
				return apperror.Conflict("room %s must keep at least one owner or admin", roomID)
			}
		}

		if err := tx.Delete(&models.RoomMember{}, "id = ?", member.ID).Error; err != nil {
			return transient(err, "remove member")
		}
		return nil
	})
}

// MarkRead advances last_read_at; an older timestamp never rolls it back.
func (r *roomRepository) MarkRead(ctx context.Context, roomID, userID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		Update("last_read_at", at).Error
	return transient(err, "mark room read")
}

func transient(err error, op string) error {
	if err == nil {
		return nil
	}
	return apperror.Transient(pkgerrors.Wrap(err, op))
}
