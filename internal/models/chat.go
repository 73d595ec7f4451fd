package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Room types.
const (
	RoomTypePublic  = "public"
	RoomTypePrivate = "private"
	RoomTypeDirect  = "direct"
	RoomTypeProject = "project"
)

// Membership roles.
const (
	MemberRoleOwner  = "owner"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// Message types.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
	MessageTypeFile   = "file"
)

// Room is a named multi-member channel.
type Room struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	RoomType    string    `gorm:"size:16;not null;default:public;index" json:"room_type"`
	ProjectID   *string   `gorm:"size:64;index" json:"project_id,omitempty"`
	CreatedBy   string    `gorm:"size:64;index" json:"created_by"`
	IsArchived  bool      `gorm:"not null;default:false;index" json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `gorm:"index" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (r *Room) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RoomMember is the membership of one user in one room.
type RoomMember struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	RoomID     string     `gorm:"size:36;not null;uniqueIndex:idx_room_member" json:"room_id"`
	UserID     string     `gorm:"size:64;not null;uniqueIndex:idx_room_member;index" json:"user_id"`
	UserEmail  string     `gorm:"size:255" json:"user_email"`
	UserName   string     `gorm:"size:255" json:"user_name"`
	Role       string     `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	IsMuted    bool       `gorm:"not null;default:false" json:"is_muted"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (m *RoomMember) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// IsManager reports whether the member keeps the room administrable.
func (m RoomMember) IsManager() bool {
	return m.Role == MemberRoleOwner || m.Role == MemberRoleAdmin
}

// Message is a single room message. ParentMessageID is a weak reference to another message in the same room.
type Message struct {
	ID              string                      `gorm:"primaryKey;size:36" json:"id"`
	RoomID          string                      `gorm:"size:36;not null;index:idx_messages_room_created,priority:1" json:"room_id"`
	SenderID        string                      `gorm:"size:64;not null;index" json:"sender_id"`
	SenderEmail     string                      `gorm:"size:255" json:"sender_email"`
	SenderName      string                      `gorm:"size:255" json:"sender_name"`
	MessageType     string                      `gorm:"size:16;not null;default:text" json:"message_type"`
	Content         string                      `gorm:"type:text" json:"content"`
	Mentions        datatypes.JSONSlice[string] `json:"mentions"`
	AttachmentURL   string                      `gorm:"size:1024" json:"attachment_url,omitempty"`
	AttachmentName  string                      `gorm:"size:255" json:"attachment_name,omitempty"`
	AttachmentSize  int64                       `json:"attachment_size,omitempty"`
	AttachmentMime  string                      `gorm:"size:128" json:"attachment_mime,omitempty"`
	ParentMessageID *string                     `gorm:"size:36;index" json:"parent_message_id,omitempty"`
	IsEdited        bool                        `gorm:"not null;default:false" json:"is_edited"`
	EditedAt        *time.Time                  `json:"edited_at,omitempty"`
	IsDeleted       bool                        `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt       *time.Time                  `json:"deleted_at,omitempty"`
	CreatedAt       time.Time                   `gorm:"index:idx_messages_room_created,priority:2" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageReaction is one emoji reaction of one user on one message.
type MessageReaction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID string    `gorm:"size:36;not null;uniqueIndex:idx_reaction_unique,priority:1" json:"message_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_reaction_unique,priority:2" json:"user_id"`
	UserName  string    `gorm:"size:255" json:"user_name"`
	Emoji     string    `gorm:"size:64;not null;uniqueIndex:idx_reaction_unique,priority:3" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (r *MessageReaction) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// TypingIndicator marks a user as currently typing in a room. Rows are ephemeral.
type TypingIndicator struct {
	RoomID    string    `gorm:"primaryKey;size:36" json:"room_id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	UserName  string    `gorm:"size:255" json:"user_name"`
	StartedAt time.Time `gorm:"index" json:"started_at"`
}
