package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectMessageThread is a private conversation between two users. User1ID always sorts before User2ID.
type DirectMessageThread struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	User1ID         string     `gorm:"size:64;not null;uniqueIndex:idx_dm_pair,priority:1" json:"user1_id"`
	User2ID         string     `gorm:"size:64;not null;uniqueIndex:idx_dm_pair,priority:2;index" json:"user2_id"`
	User1Name       string     `gorm:"size:255" json:"user1_name"`
	User1Email      string     `gorm:"size:255" json:"user1_email"`
	User2Name       string     `gorm:"size:255" json:"user2_name"`
	User2Email      string     `gorm:"size:255" json:"user2_email"`
	LatestMessageID *string    `gorm:"size:36" json:"latest_message_id,omitempty"`
	User1LastReadAt *time.Time `json:"user1_last_read_at,omitempty"`
	User2LastReadAt *time.Time `json:"user2_last_read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `gorm:"index" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (t *DirectMessageThread) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// HasParticipant reports whether userID is one of the two thread members.
func (t DirectMessageThread) HasParticipant(userID string) bool {
	return userID != "" && (t.User1ID == userID || t.User2ID == userID)
}

// OtherParticipant returns the id of the participant that is not userID.
func (t DirectMessageThread) OtherParticipant(userID string) string {
	if t.User1ID == userID {
		return t.User2ID
	}
	return t.User1ID
}

// DirectMessage is one message inside a DirectMessageThread.
type DirectMessage struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ThreadID       string     `gorm:"size:36;not null;index:idx_dm_thread_created,priority:1" json:"thread_id"`
	SenderID       string     `gorm:"size:64;not null;index" json:"sender_id"`
	SenderName     string     `gorm:"size:255" json:"sender_name"`
	SenderEmail    string     `gorm:"size:255" json:"sender_email"`
	MessageType    string     `gorm:"size:16;not null;default:text" json:"message_type"`
	Content        string     `gorm:"type:text" json:"content"`
	AttachmentURL  string     `gorm:"size:1024" json:"attachment_url,omitempty"`
	AttachmentName string     `gorm:"size:255" json:"attachment_name,omitempty"`
	AttachmentSize int64      `json:"attachment_size,omitempty"`
	AttachmentMime string     `gorm:"size:128" json:"attachment_mime,omitempty"`
	IsRead         bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsEdited       bool       `gorm:"not null;default:false" json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsDeleted      bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `gorm:"index:idx_dm_thread_created,priority:2" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (m *DirectMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// All lists every chat model for migrations.
func All() []interface{} {
	return []interface{}{
		&Room{},
		&RoomMember{},
		&Message{},
		&MessageReaction{},
		&TypingIndicator{},
		&DirectMessageThread{},
		&DirectMessage{},
	}
}
