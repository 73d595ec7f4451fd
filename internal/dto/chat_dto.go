package dto

import (
	"time"

	"github.com/noah-isme/gema-teamchat/internal/models"
)

// RoomCreateRequest is the payload to open a new room.
type RoomCreateRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description string  `json:"description" validate:"omitempty,max=2000"`
	RoomType    string  `json:"room_type" validate:"omitempty,oneof=public private project"`
	ProjectID   *string `json:"project_id" validate:"omitempty,max=64"`
}

// RoomResponse is the serialized representation of a room.
type RoomResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	RoomType    string    `json:"room_type"`
	ProjectID   *string   `json:"project_id,omitempty"`
	CreatedBy   string    `json:"created_by"`
	IsArchived  bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRoomResponse converts a model into a DTO.
func NewRoomResponse(room models.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		RoomType:    room.RoomType,
		ProjectID:   room.ProjectID,
		CreatedBy:   room.CreatedBy,
		IsArchived:  room.IsArchived,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

// NewRoomResponseSlice converts a slice of models into DTOs.
func NewRoomResponseSlice(rooms []models.Room) []RoomResponse {
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}

// MemberResponse describes a room membership.
type MemberResponse struct {
	RoomID     string     `json:"room_id"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	UserEmail  string     `json:"user_email"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// NewMemberResponse converts a membership model into a DTO.
func NewMemberResponse(member models.RoomMember) MemberResponse {
	return MemberResponse{
		RoomID:     member.RoomID,
		UserID:     member.UserID,
		UserName:   member.UserName,
		UserEmail:  member.UserEmail,
		Role:       member.Role,
		JoinedAt:   member.JoinedAt,
		LastReadAt: member.LastReadAt,
	}
}

// MessageCreateRequest posts a message into a room.
type MessageCreateRequest struct {
	Content         string  `json:"content" validate:"required,max=4000"`
	ParentMessageID *string `json:"parent_message_id" validate:"omitempty,max=36"`
}

// MessageUpdateRequest edits the content of an existing message.
type MessageUpdateRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// ReactionRequest toggles an emoji reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=64"`
}

// HistoryQuery pages backwards through a room or thread.
type HistoryQuery struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ReactionResponse is one reaction on a message.
type ReactionResponse struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse is the serialized representation of a room message.
type MessageResponse struct {
	ID              string             `json:"id"`
	RoomID          string             `json:"room_id"`
	SenderID        string             `json:"sender_id"`
	SenderName      string             `json:"sender_name"`
	SenderEmail     string             `json:"sender_email"`
	MessageType     string             `json:"message_type"`
	Content         string             `json:"content"`
	Mentions        []string           `json:"mentions"`
	AttachmentURL   string             `json:"attachment_url,omitempty"`
	AttachmentName  string             `json:"attachment_name,omitempty"`
	AttachmentSize  int64              `json:"attachment_size,omitempty"`
	AttachmentMime  string             `json:"attachment_mime,omitempty"`
	ParentMessageID *string            `json:"parent_message_id,omitempty"`
	IsEdited        bool               `json:"is_edited"`
	EditedAt        *time.Time         `json:"edited_at,omitempty"`
	IsDeleted       bool               `json:"is_deleted"`
	Reactions       []ReactionResponse `json:"reactions,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	mentions := []string(message.Mentions)
	if mentions == nil {
		mentions = []string{}
	}
	return MessageResponse{
		ID:              message.ID,
		RoomID:          message.RoomID,
		SenderID:        message.SenderID,
		SenderName:      message.SenderName,
		SenderEmail:     message.SenderEmail,
		MessageType:     message.MessageType,
		Content:         message.Content,
		Mentions:        mentions,
		AttachmentURL:   message.AttachmentURL,
		AttachmentName:  message.AttachmentName,
		AttachmentSize:  message.AttachmentSize,
		AttachmentMime:  message.AttachmentMime,
		ParentMessageID: message.ParentMessageID,
		IsEdited:        message.IsEdited,
		EditedAt:        message.EditedAt,
		IsDeleted:       message.IsDeleted,
		CreatedAt:       message.CreatedAt,
	}
}

// NewMessageResponseSlice converts messages and attaches their reactions when provided.
func NewMessageResponseSlice(messages []models.Message, reactions map[string][]models.MessageReaction) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		response := NewMessageResponse(message)
		for _, reaction := range reactions[message.ID] {
			response.Reactions = append(response.Reactions, ReactionResponse{
				UserID:    reaction.UserID,
				UserName:  reaction.UserName,
				Emoji:     reaction.Emoji,
				CreatedAt: reaction.CreatedAt,
			})
		}
		out = append(out, response)
	}
	return out
}

// MessagePage is one page of room history.
type MessagePage struct {
	Messages []MessageResponse `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// DirectThreadCreateRequest opens (or returns) the thread with another user.
type DirectThreadCreateRequest struct {
	RecipientID    string `json:"recipient_id" validate:"required,max=64"`
	RecipientName  string `json:"recipient_name" validate:"omitempty,max=255"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email,max=255"`
}

// DirectThreadResponse describes a DM thread.
type DirectThreadResponse struct {
	ID              string     `json:"id"`
	User1ID         string     `json:"user1_id"`
	User1Name       string     `json:"user1_name"`
	User1Email      string     `json:"user1_email"`
	User2ID         string     `json:"user2_id"`
	User2Name       string     `json:"user2_name"`
	User2Email      string     `json:"user2_email"`
	LatestMessageID *string    `json:"latest_message_id,omitempty"`
	User1LastReadAt *time.Time `json:"user1_last_read_at,omitempty"`
	User2LastReadAt *time.Time `json:"user2_last_read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewDirectThreadResponse converts a thread model into a DTO.
func NewDirectThreadResponse(thread models.DirectMessageThread) DirectThreadResponse {
	return DirectThreadResponse{
		ID:              thread.ID,
		User1ID:         thread.User1ID,
		User1Name:       thread.User1Name,
		User1Email:      thread.User1Email,
		User2ID:         thread.User2ID,
		User2Name:       thread.User2Name,
		User2Email:      thread.User2Email,
		LatestMessageID: thread.LatestMessageID,
		User1LastReadAt: thread.User1LastReadAt,
		User2LastReadAt: thread.User2LastReadAt,
		CreatedAt:       thread.CreatedAt,
		UpdatedAt:       thread.UpdatedAt,
	}
}

// NewDirectThreadResponseSlice converts a slice of threads into DTOs.
func NewDirectThreadResponseSlice(threads []models.DirectMessageThread) []DirectThreadResponse {
	out := make([]DirectThreadResponse, 0, len(threads))
	for _, thread := range threads {
		out = append(out, NewDirectThreadResponse(thread))
	}
	return out
}

// DirectMessageCreateRequest posts a DM into a thread.
type DirectMessageCreateRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// DirectMessageResponse is the serialized representation of a DM.
type DirectMessageResponse struct {
	ID             string     `json:"id"`
	ThreadID       string     `json:"thread_id"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderEmail    string     `json:"sender_email"`
	MessageType    string     `json:"message_type"`
	Content        string     `json:"content"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsEdited       bool       `json:"is_edited"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewDirectMessageResponse converts a DM model into a DTO.
func NewDirectMessageResponse(message models.DirectMessage) DirectMessageResponse {
	return DirectMessageResponse{
		ID:             message.ID,
		ThreadID:       message.ThreadID,
		SenderID:       message.SenderID,
		SenderName:     message.SenderName,
		SenderEmail:    message.SenderEmail,
		MessageType:    message.MessageType,
		Content:        message.Content,
		AttachmentURL:  message.AttachmentURL,
		AttachmentName: message.AttachmentName,
		IsRead:         message.IsRead,
		ReadAt:         message.ReadAt,
		IsEdited:       message.IsEdited,
		CreatedAt:      message.CreatedAt,
	}
}

// NewDirectMessageResponseSlice converts a slice of DMs into DTOs.
func NewDirectMessageResponseSlice(messages []models.DirectMessage) []DirectMessageResponse {
	out := make([]DirectMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewDirectMessageResponse(message))
	}
	return out
}

// DirectMessagePage is one page of thread history.
type DirectMessagePage struct {
	Messages []DirectMessageResponse `json:"messages"`
	HasMore  bool                    `json:"has_more"`
}

// ThreadReadResponse reports how many messages a mark-read flipped.
type ThreadReadResponse struct {
	ThreadID string `json:"thread_id"`
	Updated  int64  `json:"updated"`
}
