package dto

import "time"

// Outbound realtime event types.
const (
	EventNewMessage   = "new_message"
	EventNewDM        = "new_dm"
	EventTyping       = "typing"
	EventReaction     = "reaction"
	EventUserPresence = "user_presence"
	EventError        = "error"
)

// Presence statuses carried by user_presence events.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Reaction actions carried by reaction events.
const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

// Error codes carried by error events.
const (
	ErrorCodeUnknownCommand = "unknown_command"
	ErrorCodeInvalidPayload = "invalid_payload"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeNotFound       = "not_found"
	ErrorCodeValidation     = "validation_failed"
	ErrorCodeConflict       = "conflict"
	ErrorCodeUnavailable    = "unavailable"
)

// Event is the envelope of every frame pushed to a websocket client.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an outbound event.
func NewEvent(eventType string, data interface{}) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// TypingEvent announces that a user started or stopped typing.
type TypingEvent struct {
	RoomID   string `json:"room_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// PresenceEvent announces a user joining or leaving a channel.
type PresenceEvent struct {
	RoomID   string `json:"room_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Status   string `json:"status"`
}

// ReactionEvent announces a reaction being added or removed.
type ReactionEvent struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
}

// ErrorEvent reports a failed command to its sender.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
