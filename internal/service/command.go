package service

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Inbound frame types.
const (
	CommandAuthenticate   = "authenticate"
	CommandSendMessage    = "send_message"
	CommandDirectMessage  = "dm_message"
	CommandTypingStart    = "typing_start"
	CommandTypingStop     = "typing_stop"
	CommandMarkRead       = "mark_read"
	CommandReactionAdd    = "reaction_add"
	CommandReactionRemove = "reaction_remove"
)

//go:embed schema/inbound_frame.schema.json
var inboundFrameSchema string

var frameSchema = jsonschema.MustCompileString("inbound_frame.schema.json", inboundFrameSchema)

// Command is the closed set of inbound commands a session can dispatch.
type Command interface {
	Name() string
	command()
}

// SendMessageCommand posts a room message.
type SendMessageCommand struct {
	Content         string
	ParentMessageID *string
}

// DirectMessageCommand posts a DM.
type DirectMessageCommand struct {
	Content string
}

// TypingStartCommand marks the sender as typing.
type TypingStartCommand struct{}

// TypingStopCommand clears the sender's typing marker.
type TypingStopCommand struct{}

// MarkReadCommand advances the sender's read marker.
type MarkReadCommand struct{}

// ReactionAddCommand toggles a reaction on.
type ReactionAddCommand struct {
	MessageID string
	Emoji     string
}

// ReactionRemoveCommand removes a reaction.
type ReactionRemoveCommand struct {
	MessageID string
	Emoji     string
}

// AuthenticateCommand carries a token on the first frame when none came with the upgrade request.
type AuthenticateCommand struct {
	Token string
}

// UnknownCommand is any well formed frame whose type is not recognised.
type UnknownCommand struct {
	Type string
}

func (SendMessageCommand) Name() string    { return CommandSendMessage }
func (DirectMessageCommand) Name() string  { return CommandDirectMessage }
func (TypingStartCommand) Name() string    { return CommandTypingStart }
func (TypingStopCommand) Name() string     { return CommandTypingStop }
func (MarkReadCommand) Name() string       { return CommandMarkRead }
func (ReactionAddCommand) Name() string    { return CommandReactionAdd }
func (ReactionRemoveCommand) Name() string { return CommandReactionRemove }
func (AuthenticateCommand) Name() string   { return CommandAuthenticate }
func (c UnknownCommand) Name() string      { return c.Type }

func (SendMessageCommand) command()    {}
func (DirectMessageCommand) command()  {}
func (TypingStartCommand) command()    {}
func (TypingStopCommand) command()     {}
func (MarkReadCommand) command()       {}
func (ReactionAddCommand) command()    {}
func (ReactionRemoveCommand) command() {}
func (AuthenticateCommand) command()   {}
func (UnknownCommand) command()        {}

type inboundFrame struct {
	Type            string  `json:"type"`
	Token           string  `json:"token"`
	Content         string  `json:"content"`
	ParentMessageID *string `json:"parent_message_id"`
	MessageID       string  `json:"message_id"`
	Emoji           string  `json:"emoji"`
}

// DecodeCommand validates a text frame against the inbound schema and maps it onto a Command.
func DecodeCommand(data []byte) (Command, error) {
	var document interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&document); err != nil {
		return nil, fmt.Errorf("frame is not valid json: %w", err)
	}
	if err := frameSchema.Validate(document); err != nil {
		return nil, fmt.Errorf("frame rejected: %w", err)
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case CommandSendMessage:
		return SendMessageCommand{Content: frame.Content, ParentMessageID: frame.ParentMessageID}, nil
	case CommandDirectMessage:
		return DirectMessageCommand{Content: frame.Content}, nil
	case CommandTypingStart:
		return TypingStartCommand{}, nil
	case CommandTypingStop:
		return TypingStopCommand{}, nil
	case CommandMarkRead:
		return MarkReadCommand{}, nil
	case CommandReactionAdd:
		return ReactionAddCommand{MessageID: frame.MessageID, Emoji: frame.Emoji}, nil
	case CommandReactionRemove:
		return ReactionRemoveCommand{MessageID: frame.MessageID, Emoji: frame.Emoji}, nil
	case CommandAuthenticate:
		return AuthenticateCommand{Token: frame.Token}, nil
	default:
		return UnknownCommand{Type: frame.Type}, nil
	}
}
