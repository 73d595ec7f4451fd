package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCommandVariants(t *testing.T) {
	cases := []struct {
		frame string
		want  Command
	}{
		{`{"type":"send_message","content":"hi"}`, SendMessageCommand{Content: "hi"}},
		{`{"type":"dm_message","content":"psst"}`, DirectMessageCommand{Content: "psst"}},
		{`{"type":"typing_start"}`, TypingStartCommand{}},
		{`{"type":"typing_stop"}`, TypingStopCommand{}},
		{`{"type":"mark_read"}`, MarkReadCommand{}},
		{`{"type":"reaction_add","message_id":"m1","emoji":"🎉"}`, ReactionAddCommand{MessageID: "m1", Emoji: "🎉"}},
		{`{"type":"reaction_remove","message_id":"m1","emoji":"🎉"}`, ReactionRemoveCommand{MessageID: "m1", Emoji: "🎉"}},
		{`{"type":"authenticate","token":"abc"}`, AuthenticateCommand{Token: "abc"}},
		{`{"type":"dance"}`, UnknownCommand{Type: "dance"}},
	}
	for _, tc := range cases {
		got, err := DecodeCommand([]byte(tc.frame))
		require.NoError(t, err, tc.frame)
		require.Equal(t, tc.want, got)
	}
}

func TestDecodeCommandKeepsParent(t *testing.T) {
	got, err := DecodeCommand([]byte(`{"type":"send_message","content":"re","parent_message_id":"p1"}`))
	require.NoError(t, err)
	send, ok := got.(SendMessageCommand)
	require.True(t, ok)
	require.NotNil(t, send.ParentMessageID)
	require.Equal(t, "p1", *send.ParentMessageID)
}

func TestDecodeCommandRejectsMalformedFrames(t *testing.T) {
	frames := []string{
		`not json`,
		`[]`,
		`{}`,
		`{"type":""}`,
		`{"type":42}`,
		`{"type":"reaction_add","message_id":"m1"}`,
		`{"type":"reaction_remove","emoji":"x"}`,
		`{"type":"reaction_add","message_id":"","emoji":"x"}`,
		`{"type":"authenticate"}`,
		`{"type":"send_message","content":7}`,
	}
	for _, frame := range frames {
		_, err := DecodeCommand([]byte(frame))
		require.Error(t, err, frame)
	}
}

func TestDecodeCommandValidatesNumbersAgainstSchema(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"typing_start","seq":12345678901234567890}`))
	require.NoError(t, err)
	require.Equal(t, TypingStartCommand{}, cmd)

	_, err = DecodeCommand([]byte(`{"type":"mark_read","message_id":1.5}`))
	require.Error(t, err)
}
