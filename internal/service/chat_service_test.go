package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/apperror"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/models"
)

func TestChatServiceSendMessageBroadcastsToRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)

	listener := newRecordingMember("listener", 4)
	f.hub.Join(RoomChannel(room.ID), listener)

	resp, err := f.chats.SendMessage(ctx, testActor("u1"), room.ID, "hello @ana and @bo.", nil)
	require.NoError(t, err)
	require.Equal(t, "hello @ana and @bo.", resp.Content)
	require.Equal(t, []string{"ana", "bo"}, resp.Mentions)

	event := listener.next(t)
	require.Equal(t, dto.EventNewMessage, event.Type)
	data := event.Data.(map[string]interface{})
	require.Equal(t, resp.ID, data["id"])
}

func TestChatServiceSendMessageRejectsEmptyContent(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)
	listener := newRecordingMember("listener", 4)
	f.hub.Join(RoomChannel(room.ID), listener)

	_, err := f.chats.SendMessage(ctx, testActor("u1"), room.ID, "  <script>alert(1)</script> ", nil)
	require.ErrorIs(t, err, apperror.ErrValidationFailed)

	var count int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
	listener.empty(t)
}

func TestChatServiceSanitizesMarkup(t *testing.T) {
	f := newChatFixture(t)
	room := f.createRoom(t, "u1", models.RoomTypePublic)

	resp, err := f.chats.SendMessage(context.Background(), testActor("u1"), room.ID, `<b>hi</b><img src=x onerror=alert(1)>`, nil)
	require.NoError(t, err)
	require.NotContains(t, resp.Content, "onerror")
	require.Contains(t, resp.Content, "<b>hi</b>")
}

func TestChatServicePrivateRoomAccess(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "owner", models.RoomTypePrivate)

	_, err := f.chats.AuthorizeRoom(ctx, testActor("owner"), room.ID)
	require.NoError(t, err)

	_, err = f.chats.AuthorizeRoom(ctx, testActor("stranger"), room.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.chats.JoinRoom(ctx, testActor("stranger"), room.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.chats.History(ctx, testActor("stranger"), room.ID, dto.HistoryQuery{})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.chats.AuthorizeRoom(ctx, testActor("owner"), "missing-room")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestChatServiceArchiveRequiresManager(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "owner", models.RoomTypePublic)
	_, err := f.chats.JoinRoom(ctx, testActor("member"), room.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.chats.ArchiveRoom(ctx, testActor("member"), room.ID), apperror.ErrForbidden)
	require.NoError(t, f.chats.ArchiveRoom(ctx, testActor("owner"), room.ID))

	_, err = f.chats.AuthorizeRoom(ctx, testActor("owner"), room.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestChatServiceHistoryIncludesReactions(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)

	first, err := f.chats.SendMessage(ctx, testActor("u1"), room.ID, "first", nil)
	require.NoError(t, err)
	_, err = f.chats.SendMessage(ctx, testActor("u1"), room.ID, "second", &first.ID)
	require.NoError(t, err)

	added, err := f.chats.ToggleReaction(ctx, testActor("u2"), "", first.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, dto.ReactionAdded, added.Action)

	page, err := f.chats.History(ctx, testActor("u1"), room.ID, dto.HistoryQuery{Limit: 10})
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	require.Equal(t, "first", page.Messages[0].Content)
	require.Len(t, page.Messages[0].Reactions, 1)
	require.Equal(t, "👍", page.Messages[0].Reactions[0].Emoji)
	require.NotNil(t, page.Messages[1].ParentMessageID)
	require.Equal(t, first.ID, *page.Messages[1].ParentMessageID)

	removed, err := f.chats.ToggleReaction(ctx, testActor("u2"), "", first.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, dto.ReactionRemoved, removed.Action)
}

func TestChatServiceReactionScopedToSessionRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)
	other := f.createRoom(t, "u1", models.RoomTypePublic)

	message, err := f.chats.SendMessage(ctx, testActor("u1"), other.ID, "elsewhere", nil)
	require.NoError(t, err)

	_, err = f.chats.ToggleReaction(ctx, testActor("u1"), room.ID, message.ID, "🎉")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestChatServiceEditAndDeleteAreSenderOnly(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)
	message, err := f.chats.SendMessage(ctx, testActor("u1"), room.ID, "draft", nil)
	require.NoError(t, err)

	_, err = f.chats.EditMessage(ctx, testActor("u2"), message.ID, "hijack")
	require.ErrorIs(t, err, apperror.ErrForbidden)

	edited, err := f.chats.EditMessage(ctx, testActor("u1"), message.ID, "final")
	require.NoError(t, err)
	require.True(t, edited.IsEdited)
	require.Equal(t, "final", edited.Content)

	require.ErrorIs(t, f.chats.DeleteMessage(ctx, testActor("u2"), message.ID), apperror.ErrForbidden)
	require.NoError(t, f.chats.DeleteMessage(ctx, testActor("u1"), message.ID))

	page, err := f.chats.History(ctx, testActor("u1"), room.ID, dto.HistoryQuery{})
	require.NoError(t, err)
	require.Empty(t, page.Messages)
}

func TestChatServiceTypingExcludesOwnSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)

	own := newRecordingMember("own", 4)
	peer := newRecordingMember("peer", 4)
	f.hub.Join(RoomChannel(room.ID), own)
	f.hub.Join(RoomChannel(room.ID), peer)

	actor := testActor("u1")
	actor.SessionID = "own"
	require.NoError(t, f.chats.StartTyping(ctx, actor, room.ID))

	indicators, err := f.typing.ListInRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, indicators, 1)

	event := peer.next(t)
	require.Equal(t, dto.EventTyping, event.Type)
	require.Equal(t, true, event.Data.(map[string]interface{})["is_typing"])
	own.empty(t)

	require.NoError(t, f.chats.StopTyping(ctx, actor, room.ID))
	require.Equal(t, false, peer.next(t).Data.(map[string]interface{})["is_typing"])
	indicators, err = f.typing.ListInRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, indicators)
}

func TestChatServiceListRoomsForMember(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	joined := f.createRoom(t, "u1", models.RoomTypePublic)
	f.createRoom(t, "u2", models.RoomTypePublic)

	rooms, err := f.chats.ListRooms(ctx, testActor("u1"), 0)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, joined.ID, rooms[0].ID)

	require.ErrorIs(t, f.chats.LeaveRoom(ctx, testActor("u1"), joined.ID), apperror.ErrConflict)
	_, err = f.chats.JoinRoom(ctx, testActor("u3"), joined.ID)
	require.NoError(t, err)
	require.NoError(t, f.chats.LeaveRoom(ctx, testActor("u3"), joined.ID))
}

func TestChatServiceRemoveReactionBroadcastsOnlyRealRemovals(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "u1", models.RoomTypePublic)
	message, err := f.chats.SendMessage(ctx, testActor("u1"), room.ID, "hi", nil)
	require.NoError(t, err)

	listener := newRecordingMember("listener", 4)
	f.hub.Join(RoomChannel(room.ID), listener)

	_, err = f.chats.RemoveReaction(ctx, testActor("u2"), room.ID, message.ID, "👍")
	require.NoError(t, err)
	listener.empty(t)

	_, err = f.chats.ToggleReaction(ctx, testActor("u2"), room.ID, message.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, dto.EventReaction, listener.next(t).Type)

	removed, err := f.chats.RemoveReaction(ctx, testActor("u2"), room.ID, message.ID, "👍")
	require.NoError(t, err)
	require.Equal(t, dto.ReactionRemoved, removed.Action)
	require.Equal(t, dto.EventReaction, listener.next(t).Type)
}
