package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/dto"
)

type recordingMember struct {
	id      string
	frames  chan []byte
	dropped atomic.Int32
}

func newRecordingMember(id string, buffer int) *recordingMember {
	return &recordingMember{id: id, frames: make(chan []byte, buffer)}
}

func (m *recordingMember) SessionID() string { return m.id }

func (m *recordingMember) Enqueue(frame []byte) bool {
	select {
	case m.frames <- frame:
		return true
	default:
		return false
	}
}

func (m *recordingMember) Drop(string) { m.dropped.Add(1) }

func (m *recordingMember) next(t *testing.T) dto.Event {
	t.Helper()
	select {
	case frame := <-m.frames:
		var event dto.Event
		require.NoError(t, json.Unmarshal(frame, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("member %s received nothing", m.id)
		return dto.Event{}
	}
}

func (m *recordingMember) empty(t *testing.T) {
	t.Helper()
	select {
	case frame := <-m.frames:
		t.Fatalf("member %s got unexpected frame %s", m.id, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func typingEvent(userID string, typing bool) dto.Event {
	return dto.NewEvent(dto.EventTyping, dto.TypingEvent{RoomID: "r1", UserID: userID, IsTyping: typing})
}

func TestBroadcastHubDeliversInPublishOrder(t *testing.T) {
	hub := NewBroadcastHub(nil, testLogger())
	member := newRecordingMember("s1", 16)
	hub.Join("room:r1", member)

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(context.Background(), "room:r1", dto.NewEvent(dto.EventNewMessage, map[string]int{"seq": i})))
	}
	for i := 0; i < 5; i++ {
		event := member.next(t)
		require.Equal(t, dto.EventNewMessage, event.Type)
		data := event.Data.(map[string]interface{})
		require.EqualValues(t, i, data["seq"])
	}
}

func TestBroadcastHubExcludesSenderAndOtherChannels(t *testing.T) {
	hub := NewBroadcastHub(nil, testLogger())
	sender := newRecordingMember("s1", 4)
	peer := newRecordingMember("s2", 4)
	outsider := newRecordingMember("s3", 4)
	hub.Join("room:r1", sender)
	hub.Join("room:r1", peer)
	hub.Join("room:r2", outsider)

	require.NoError(t, hub.Publish(context.Background(), "room:r1", typingEvent("u1", true), ExcludeSession("s1")))

	require.Equal(t, dto.EventTyping, peer.next(t).Type)
	sender.empty(t)
	outsider.empty(t)
}

func TestBroadcastHubDropsSlowConsumerOnly(t *testing.T) {
	hub := NewBroadcastHub(nil, testLogger())
	slow := newRecordingMember("slow", 1)
	healthy := newRecordingMember("healthy", 8)
	hub.Join("room:r1", slow)
	hub.Join("room:r1", healthy)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), "room:r1", typingEvent("u1", i%2 == 0)))
	}

	require.EqualValues(t, 1, slow.dropped.Load())
	require.Equal(t, 1, hub.Members("room:r1"))
	for i := 0; i < 3; i++ {
		require.Equal(t, dto.EventTyping, healthy.next(t).Type)
	}
}

func TestBroadcastHubLeaveRemovesEmptyGroup(t *testing.T) {
	hub := NewBroadcastHub(nil, testLogger())
	member := newRecordingMember("s1", 1)
	hub.Join("dm:a:b", member)
	require.Equal(t, 1, hub.Members("dm:a:b"))

	hub.Leave("dm:a:b", member)
	hub.Leave("dm:a:b", member)
	require.Equal(t, 0, hub.Members("dm:a:b"))

	require.NoError(t, hub.Publish(context.Background(), "dm:a:b", typingEvent("a", true)))
	member.empty(t)
}

func TestBroadcastHubRelaysAcrossNodesOverRedis(t *testing.T) {
	server := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodeA := NewBroadcastHub(NewRedisRelay(newClient(), "teamchat:test", testLogger()), testLogger())
	nodeB := NewBroadcastHub(NewRedisRelay(newClient(), "teamchat:test", testLogger()), testLogger())
	require.NoError(t, nodeA.Start(ctx))
	require.NoError(t, nodeB.Start(ctx))

	local := newRecordingMember("a1", 4)
	remote := newRecordingMember("b1", 4)
	excluded := newRecordingMember("b2", 4)
	nodeA.Join("room:r1", local)
	nodeB.Join("room:r1", remote)
	nodeB.Join("room:r1", excluded)

	require.NoError(t, nodeA.Publish(ctx, "room:r1", typingEvent("u1", true), ExcludeSession("b2")))

	require.Equal(t, dto.EventTyping, local.next(t).Type)
	require.Equal(t, dto.EventTyping, remote.next(t).Type)
	excluded.empty(t)
	// The publishing node ignores its own relayed copy.
	local.empty(t)
}
