package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPresenceKeyFormat(t *testing.T) {
	require.Equal(t, "presence:room:r1:u1", PresenceKey(PresenceScopeRoom, "r1", "u1"))
	require.Equal(t, "presence:dm:t1:u2", PresenceKey(PresenceScopeDirect, "t1", "u2"))
}

func TestPresenceTrackerMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTTLStore()
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	tracker := NewPresenceTracker(store, time.Minute)

	require.NoError(t, tracker.MarkOnline(ctx, PresenceScopeRoom, "r1", "u1", "s1"))
	online, err := tracker.IsOnline(ctx, PresenceScopeRoom, "r1", "u1")
	require.NoError(t, err)
	require.True(t, online)

	online, err = tracker.IsOnline(ctx, PresenceScopeRoom, "r2", "u1")
	require.NoError(t, err)
	require.False(t, online)

	current = current.Add(61 * time.Second)
	online, err = tracker.IsOnline(ctx, PresenceScopeRoom, "r1", "u1")
	require.NoError(t, err)
	require.False(t, online)
}

func TestPresenceTrackerDefaultsTTL(t *testing.T) {
	require.Equal(t, DefaultPresenceTTL, NewPresenceTracker(NewMemoryTTLStore(), 0).TTL())
}

func TestPresenceTrackerRedis(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := NewPresenceTracker(NewRedisTTLStore(client), 30*time.Second)

	require.NoError(t, tracker.MarkOnline(ctx, PresenceScopeDirect, "t1", "u1", "s1"))
	require.True(t, server.Exists(PresenceKey(PresenceScopeDirect, "t1", "u1")))
	require.Equal(t, 30*time.Second, server.TTL(PresenceKey(PresenceScopeDirect, "t1", "u1")))

	require.NoError(t, tracker.StartDirectTyping(ctx, "t1", "u1"))
	typing, err := tracker.IsDirectTyping(ctx, "t1", "u1")
	require.NoError(t, err)
	require.True(t, typing)

	server.FastForward(31 * time.Second)
	online, err := tracker.IsOnline(ctx, PresenceScopeDirect, "t1", "u1")
	require.NoError(t, err)
	require.False(t, online)
	typing, err = tracker.IsDirectTyping(ctx, "t1", "u1")
	require.NoError(t, err)
	require.False(t, typing)
}

func TestPresenceTrackerMarkOfflineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tracker := NewPresenceTracker(NewMemoryTTLStore(), time.Minute)

	require.NoError(t, tracker.MarkOnline(ctx, PresenceScopeRoom, "r1", "u1", "s1"))
	for i := 0; i < 2; i++ {
		released, err := tracker.MarkOffline(ctx, PresenceScopeRoom, "r1", "u1", "s1")
		require.NoError(t, err)
		require.True(t, released)
	}

	online, err := tracker.IsOnline(ctx, PresenceScopeRoom, "r1", "u1")
	require.NoError(t, err)
	require.False(t, online)
}

func TestPresenceTrackerMarkOfflineKeepsNewerSession(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]TTLStore{
		"memory": NewMemoryTTLStore(),
		"redis":  NewRedisTTLStore(client),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			tracker := NewPresenceTracker(store, time.Minute)
			require.NoError(t, tracker.MarkOnline(ctx, PresenceScopeRoom, "r1", "u1", "tab-1"))
			require.NoError(t, tracker.MarkOnline(ctx, PresenceScopeRoom, "r1", "u1", "tab-2"))

			released, err := tracker.MarkOffline(ctx, PresenceScopeRoom, "r1", "u1", "tab-1")
			require.NoError(t, err)
			require.False(t, released)
			online, err := tracker.IsOnline(ctx, PresenceScopeRoom, "r1", "u1")
			require.NoError(t, err)
			require.True(t, online)

			released, err = tracker.MarkOffline(ctx, PresenceScopeRoom, "r1", "u1", "tab-2")
			require.NoError(t, err)
			require.True(t, released)
			online, err = tracker.IsOnline(ctx, PresenceScopeRoom, "r1", "u1")
			require.NoError(t, err)
			require.False(t, online)
		})
	}
}
