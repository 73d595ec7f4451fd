package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPresenceTTL bounds how long a crashed session can appear online.
const DefaultPresenceTTL = 300 * time.Second

// ErrCacheMiss is returned by TTLStore.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// TTLStore is the narrow key/value contract behind presence and DM typing.
type TTLStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// DeleteIfValue removes key only while it still holds value. It reports whether
	// the key is now absent.
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

type redisTTLStore struct {
	client *redis.Client
}

// NewRedisTTLStore backs the TTL contract with Redis.
func NewRedisTTLStore(client *redis.Client) TTLStore {
	return &redisTTLStore{client: client}
}

func (s *redisTTLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisTTLStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

func (s *redisTTLStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

var deleteIfValueScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  return 1
end
if current == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

func (s *redisTTLStore) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	released, err := deleteIfValueScript.Run(ctx, s.client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return released == 1, nil
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryTTLStore is an in-process TTLStore for single-node deployments and tests.
type MemoryTTLStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryTTLStore creates an empty in-process store.
func NewMemoryTTLStore() *MemoryTTLStore {
	return &MemoryTTLStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryTTLStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryTTLStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

func (s *MemoryTTLStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryTTLStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || (!entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)) {
		delete(s.entries, key)
		return true, nil
	}
	if entry.value != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Presence scopes.
const (
	PresenceScopeRoom   = "room"
	PresenceScopeDirect = "dm"
)

// PresenceTracker records who is online in a room or DM thread and who is typing in a DM.
// It is advisory only and never used as membership.
type PresenceTracker struct {
	store TTLStore
	ttl   time.Duration
}

// NewPresenceTracker wraps store with the given TTL, falling back to DefaultPresenceTTL.
func NewPresenceTracker(store TTLStore, ttl time.Duration) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceTracker{store: store, ttl: ttl}
}

// TTL reports the expiry applied to presence entries.
func (p *PresenceTracker) TTL() time.Duration {
	return p.ttl
}

// PresenceKey formats the cache key for a user in a scope target.
func PresenceKey(scope, target, userID string) string {
	return fmt.Sprintf("presence:%s:%s:%s", scope, target, userID)
}

func typingKey(threadID, userID string) string {
	return fmt.Sprintf("typing:%s:%s:%s", PresenceScopeDirect, threadID, userID)
}

// MarkOnline sets or refreshes the presence entry.
func (p *PresenceTracker) MarkOnline(ctx context.Context, scope, target, userID, sessionID string) error {
	return p.store.Set(ctx, PresenceKey(scope, target, userID), sessionID, p.ttl)
}

// IsOnline reports whether the user has a live presence entry.
func (p *PresenceTracker) IsOnline(ctx context.Context, scope, target, userID string) (bool, error) {
	_, err := p.store.Get(ctx, PresenceKey(scope, target, userID))
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

// MarkOffline removes the presence entry when it is still owned by sessionID.
// It returns false when another session of the same user refreshed the entry since.
func (p *PresenceTracker) MarkOffline(ctx context.Context, scope, target, userID, sessionID string) (bool, error) {
	return p.store.DeleteIfValue(ctx, PresenceKey(scope, target, userID), sessionID)
}

// StartDirectTyping records that the user is typing in a DM thread.
func (p *PresenceTracker) StartDirectTyping(ctx context.Context, threadID, userID string) error {
	return p.store.Set(ctx, typingKey(threadID, userID), "1", p.ttl)
}

// StopDirectTyping clears the DM typing entry.
func (p *PresenceTracker) StopDirectTyping(ctx context.Context, threadID, userID string) error {
	return p.store.Delete(ctx, typingKey(threadID, userID))
}

// IsDirectTyping reports whether the user is typing in the thread.
func (p *PresenceTracker) IsDirectTyping(ctx context.Context, threadID, userID string) (bool, error) {
	_, err := p.store.Get(ctx, typingKey(threadID, userID))
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}
