package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/models"
	"github.com/noah-isme/gema-teamchat/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type chatFixture struct {
	db       *gorm.DB
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	typing   repository.TypingRepository
	threads  repository.DirectMessageRepository
	hub      *BroadcastHub
	presence *PresenceTracker
	chats    ChatService
	directs  DirectService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := &chatFixture{
		db:       db,
		rooms:    repository.NewRoomRepository(db),
		messages: repository.NewMessageRepository(db),
		typing:   repository.NewTypingRepository(db),
		threads:  repository.NewDirectMessageRepository(db),
		hub:      NewBroadcastHub(nil, testLogger()),
		presence: NewPresenceTracker(NewMemoryTTLStore(), 0),
	}
	validate := validator.New()
	f.chats = NewChatService(f.rooms, f.messages, f.typing, f.hub, nil, validate, testLogger())
	f.directs = NewDirectService(f.threads, f.presence, f.hub, validate, testLogger())
	return f
}

func testActor(userID string) Actor {
	return Actor{Identity: auth.Identity{UserID: userID, UserName: "User " + userID, UserEmail: userID + "@example.com"}}
}

func (f *chatFixture) createRoom(t *testing.T, owner string, roomType string) dto.RoomResponse {
	t.Helper()
	room, err := f.chats.CreateRoom(context.Background(), testActor(owner), dto.RoomCreateRequest{Name: "team " + owner, RoomType: roomType})
	require.NoError(t, err)
	return room
}

func (f *chatFixture) openThread(t *testing.T, a, b string) dto.DirectThreadResponse {
	t.Helper()
	thread, _, err := f.directs.OpenThread(context.Background(), testActor(a), dto.DirectThreadCreateRequest{RecipientID: b, RecipientName: "User " + b})
	require.NoError(t, err)
	return thread
}
