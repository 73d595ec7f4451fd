package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-teamchat/internal/models"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	db, err := Connect(fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, model := range models.All() {
		require.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
	require.True(t, db.Migrator().HasIndex(&models.RoomMember{}, "idx_room_member"))
	require.True(t, db.Migrator().HasIndex(&models.MessageReaction{}, "idx_reaction_unique"))
	require.True(t, db.Migrator().HasIndex(&models.DirectMessageThread{}, "idx_dm_pair"))
}

func TestConnectRejectsEmptyDSN(t *testing.T) {
	_, err := Connect("")
	require.Error(t, err)

	_, err = Connect("sqlite:")
	require.Error(t, err)
}
