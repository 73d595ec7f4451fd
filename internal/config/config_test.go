package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TEAMCHAT_JWT_SECRET", "secret")
	t.Setenv("TEAMCHAT_DATABASE_URL", "sqlite:file::memory:")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, 300*time.Second, cfg.PresenceTTL)
	require.Equal(t, 10*time.Second, cfg.AuthTimeout)
	require.Equal(t, 60*time.Second, cfg.TypingMaxAge)
	require.Equal(t, 64, cfg.SendBuffer)
	require.Equal(t, float64(10), cfg.CommandRate)
	require.Equal(t, 20, cfg.CommandBurst)
	require.Equal(t, "* * * * *", cfg.TypingSweepCron)
	require.Equal(t, "teamchat.events", cfg.BroadcastChannel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TEAMCHAT_JWT_SECRET", "secret")
	t.Setenv("TEAMCHAT_DATABASE_URL", "postgres://chat@localhost/chat")
	t.Setenv("TEAMCHAT_APP_PORT", ":9090")
	t.Setenv("TEAMCHAT_APP_ENV", "production")
	t.Setenv("TEAMCHAT_PRESENCE_TTL", "45s")
	t.Setenv("TEAMCHAT_NATS_URL", "nats://localhost:4222")
	t.Setenv("TEAMCHAT_TYPING_SWEEP_CRON", "*/2 * * * *")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.False(t, cfg.IsDevelopment())
	require.Equal(t, 45*time.Second, cfg.PresenceTTL)
	require.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	require.Equal(t, "*/2 * * * *", cfg.TypingSweepCron)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"TEAMCHAT_DATABASE_URL": "sqlite:chat.db"},
		"missing database": {"TEAMCHAT_JWT_SECRET": "secret"},
		"bad duration": {
			"TEAMCHAT_JWT_SECRET": "secret", "TEAMCHAT_DATABASE_URL": "sqlite:chat.db", "TEAMCHAT_AUTH_TIMEOUT": "soon",
		},
		"bad cron": {
			"TEAMCHAT_JWT_SECRET": "secret", "TEAMCHAT_DATABASE_URL": "sqlite:chat.db", "TEAMCHAT_TYPING_SWEEP_CRON": "every minute",
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := load(viper.New())
			require.Error(t, err)
		})
	}
}
