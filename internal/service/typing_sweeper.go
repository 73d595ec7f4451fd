package service

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/observability"
	"github.com/noah-isme/gema-teamchat/internal/repository"
)

// DefaultSweepCron runs the typing sweeper every minute.
const DefaultSweepCron = "* * * * *"

// TypingSweeper removes room typing indicators whose session vanished without a stop and tells the room.
type TypingSweeper struct {
	typing repository.TypingRepository
	hub    *BroadcastHub
	maxAge time.Duration
	cron   string
	now    func() time.Time
	logger zerolog.Logger
}

// NewTypingSweeper validates cron and returns a sweeper. An empty cron falls back to DefaultSweepCron.
func NewTypingSweeper(typing repository.TypingRepository, hub *BroadcastHub, maxAge time.Duration, cron string, logger zerolog.Logger) (*TypingSweeper, error) {
	if cron == "" {
		cron = DefaultSweepCron
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid typing sweep cron expression: %s", cron)
	}
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}
	return &TypingSweeper{
		typing: typing,
		hub:    hub,
		maxAge: maxAge,
		cron:   cron,
		now:    time.Now,
		logger: logger.With().Str("component", "typing_sweeper").Logger(),
	}, nil
}

// Run sweeps on every cron tick until ctx is cancelled.
func (s *TypingSweeper) Run(ctx context.Context) {
	s.logger.Info().Str("cron", s.cron).Dur("max_age", s.maxAge).Msg("typing sweeper started")
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now().UTC(), false)
		wait := 30 * time.Second
		if err != nil {
			s.logger.Error().Err(err).Msg("typing sweeper failed to compute next tick")
		} else if until := time.Until(next); until > 0 {
			wait = until
		} else {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("typing sweeper stopping")
			return
		case <-timer.C:
		}
		if err == nil {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("typing sweep failed")
			}
		}
	}
}

// Sweep deletes indicators older than the max age and broadcasts typing stopped for each. It returns how many were removed.
func (s *TypingSweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.typing.DeleteStale(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		return 0, err
	}
	for _, indicator := range stale {
		event := dto.NewEvent(dto.EventTyping, dto.TypingEvent{
			RoomID:   indicator.RoomID,
			UserID:   indicator.UserID,
			UserName: indicator.UserName,
			IsTyping: false,
		})
		if s.hub == nil {
			continue
		}
		if err := s.hub.Publish(ctx, RoomChannel(indicator.RoomID), event); err != nil {
			s.logger.Warn().Err(err).Str("room_id", indicator.RoomID).Msg("failed to relay swept typing indicator")
		}
	}
	if len(stale) > 0 {
		observability.TypingSwept().Add(float64(len(stale)))
		s.logger.Debug().Int("count", len(stale)).Msg("stale typing indicators swept")
	}
	return len(stale), nil
}
