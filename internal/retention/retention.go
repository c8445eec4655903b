// Package retention periodically prunes stored chat history: rooms that
// no longer exist lose their history, live rooms keep only their most
// recent messages.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
)

type Config struct {
	Interval time.Duration
	// Messages kept per live room; 0 keeps everything
	KeepMessages int
	// Upper bound for one sweep
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		KeepMessages: 500,
		Timeout:      30 * time.Second,
	}
}

// Store is the part of a chat store the sweep needs
type Store interface {
	chat.Maintainer
}

// ActiveRooms reports which room ids are currently live. ClearOrphaned
// re-checks liveness and clears in order with the room's own store calls;
// it reports whether anything was cleared.
type ActiveRooms interface {
	ActiveRoomIDs(ctx context.Context) (map[string]bool, error)
	ClearOrphaned(ctx context.Context, roomID string) (bool, error)
}

type Result struct {
	Cleared int
	Trimmed int
}

type Service struct {
	store  Store
	rooms  ActiveRooms
	config Config
	log    zerolog.Logger
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(store Store, rooms ActiveRooms, config Config, log zerolog.Logger) *Service {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Service{
		store:  store,
		rooms:  rooms,
		config: config,
		log:    log.With().Str("component", "retention").Logger(),
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Info().Dur("interval", s.config.Interval).Int("keep", s.config.KeepMessages).Msg("retention service started")
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info().Msg("retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
			if _, err := s.SweepNow(ctx); err != nil {
				s.log.Error().Err(err).Msg("retention sweep failed")
			}
			cancel()
		}
	}
}

// SweepNow runs one pass over every room with stored history. Failures
// on single rooms are logged and skipped.
func (s *Service) SweepNow(ctx context.Context) (Result, error) {
	var res Result

	stored, err := s.store.Rooms(ctx)
	if err != nil {
		return res, err
	}
	live, err := s.rooms.ActiveRoomIDs(ctx)
	if err != nil {
		return res, err
	}

	for _, roomID := range stored {
		if !live[roomID] {
			cleared, err := s.rooms.ClearOrphaned(ctx, roomID)
			if err != nil {
				s.log.Error().Err(err).Str("room", roomID).Msg("clear orphaned history")
				continue
			}
			if cleared {
				res.Cleared++
				continue
			}
			s.log.Debug().Str("room", roomID).Msg("room came back during sweep")
		}

		if s.config.KeepMessages <= 0 {
			continue
		}
		if err := s.store.Trim(ctx, roomID, s.config.KeepMessages); err != nil {
			s.log.Error().Err(err).Str("room", roomID).Msg("trim history")
			continue
		}
		res.Trimmed++
	}

	if res.Cleared > 0 || res.Trimmed > 0 {
		s.log.Info().Int("cleared", res.Cleared).Int("trimmed", res.Trimmed).Msg("retention sweep done")
	}
	return res, nil
}
