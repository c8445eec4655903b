package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/api"
	"github.com/manpreetbhatti/collabrooms/internal/chat"
	"github.com/manpreetbhatti/collabrooms/internal/config"
	"github.com/manpreetbhatti/collabrooms/internal/coordinator"
	"github.com/manpreetbhatti/collabrooms/internal/logging"
	"github.com/manpreetbhatti/collabrooms/internal/metrics"
	"github.com/manpreetbhatti/collabrooms/internal/retention"
	"github.com/manpreetbhatti/collabrooms/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	store, err := chat.Open(openCtx, cfg.ChatOptions())
	openCancel()
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.ChatBackend).Msg("failed to open chat store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := ws.NewHub(log, m)
	coord := coordinator.New(log, hub, store, m, coordinator.Options{
		StrictJoinResponses: cfg.StrictJoinResponses,
		CloseEmptyRooms:     cfg.CloseEmptyRooms,
		StoreTimeout:        cfg.StoreTimeout,
		MaxMessageLength:    cfg.MaxMessageLength,
	})
	go coord.Run(ctx)

	var sweeper *retention.Service
	if maint, ok := store.(retention.Store); ok && cfg.RetentionInterval > 0 {
		sweeper = retention.New(maint, coord, retention.Config{
			Interval:     cfg.RetentionInterval,
			KeepMessages: cfg.ChatHistoryLimit,
		}, log)
		sweeper.Start()
	}

	wsServer := ws.NewServer(ctx, hub, coord, ws.Options{
		MessagesPerSecond: cfg.WSMessagesPerSecond,
		MessageBurst:      cfg.WSMessageBurst,
		AllowedOrigins:    cfg.CORSAllow,
	})

	handler := api.New(coord, store, hub, log).Router(api.RouterOptions{
		AllowedOrigins: cfg.CORSAllow,
		RateLimit:      cfg.HTTPRateLimit,
		WebSocket:      wsServer,
		Metrics:        m.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("chat_backend", cfg.ChatBackend).
			Bool("strict_join_responses", cfg.StrictJoinResponses).
			Msg("collabrooms server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe")
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			hub.CloseAll()
			return err
		},
		"rooms": func(ctx context.Context) error {
			return stopCore(ctx, log, cancel, coord, sweeper, store)
		},
	})

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("server stopped")
	os.Exit(exitCode)
}

// stopCore halts the sweeper and the coordinator loop before the chat
// store goes away.
func stopCore(ctx context.Context, log zerolog.Logger, cancel context.CancelFunc, coord *coordinator.Coordinator, sweeper *retention.Service, store chat.Store) error {
	if sweeper != nil {
		sweeper.Stop()
	}

	cancel()
	select {
	case <-coord.Done():
	case <-ctx.Done():
		log.Warn().Msg("coordinator did not stop in time")
	}

	return store.Close()
}
