package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	dtengine "github.com/snarg/dt-engine"
	"github.com/snarg/dt-engine/internal/api"
	"github.com/snarg/dt-engine/internal/asr"
	"github.com/snarg/dt-engine/internal/config"
	"github.com/snarg/dt-engine/internal/database"
	"github.com/snarg/dt-engine/internal/ingest"
	"github.com/snarg/dt-engine/internal/metrics"
	"github.com/snarg/dt-engine/internal/mqttclient"
	"github.com/snarg/dt-engine/internal/storage"
	"github.com/snarg/dt-engine/internal/transcribe"
)

var version = "dev"

// pipelineStats adapts the worker pool and event bus to the metrics collector.
type pipelineStats struct {
	pool *transcribe.WorkerPool
	bus  *ingest.EventBus
}

func (p pipelineStats) PendingJobCount() int    { return p.pool.PendingJobCount() }
func (p pipelineStats) SSESubscriberCount() int { return p.bus.SubscriberCount() }

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file (default \".env\")")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "db-url", "", "database URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "artifact directory (overrides AUDIO_DIR)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("dt-engine starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx, dtengine.SchemaSQL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize schema")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Artifact store
	store, err := storage.New(cfg.S3, cfg.AudioDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize artifact store")
	}
	log.Info().Str("backend", store.Type()).Msg("artifact store ready")

	// MQTT (optional)
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
	}

	// Event bus for SSE subscribers
	bus := ingest.NewEventBus(256)

	// Pipeline worker pool
	asrClient := asr.New(asr.Options{
		TranscribeURL: cfg.TranscribeURL,
		AlignURL:      cfg.AlignURL,
		DiarizeURL:    cfg.DiarizeURL,
		Model:         cfg.ASRModel,
		Language:      cfg.ASRLanguage,
		Timeout:       cfg.ASRTimeout,
	})

	pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		DB:           db,
		Store:        store,
		ASR:          asrClient,
		Model:        cfg.ASRModel,
		GapThreshold: cfg.GapThreshold,
		Workers:      cfg.Workers,
		QueueSize:    cfg.QueueSize,
		PublishEvent: func(eventType string, jobID int64, payload map[string]any) {
			bus.Publish(ingest.EventData{Type: eventType, JobID: jobID, Payload: payload})
		},
		PublishState: func(jobID int64, state string) {
			if mqtt != nil {
				mqtt.Publish(fmt.Sprintf("dt-engine/jobs/%d/state", jobID), []byte(state))
			}
		},
		Log: log.With().Str("component", "pipeline").Logger(),
	})
	pool.Start()

	// Job intake
	submitter := ingest.NewSubmitter(db, store, pool, bus, log)

	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(submitter, cfg.WatchDir, cfg.WatchBackfill, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
	}

	if mqtt != nil {
		mqtt.SetMessageHandler(ingest.NewMQTTHandler(submitter, log))
	}

	// Scrape-time gauges
	prometheus.MustRegister(metrics.NewCollector(db.Pool, pipelineStats{pool: pool, bus: bus}))

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.ServerDeps{
		DB:        db,
		Store:     store,
		MQTT:      mqtt,
		Submitter: submitter,
		Queue:     pool,
		Live:      &ingest.LiveData{Bus: bus, Watcher: watcher},
		Version:   version,
		StartTime: startTime,
	}, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Stop intake first so the pool can drain what it already accepted.
	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	pool.Stop()

	log.Info().Msg("dt-engine stopped")
}
