package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"propel/engine/internal/archive"
	"propel/engine/internal/blob"
	"propel/engine/internal/config"
	"propel/engine/internal/provider"
	"propel/engine/internal/queue"
	"propel/engine/internal/store"
	"propel/engine/internal/sync"
	"propel/engine/internal/version"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var syncQueue queue.Queue
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis sync queue")
		redisQueue, err := queue.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisQueue.Close()
		syncQueue = redisQueue
	} else {
		log.Printf("Using in-memory sync queue (single process only)")
		syncQueue = queue.NewMemory()
	}

	var tracker *version.Tracker
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		log.Printf("Mirroring versions to git archive at %s", cfg.ArchiveDir)
		tracker = version.NewTrackerWithArchive(dataStore, archive.New(cfg.ArchiveDir))
	} else {
		tracker = version.NewTracker(dataStore)
	}

	var capture *blob.Capture
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		capture = blob.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if capture != nil {
			log.Printf("Capturing pull payloads to bucket %s", cfg.MinioBucket)
		}
	}

	registry := provider.NewRegistry()
	registry.Register(provider.Docs, provider.NewDocs(cfg.DocsEndpoint, cfg.DocsToken))
	registry.Register(provider.Sheets, provider.NewSheets(cfg.SheetsEndpoint, cfg.SheetsToken))
	registry.Register(provider.Drive, provider.NewDrive(cfg.DriveEndpoint, cfg.DriveToken))

	manager := sync.NewManager(dataStore, tracker, syncQueue, registry, sync.Options{
		MaxAttempts:     cfg.MaxAttempts,
		ProviderTimeout: cfg.ProviderTimeout,
		Capture:         capture,
	})

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		log.Printf("Propel sync engine starting %d workers", cfg.WorkerCount)
		sync.NewWorkers(manager, syncQueue, cfg.WorkerCount).Run(runCtx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Shutting down")
	stop()
	<-done
}
