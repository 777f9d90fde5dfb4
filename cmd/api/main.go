package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tessera/api/internal/app"
	"tessera/api/internal/cache"
	"tessera/api/internal/config"
	"tessera/api/internal/export"
	"tessera/api/internal/files"
	"tessera/api/internal/revlog"
	"tessera/api/internal/search"
	"tessera/api/internal/store"
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

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))

	var blockCache *cache.BlockCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		blockCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, serving without block cache: %v", err)
		} else {
			defer blockCache.Close()
		}
	}

	var fileService *files.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		fileService, err = files.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket, cfg.SignedURLTTL, dataStore)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		if err := fileService.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: could not ensure bucket %s: %v", cfg.MinioBucket, err)
		}
	}

	service := app.NewService(dataStore, app.Options{
		Cache:     blockCache,
		Search:    searchService,
		Files:     fileService,
		Revisions: revlog.New(cfg.ReposDir),
		Exporter:  export.NewService(dataStore),
		Debounce: app.Debounce{
			Table: cfg.DebounceTable,
			Text:  cfg.DebounceText,
			Embed: cfg.DebounceEmbed,
		},
	})
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tessera API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
