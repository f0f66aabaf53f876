// Package main provides the part-naming HTTP server: the registries, the
// proposal queues and the approval workflow behind /api/v1.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/binnyhq/part-namer/pkg/api"
	"github.com/binnyhq/part-namer/pkg/audit"
	"github.com/binnyhq/part-namer/pkg/cache"
	"github.com/binnyhq/part-namer/pkg/config"
	"github.com/binnyhq/part-namer/pkg/watch"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

func main() {
	var (
		configFile     string
		listenAddr     string
		prefixesFile   string
		materialsFile  string
		auditDB        string
		auditRetention time.Duration
	)

	flag.StringVar(&configFile, "config", "", "Config file (default: config.yaml in "+config.DefaultDir()+")")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (default "+config.Defaults().Listen+")")
	flag.StringVar(&prefixesFile, "prefixes-file", "", "Prefixes registry document")
	flag.StringVar(&materialsFile, "materials-file", "", "Materials registry document")
	flag.StringVar(&auditDB, "audit-db", "", "SQLite database for the decision audit trail")
	flag.DurationVar(&auditRetention, "audit-retention", 0, "Delete audit events older than this (0 keeps them)")
	flag.Parse()

	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Flags given on the command line take precedence over env and file.
	v := viper.New()
	overrides := map[string]string{
		"listen":         config.KeyListen,
		"prefixes-file":  config.KeyPrefixesFile,
		"materials-file": config.KeyMaterialsFile,
		"audit-db":       config.KeyAuditDB,
	}
	flag.Visit(func(f *flag.Flag) {
		if key, ok := overrides[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	cfg, err := config.Load(v, configFile)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("starting part-naming server",
		"listen", cfg.Listen,
		"prefixes", cfg.PrefixesFile,
		"materials", cfg.MaterialsFile,
		"auditDB", cfg.AuditDB,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	opts := []workflow.Option{workflow.WithLogger(logger)}
	var auditStore *audit.Store
	if cfg.AuditDB != "" {
		auditStore, err = audit.Open(cfg.AuditDB)
		if err != nil {
			glog.Fatalf("Failed to open audit database: %v", err)
		}
		defer auditStore.Close()
		opts = append(opts, workflow.WithRecorder(auditStore))

		go audit.NewRetentionWorker(auditStore, auditRetention, logger).Run(ctx)
	}

	engine, err := workflow.New(cfg.Workflow(), opts...)
	if err != nil {
		glog.Fatalf("Failed to create workflow engine: %v", err)
	}

	registryCache := cache.NewRegistryCache(cfg.CacheSize, cfg.CacheTTL)
	if registryCache != nil {
		// Other processes (partctl, the review UI) append to the registries
		// directly; drop cached reads when the documents change.
		w, err := watch.New(watch.Config{
			Paths:  []string{cfg.PrefixesFile, cfg.MaterialsFile},
			Logger: logger,
		})
		if err != nil {
			glog.Fatalf("Failed to create registry watcher: %v", err)
		}
		changes, err := w.Start()
		if err != nil {
			logger.Warn("registry watcher unavailable, relying on cache TTL", "error", err)
		} else {
			defer w.Stop()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-changes:
						registryCache.InvalidateAll()
						logger.Debug("registry changed on disk, cache cleared")
					}
				}
			}()
		}
		logger.Info("registry cache enabled", "ttl", cfg.CacheTTL, "size", cfg.CacheSize)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Principal", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Mount("/api/v1", api.NewRouter(engine, auditStore, logger, api.WithRegistryCache(registryCache)))

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("part-naming server ready", "listen", cfg.Listen)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("part-naming server stopped")
}
