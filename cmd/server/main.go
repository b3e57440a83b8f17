package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videofetch/internal/cache"
	"videofetch/internal/media"
	"videofetch/internal/pipeline"
	"videofetch/internal/platform/config"
	"videofetch/internal/platform/logger"
	"videofetch/internal/platform/metrics"
	"videofetch/internal/status"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		log.Error("cache store init failed", "error", err)
		os.Exit(1)
	}

	reg := status.NewRegistry()
	met := metrics.New()
	run := media.ExecRunner{}

	fetcher := media.NewFetcher(store, reg, run, cfg.FetchTool, cfg.FetchTimeout, cfg.FetchExtraArgs, log)
	prober := media.NewProber(run, cfg.FetchTool, cfg.ProbeTimeout)
	transcoder := media.NewTranscoder(run, reg, prober, cfg.ProbeTool, cfg.TranscodeTool, cfg.ProbeTimeout, cfg.ConvertTimeout, log)

	svc := pipeline.NewService(fetcher, transcoder, prober, store, reg, met, cfg.NamingPattern, cfg.CleanupGrace, log)
	h := pipeline.NewHandler(svc, reg, log, cfg.KeepAliveInterval, cfg.MaxKeepAlives)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(reg.ActiveSessions()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", h.Healthz)
	r.Get("/download", h.Download)
	r.Get("/status", h.Status)
	r.Get("/formats", h.Formats)
	r.Post("/cache/invalidate", h.InvalidateCache)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"cache_dir", cfg.CacheDir,
		"fetch_tool", cfg.FetchTool,
		"transcode_tool", cfg.TranscodeTool,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
