// Package main wires together the indieseas crawler and search service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MrDaPoyo/indieseas/internal/api"
	"github.com/MrDaPoyo/indieseas/internal/config"
	"github.com/MrDaPoyo/indieseas/internal/crawler"
	"github.com/MrDaPoyo/indieseas/internal/extract"
	"github.com/MrDaPoyo/indieseas/internal/indexer"
	"github.com/MrDaPoyo/indieseas/internal/logging"
	"github.com/MrDaPoyo/indieseas/internal/metrics"
	"github.com/MrDaPoyo/indieseas/internal/ranker"
	"github.com/MrDaPoyo/indieseas/internal/robots"
	"github.com/MrDaPoyo/indieseas/internal/store"
	"github.com/MrDaPoyo/indieseas/internal/vectorize"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	seeds := flag.String("seeds", "", "Comma-separated seed URLs to enqueue on startup")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	embedder := vectorize.NewClient(cfg.Workers.EmbedderURL, cfg.FetchTimeout())
	extractor := extract.NewClient(cfg.Workers.ExtractorURL, cfg.Crawler.UserAgent, cfg.FetchTimeout())
	images := extract.NewImageFetcher(cfg.Crawler.UserAgent, cfg.FetchTimeout())
	gate := robots.NewGate(cfg.Crawler.UserAgent, st, logger.Named("robots"))
	ix := indexer.New(embedder, st, logger.Named("indexer"))

	engine := crawler.New(crawler.Config{
		Concurrency:   cfg.Crawler.Concurrency,
		MaxPages:      cfg.Crawler.MaxPages,
		DomainPageCap: cfg.Crawler.DomainPageCap,
		FolderPageCap: cfg.Crawler.FolderPageCap,
		HighWater:     cfg.Crawler.QueueHighWater,
		PerDomainRPS:  cfg.Crawler.PerDomainRPS,
	}, extractor, images, gate, ix, st, logger.Named("crawler"))

	var extraSeeds []string
	if *seeds != "" {
		extraSeeds = strings.Split(*seeds, ",")
	}
	if err := engine.Seed(ctx, extraSeeds); err != nil {
		logger.Fatal("frontier seeding failed", zap.Error(err))
	}

	rk := ranker.New(embedder, st, logger.Named("ranker"))
	apiServer := api.NewServer(rk, st, engine, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("crawl engine started", zap.Int("concurrency", cfg.Crawler.Concurrency))
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("crawl engine error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
