package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bilipod/internal/bili"
	"bilipod/internal/config"
	"bilipod/internal/db"
	"bilipod/internal/downloader"
	"bilipod/internal/models"
	"bilipod/internal/reconciler"
	"bilipod/internal/scheduler"
	"bilipod/internal/server"
	"bilipod/internal/worker"
	"bilipod/pkg/logger"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Error loading .env file")
	}

	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	dbPath := flag.String("db", "", "path to the catalog database (default <data_dir>/bilipod.db)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.File, cfg.Log.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log

	log.Info("bilipod starting", zap.String("commit", CommitSHA))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bili.NewClient(bili.Credential{
		SessData:    cfg.Token.SessData,
		BiliJct:     cfg.Token.BiliJct,
		Buvid3:      cfg.Token.Buvid3,
		Buvid4:      cfg.Token.Buvid4,
		DedeUserID:  cfg.Token.DedeUserID,
		AcTimeValue: cfg.Token.AcTimeValue,
	})
	if err := client.CheckCredential(ctx); err != nil {
		log.Fatal("credential validation failed", zap.Error(err))
	}

	path := *dbPath
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDir, "bilipod.db")
	}
	store, err := db.Open(path)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	mediaDir := filepath.Join(cfg.Storage.DataDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		log.Fatal("failed to create media dir", zap.Error(err))
	}

	srv := server.New(cfg.Server, cfg.Storage.DataDir, log)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("web server failed", zap.Error(err))
		}
	}()

	orchestrator := worker.NewOrchestrator(client, downloader.New(log), log)
	coordinator := worker.NewCoordinator(orchestrator, log)
	sig := reconciler.NewSignal()
	rec := reconciler.New(store, client, coordinator, sig, cfg.Storage.DataDir, log)

	baseURL := cfg.Server.BaseURL()
	pods := make([]*models.Pod, 0, len(cfg.Feeds))
	for feedID, f := range cfg.Feeds {
		pods = append(pods, models.NewPod(models.Pod{
			FeedID:        feedID,
			UID:           f.UID,
			SID:           f.SID,
			Title:         f.Title,
			Description:   f.Description,
			CoverArt:      f.CoverArt,
			Author:        f.Author,
			Link:          f.Link,
			Category:      f.Category,
			Subcategories: f.Subcategories,
			Explicit:      yesNo(f.Explicit),
			Lang:          f.Lang,
			PageSize:      f.PageSize,
			UpdatePeriod:  f.UpdatePeriod,
			Format:        f.Format,
			PlaylistSort:  f.PlaylistSort,
			Quality:       f.Quality,
			OPML:          f.OPML,
			KeepLast:      f.KeepLast,
			PrivateFeed:   f.PrivateFeed,
			Endorse:       f.Endorse,
			Keyword:       f.Keyword,
			DataDir:       cfg.Storage.DataDir,
			BaseURL:       baseURL,
		}))
	}

	log.Info("start initializing")
	if err := rec.Initialize(ctx, pods); err != nil {
		log.Fatal("initialization failed", zap.Error(err))
	}
	log.Info("finished initializing")

	go rec.UpdateLoop(ctx)

	sched := scheduler.New(log)
	for feedID, f := range cfg.Feeds {
		feedID := feedID
		if err := sched.Add(f.Interval, func() {
			if err := rec.RefreshPod(ctx, feedID); err != nil {
				log.Error("failed to refresh pod",
					zap.String("feed", feedID), zap.Error(err))
			}
		}); err != nil {
			log.Fatal("failed to schedule pod refresh",
				zap.String("feed", feedID), zap.Error(err))
		}
	}

	credInterval, _ := scheduler.ParseInterval("6h")
	if err := sched.Add(credInterval, func() {
		if err := client.RefreshCredential(ctx); err != nil {
			log.Error("failed to refresh credential", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("failed to schedule credential refresh", zap.Error(err))
	}
	sched.Start()

	<-ctx.Done()
	log.Info("received stop signal, shutting down")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown", zap.Error(err))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
