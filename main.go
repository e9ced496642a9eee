package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	handlers "VoiceboxStudio/internal/handler"
	"VoiceboxStudio/internal/models"
	"VoiceboxStudio/internal/profiles"
	"VoiceboxStudio/internal/store"
	"VoiceboxStudio/internal/synth"
	"VoiceboxStudio/internal/tasks"
	"VoiceboxStudio/internal/timeline"
	"VoiceboxStudio/pkg/config"
	"VoiceboxStudio/pkg/logger"
	"VoiceboxStudio/pkg/metrics"
	"VoiceboxStudio/pkg/middleware"
	"VoiceboxStudio/pkg/scheduler"
	"VoiceboxStudio/pkg/sse"
	"VoiceboxStudio/pkg/storage"
	"VoiceboxStudio/pkg/util"
)

func main() {
	if err := config.Load(); err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GlobalConfig
	logger.Init(cfg.Log)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logrus.Fatalf("failed to create data dir %s: %v", cfg.DataDir, err)
	}

	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}

	m := metrics.NewMetrics()
	hub := sse.NewHub(30 * time.Second)
	blobs := storage.New(cfg.StorageType, cfg.DataDir)

	backend := synth.NewSidecarBackend(cfg.TTSBackendURL)
	guard := synth.NewGuard(backend).WithObserver(m.ObserveModelLoad)
	promptCache, err := synth.NewPromptCache(cfg.PromptCacheSize, backend)
	if err != nil {
		logrus.Fatalf("failed to create prompt cache: %v", err)
	}
	promptCache.WithObserver(m.ObservePromptCache)

	profileSvc := profiles.NewService(db, blobs, promptCache)
	gens := store.NewGenerationStore(db, blobs)

	manager := tasks.NewManager(time.Duration(cfg.TaskRetentionSec) * time.Second).
		WithNotifier(func(v tasks.View) { hub.Publish("task", v) }).
		WithActiveObserver(m.SetActiveTasks)
	runner := tasks.NewRunner(
		manager, profileSvc, profileSvc, promptCache, guard, backend, gens,
		cfg.MaxTextLength, cfg.DefaultModelSize,
	).WithObserver(m.ObserveGeneration)

	stories := timeline.NewService(db, gens)
	exporter := timeline.NewExporter(stories, gens).
		WithObserver(func(elapsed time.Duration) { m.ObserveExport("ok", elapsed) })

	// 终态任务的周期清扫
	cr := scheduler.NewCron(time.Local)
	if _, err := cr.Add("*/30 * * * * *", scheduler.JobFunc(func(ctx context.Context) {
		manager.Sweep()
	})); err != nil {
		logrus.Fatalf("failed to schedule task sweeper: %v", err)
	}
	cr.Start()
	defer cr.Stop()

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(m.GinMiddleware())

	h := handlers.NewHandlers(db, runner, manager, profileSvc, gens, stories, exporter, guard, hub, m)
	h.Register(engine)

	srv := &http.Server{Addr: cfg.Addr, Handler: engine}
	go func() {
		logrus.Infof("voicebox studio listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("forced shutdown: %v", err)
	}
}
