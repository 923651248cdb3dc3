package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RingCut/cache"
	"RingCut/config"
	"RingCut/core/audio"
	"RingCut/core/auth"
	"RingCut/core/events"
	"RingCut/core/library"
	"RingCut/core/scheduler"
	"RingCut/db"
	"RingCut/logger"
	"RingCut/model"
	"RingCut/repository"
	"RingCut/server"
	"RingCut/storage"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动RingCut服务器",
	Long:  `启动RingCut的HTTP服务器，提供铃声剪辑API、定时播放和事件推送`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

// openRepositories returns MySQL-backed repositories, or in-memory ones when DB_DRIVER=memory.
func openRepositories(cfg *config.Config) (repository.AssetRepository, repository.ScheduleRepository, func()) {
	if cfg.DBDriver == config.DBDriverMemory {
		logger.Warn("using in-memory repositories; data is lost on restart")
		return repository.NewMemoryAssetRepository(), repository.NewMemoryScheduleRepository(), func() {}
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(&model.AssetRecord{}, &model.Schedule{}); err != nil {
		logger.Fatal("Failed to migrate database", logger.ErrorField(err))
	}
	closeDB := func() {
		if err := db.CloseGormDB(); err != nil {
			logger.Warn("error closing database", logger.ErrorField(err))
		}
	}
	return repository.NewGormAssetRepository(db.GormDB), repository.NewGormScheduleRepository(db.GormDB), closeDB
}

// openDurationCache connects Redis when configured. A nil cache disables caching.
func openDurationCache(cfg *config.Config) (cache.DurationCache, func()) {
	if !cfg.RedisEnabled() {
		return nil, func() {}
	}
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis unavailable, probing without cache", logger.ErrorField(err))
		return nil, func() {}
	}
	return cache.NewProbeCache(cache.RedisClient, cfg.ProbeCacheTTL), func() {
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("error closing Redis", logger.ErrorField(err))
		}
	}
}

func authFromConfig(cfg *config.Config) (*auth.TokenManager, auth.Admin) {
	admin := auth.Admin{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash}
	if !cfg.AuthEnabled() {
		return nil, admin
	}
	if cfg.AdminPasswordHash == "" {
		logger.Warn("AUTH_SECRET is set but ADMIN_PASSWORD_HASH is empty; login will always fail")
	}
	return auth.NewTokenManager(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthTokenTTL), admin
}

func runServer() {
	cfg := config.Load()
	defer initLogger(cfg)()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open object store", logger.String("backend", cfg.StorageBackend), logger.ErrorField(err))
	}

	assets, schedules, closeDB := openRepositories(cfg)
	defer closeDB()

	durations, closeCache := openDurationCache(cfg)
	defer closeCache()

	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	proc := audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath, cfg.MP3Bitrate)
	lib := library.NewService(store, assets, proc, audio.NewExporter(proc, audio.NewTagger()), durations, hub, library.Options{
		Folders: library.Folders{
			Original: cfg.OriginalFolder,
			WAV:      cfg.WAVRingtoneFolder,
			MP3:      cfg.MP3RingtoneFolder,
		},
		TempDir: cfg.TempDir,
	})

	sched := scheduler.NewService(schedules, lib, scheduler.NewExecPlayer(cfg.FFplayPath), hub, cfg.SchedulerTick, cfg.TempDir)
	go sched.Run(ctx)
	defer sched.Close()

	if cfg.ImportWatchDir != "" {
		watcher := library.NewWatcher(cfg.ImportWatchDir, lib)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("watch folder stopped", logger.ErrorField(err))
			}
		}()
	}

	tokens, admin := authFromConfig(cfg)
	handler := server.NewAPIHandler(cfg, lib, sched, hub, tokens, admin)

	logger.Info("Starting RingCut server",
		logger.String("addr", cfg.ServerAddr),
		logger.String("storage", cfg.StorageBackend),
		logger.String("db", cfg.DBDriver),
		logger.Bool("redis", durations != nil),
		logger.Bool("auth", tokens != nil))

	if err := server.Serve(ctx, cfg.ServerAddr, server.NewRouter(handler)); err != nil {
		logger.Error("Server failed", logger.ErrorField(err))
	}
}
