package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"randomchat/backend/internal/api/handler"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/complaint"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/storage"
	"randomchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("random chat stopped with error", "error", err)
	}
	log.Info("random chat stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("starting random chat", "db_driver", cfg.DB.Driver, "language", cfg.Bot.Language)

	db, err := storage.OpenDB(cfg.DB.Driver, cfg.DB.DSN, log)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = storage.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, stats cache disabled", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	s := storage.NewStorageService(db, rdb, log)
	s.StatsTTL = cfg.Redis.StatsTTL

	loc, err := localization.NewLocalizer()
	if err != nil {
		return err
	}
	if !loc.HasLanguage(cfg.Bot.Language) {
		log.Warn("no catalog for language, falling back to english", "language", cfg.Bot.Language)
	}

	bot, err := telegram.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.Debug, log)
	if err != nil {
		return err
	}

	matcher := chathub.NewMatcherService(s, log)
	matcher.SearchTimeout = cfg.Bot.SearchTimeout
	matcher.SweepInterval = cfg.Bot.SweepInterval

	menus := telegram.NewMenus(loc, cfg.Bot.Language, localization.DefaultLanguage)
	outbox := telegram.NewOutbox(bot, menus, cfg.Bot.OutboxWorkers, cfg.Bot.OutboxBuffer, log)
	complaints := complaint.NewService(cfg.Telegram.AdminID, loc, cfg.Bot.Language)
	ctrl := telegram.NewController(matcher, outbox, complaints, loc, cfg.Bot.Language, log)
	matcher.OnExpired = ctrl.NotifyExpired

	botService := telegram.NewBotService(bot, ctrl, menus, cfg.Telegram.UpdateTimeout, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return matcher.Run(ctx) })
	g.Go(func() error { return outbox.Run(ctx) })
	g.Go(func() error { return botService.Run(ctx) })

	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		auth := handler.NewAuth(cfg.HTTP.AdminSecret, cfg.Telegram.AdminID)
		h := handler.NewHandler(matcher, s, auth, cfg.HTTP.StatsPushInterval, log)

		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		g.Go(func() error {
			log.Info("admin api listening", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
