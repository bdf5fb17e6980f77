package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/travel-agent/backend/internal/config"
	"github.com/zhouzirui/travel-agent/backend/internal/handler"
	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	"github.com/zhouzirui/travel-agent/backend/internal/middleware"
	"github.com/zhouzirui/travel-agent/backend/internal/service/agent"
	"github.com/zhouzirui/travel-agent/backend/internal/service/session"
	"github.com/zhouzirui/travel-agent/backend/internal/service/travel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	// Initialize storage backends
	var (
		sessions    session.Store
		checkpoints agent.CheckPointStore
	)
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		defer client.Close()

		sessions = session.NewRedisStore(client, cfg.Redis.Prefix, cfg.Session.TTL)
		checkpoints = agent.NewRedisCheckPointStore(client, cfg.Redis.Prefix, cfg.Session.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis for sessions and checkpoints")
	} else {
		memStore := session.NewMemoryStore(cfg.Session.TTL)
		go memStore.RunSweeper(ctx, cfg.Session.SweepInterval)
		sessions = memStore
		memCheckPoints := agent.NewMemoryCheckPointStore(cfg.Session.TTL)
		go memCheckPoints.RunSweeper(ctx, cfg.Session.SweepInterval)
		checkpoints = memCheckPoints
		log.Info().Msg("using in-memory sessions and checkpoints")
	}

	// Initialize mailer
	var mailer agent.Mailer
	if cfg.Email.Enabled() {
		mailer = agent.NewSMTPMailer(agent.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
		})
		log.Info().Str("host", cfg.Email.SMTPHost).Int("port", cfg.Email.SMTPPort).Msg("smtp mailer configured")
	} else {
		mailer = agent.NewLogMailer()
		log.Warn().Msg("SMTP_HOST not set, emails will only be logged")
	}

	// The agent handle is built once and shared by every browser session.
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chat model")
	}

	travelAgent, err := agent.NewGraphAgent(ctx, agent.GraphConfig{
		ChatModel:   chatModel,
		Mailer:      mailer,
		CheckPoints: checkpoints,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize travel agent")
	}
	log.Info().Str("model", cfg.AI.Model).Msg("travel agent initialized successfully")

	travelSvc := travel.NewService(travelAgent, sessions, travel.Config{
		DefaultSender:   cfg.Email.Sender(),
		DefaultReceiver: cfg.Email.DefaultTo,
		DefaultSubject:  cfg.Email.DefaultSubject,
		Timeout:         cfg.AI.Timeout,
	})

	router := handler.NewRouter(travelSvc, middleware.SessionCookie{
		Name:   cfg.Session.CookieName,
		TTL:    cfg.Session.TTL,
		Secure: cfg.Session.SecureCookie,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("AI Travel Agent listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
