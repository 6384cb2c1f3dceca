package main

import (
	"context"
	"crypto/tls"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"onboarding-board/api"
	"onboarding-board/audit"
	"onboarding-board/board"
	"onboarding-board/config"
	"onboarding-board/events"
	"onboarding-board/hrclient"
	"onboarding-board/resync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hr := hrclient.New(cfg.HRBaseURL, cfg.HRToken, cfg.HRTimeout)
	broker := api.NewStreamBroker()
	opts := board.Options{Notifier: broker, Logger: logger}
	svc := api.Services{Creator: hr, Stream: broker}

	if cfg.AuditEnabled() {
		var recorders audit.Fanout
		if cfg.DecisionsTable != "" {
			journal, err := audit.NewJournal(cfg.StorageConn, cfg.DecisionsTable)
			if err != nil {
				log.Fatalf("decisions table: %v", err)
			}
			recorders = append(recorders, journal)
			svc.Decisions = journal
		}
		if cfg.DecisionsQueue != "" {
			outbox, err := audit.NewOutbox(cfg.StorageConn, cfg.DecisionsQueue)
			if err != nil {
				log.Fatalf("decisions queue: %v", err)
			}
			recorders = append(recorders, outbox)
		}
		opts.Recorder = recorders
	}

	registry := board.NewRegistry(hr, opts)
	bus := events.NewBus()
	svc.Publisher = bus

	if cfg.RedisConn != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConn))
		svc.Publisher = events.NewRedisPublisher(rc, cfg.TasksChannel)
		svc.Guard = api.NewRedisGuard(rc, cfg.InflightTTL)
		go events.Relay(ctx, logger, rc, cfg.TasksChannel, bus)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set: events stay in-process and the in-flight guard is off")
	}
	go registry.Run(ctx, bus)

	if cfg.ResyncSchedule != "" {
		sched, err := resync.New(cfg.ResyncSchedule, svc.Publisher, logger)
		if err != nil {
			log.Fatalf("invalid RESYNC_SCHEDULE: %v", err)
		}
		go sched.Run(ctx)
	}

	var auth *api.Auth
	if cfg.TestMode {
		auth = api.NewTestAuth([]byte(cfg.TestSecret), cfg.Auth0Audience, cfg.Issuer())
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer(), cfg.JWKSCacheTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(api.RequestLogger(logger))
	api.Register(e, registry, svc, auth, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithField("port", cfg.Port).Info("onboarding board listening")
	if err := e.Start(":" + cfg.Port); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
