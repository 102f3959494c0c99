package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/chat-core/internal/cache"
	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/delivery"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	chatgrpc "github.com/weiawesome/wes-io-live/chat-core/internal/grpc"
	"github.com/weiawesome/wes-io-live/chat-core/internal/handler"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-core/internal/identity"
	"github.com/weiawesome/wes-io-live/chat-core/internal/kafka"
	"github.com/weiawesome/wes-io-live/chat-core/internal/metrics"
	"github.com/weiawesome/wes-io-live/chat-core/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-core/internal/registry"
	"github.com/weiawesome/wes-io-live/chat-core/internal/relay"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/internal/service"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/database"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/chat-core/pkg/log"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/middleware"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-core",
	})
	logger := pkglog.L().With().Str("instance", cfg.Server.InstanceID).Logger()

	watching, err := config.WatchLogLevel(func(level string) {
		lvl := pkglog.SetLevel(level)
		logger.Info().Str("level", lvl.String()).Msg("log level reloaded")
	})
	if err != nil {
		logger.Warn().Err(err).Msg("config file not watched")
	} else if watching {
		logger.Debug().Msg("watching config file for log level changes")
	}

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	memberRepo := repository.NewGormMemberRepository(db)
	roomRepo := repository.NewGormRoomRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Redis backed room cache and online registry, or their local stand-ins
	var (
		roomCache cache.RoomCache = cache.NoopRoomCache{}
		online    registry.Registry
	)
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisRoomCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect room cache to redis")
		}
		roomCache = rc

		reg, err := registry.NewRedisRegistry(cfg.Redis, cfg.Registry, cfg.Server.InstanceID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize redis registry")
		}
		online = reg
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	} else {
		online = registry.NewLocalRegistry(cfg.Server.InstanceID)
	}
	defer roomCache.Close()
	defer online.Close()

	// Message events for downstream consumers
	var producer kafka.MessageProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Server.InstanceID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		producer = p
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}

	// Token manager
	var tokens *jwt.Manager
	if cfg.Auth.PrivateKeyPath != "" {
		tokens, err = jwt.NewManagerFromPEM(cfg.Auth.PrivateKeyPath, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.Issuer)
	} else {
		tokens, err = jwt.NewManager(cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, cfg.Auth.Issuer)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token manager")
	}
	if !cfg.Auth.RequireToken {
		logger.Warn().Msg("bare member ids are accepted without a token")
	}
	resolver := identity.NewResolver(tokens, memberRepo, cfg.Auth.RequireToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hub and delivery
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	var broker delivery.Broker = wsHub
	var fanout *relay.Relay
	if cfg.Relay.Enabled {
		psCfg := cfg.Relay.PubSub.ForInstance(cfg.Server.InstanceID)
		bus, err := pubsub.NewPubSub(psCfg)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", psCfg.Driver).Msg("failed to initialize relay bus")
		}
		defer bus.Close()

		fanout = relay.New(bus, wsHub, cfg.Server.InstanceID)
		go func() {
			if err := fanout.Run(pkglog.WithLogger(ctx, logger)); err != nil {
				logger.Error().Err(err).Msg("relay stopped")
			}
		}()
		broker = fanout
		logger.Info().Str("driver", psCfg.Driver).Msg("cross-instance relay enabled")
	}

	presenceReg := presence.NewRegistry(cfg.Presence.Shards)
	router := delivery.NewRouter(roomRepo, messageRepo, presenceReg, broker, producer, cfg.Delivery.NotifyTimeout)

	// Services
	roomSvc := service.NewRoomService(roomRepo, memberRepo, messageRepo, roomCache, cfg.Cache.TTL)
	messageSvc := service.NewMessageService(roomRepo, memberRepo, messageRepo)
	memberSvc := service.NewMemberService(memberRepo, online)
	var tokenSvc service.TokenService
	if cfg.Auth.IssueTokens {
		tokenSvc = service.NewTokenService(tokens, memberRepo)
		if cfg.Auth.OperatorKey == "" {
			logger.Warn().Msg("token issuance enabled without an operator key, minting is refused")
		}
	}
	chatSvc := service.NewChatService(resolver, roomRepo, presenceReg, router, producer, online)

	if err := chatSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat service")
	}
	defer chatSvc.Stop()

	// gRPC health endpoint
	var grpcServer *chatgrpc.Server
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		grpcServer, err = chatgrpc.StartGRPCServer(grpcAddr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
		logger.Info().Str("addr", grpcAddr).Msg("grpc health server listening")
	}

	// Metrics listener
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port), cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	// Setup Gin router
	authMiddleware := middleware.NewAuthMiddleware(resolver, handler.RenderError)
	httpHandler := handler.NewHandler(roomSvc, messageSvc, memberSvc, tokenSvc, authMiddleware, cfg.Auth.OperatorKey)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(metrics.GinMiddleware())
	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("chat-core listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-core")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if grpcServer != nil {
		grpcServer.Shutdown()
	}

	// Stopping the hub closes every live connection, which releases presence.
	cancel()
	if fanout != nil {
		select {
		case <-fanout.Done():
		case <-shutdownCtx.Done():
		}
	}

	logger.Info().Msg("chat-core stopped")
}
