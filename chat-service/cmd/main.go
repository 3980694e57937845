package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/Sumit-1011/CampusXchange/chat-service/internal/auth"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/cache"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/config"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/domain"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/handler"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/hub"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/ratelimit"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/repository"
	"github.com/Sumit-1011/CampusXchange/chat-service/internal/service"
	"github.com/Sumit-1011/CampusXchange/pkg/database"
	"github.com/Sumit-1011/CampusXchange/pkg/idgen"
	"github.com/Sumit-1011/CampusXchange/pkg/jwt"
	"github.com/Sumit-1011/CampusXchange/pkg/log"
	"github.com/Sumit-1011/CampusXchange/pkg/middleware"
	"github.com/Sumit-1011/CampusXchange/pkg/pubsub"
)

type stores struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		l.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open store")
	}
	defer st.close()

	rdb, err := pubsub.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to redis")
	}
	defer rdb.Close()
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	broadcaster, err := newBroadcaster(ctx, cfg, wsHub, rdb)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to start room relay")
	}

	ids := idgen.NewULIDGenerator()
	chatSvc := service.NewChatService(st.chats, st.users, ids)
	messageSvc := service.NewMessageService(
		st.messages,
		cache.NewRedisRecentCache(rdb, cfg.Cache.RecentSize, cfg.Cache.TTL),
		ids,
		service.MessageLimits{
			MaxLength:    cfg.Message.MaxLength,
			DefaultLimit: cfg.Message.DefaultLimit,
			MaxLimit:     cfg.Message.MaxLimit,
		},
	)
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	gatewaySvc := service.NewGatewayService(chatSvc, messageSvc, limiter, wsHub, broadcaster)

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create token manager")
	}
	authenticator := auth.NewAuthenticator(tokens, st.users)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), log.GinMiddleware(log.L()))
	handler.NewHandler(chatSvc, messageSvc, middleware.NewAuthMiddleware(authenticator)).RegisterRoutes(engine)

	wsMux := http.NewServeMux()
	handler.NewWSHandler(ctx, wsHub, gatewaySvc, authenticator, cfg.WebSocket).RegisterRoutes(wsMux)

	mux := http.NewServeMux()
	wsRoutes := log.HTTPMiddleware(log.L())(wsMux)
	mux.Handle("/socket", wsRoutes)
	mux.Handle("/chat/ws", wsRoutes)
	mux.Handle("/", engine)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// Write timeouts would cut long-lived sockets, so only reads are bounded.
	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     corsHandler(mux),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
	cancel()

	l.Info().Msg("chat service stopped")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UsesMongo() {
		client, db, err := database.NewMongo(ctx, database.MongoConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return nil, err
		}

		chats := repository.NewMongoChatRepository(db)
		messages := repository.NewMongoMessageRepository(db)
		if err := chats.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create chat indexes: %w", err)
		}
		if err := messages.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create message indexes: %w", err)
		}

		return &stores{
			chats:    chats,
			messages: messages,
			users:    repository.NewMongoUserRepository(db),
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, &domain.ChatModel{}, &domain.MessageModel{}, &domain.UserModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &stores{
		chats:    repository.NewGormChatRepository(db),
		messages: repository.NewGormMessageRepository(db),
		users:    repository.NewGormUserRepository(db),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

// newBroadcaster picks the room fan-out. With redis fan-out every instance
// subscribes to all room channels and delivers to its own members.
func newBroadcaster(ctx context.Context, cfg *config.Config, h *hub.Hub, rdb *redis.Client) (hub.Broadcaster, error) {
	if cfg.Relay.Fanout != "redis" {
		return h, nil
	}

	relay := hub.NewRedisRelay(h, pubsub.NewRedisPubSubFromClient(rdb), idgen.NewUUID())
	if err := relay.Run(ctx); err != nil {
		return nil, err
	}
	l := log.L()
	l.Info().Msg("room fan-out through redis enabled")
	return relay, nil
}
