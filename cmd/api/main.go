package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"etkash_go_backend/cmd/api/config"
	"etkash_go_backend/internal/api"
	"etkash_go_backend/internal/auth"
	"etkash_go_backend/internal/database"
	"etkash_go_backend/internal/metrics"
	"etkash_go_backend/internal/services"
	"etkash_go_backend/internal/utils/broker"
	"etkash_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := database.InitDB(cfg.Database); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	messageBroker := broker.NewBroker()
	ledger := services.NewQuotaLedgerDB(database.DB, services.WithPublisher(messageBroker))
	userService := services.NewUserService(database.DB, cfg.DefaultMonthlyTokenLimit)

	var chatLog services.ChatLog
	switch cfg.ChatStore {
	case config.ChatStoreRedis:
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis is not reachable")
		}
		chatLog = services.NewRedisChatLog(redisClient, cfg.ChatSessionTTL, cfg.ChatMaxEntries)
	case config.ChatStoreDB:
		chatLogDB := services.NewChatLogDB(database.DB, cfg.ChatSessionTTL, cfg.ChatMaxEntries)
		go chatLogDB.RunCleanup(ctx, cfg.ChatCleanupInterval)
		chatLog = chatLogDB
	default:
		chatSessionService := services.NewChatSessionService(cfg.ChatSessionTTL, cfg.ChatMaxEntries)
		go chatSessionService.RunCleanup(ctx, cfg.ChatCleanupInterval)
		chatLog = chatSessionService
	}
	chatService := services.NewChatService(ledger, chatLog)

	issuer, err := auth.NewTokenIssuer(cfg.SecretKey, cfg.JWTTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token issuer")
	}
	signInLimiter := auth.NewSignInLimiter(cfg.SignInRatePerSecond, cfg.SignInBurst)

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger(log.Logger))
	r.Use(metrics.Middleware())

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	wsHandler := wsocket.NewHandler(ledger, messageBroker, upgrader, cfg.WebSocketPingInterval)

	auth.SetupRoutes(r, userService, issuer, signInLimiter)
	api.SetupRoutes(r, ledger, userService, chatService, issuer)

	r.GET("/ws/token-usage", auth.AuthMiddleware(issuer), func(c *gin.Context) {
		userID, _ := auth.UserIDFromContext(c)
		wsHandler.HandleQuotaStream(c.Writer, c.Request, userID)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
