package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"routechat/internal/config"
	"routechat/internal/domain/call"
	"routechat/internal/domain/conversation"
	"routechat/internal/domain/message"
	"routechat/internal/feeds"
	"routechat/internal/handler"
	"routechat/internal/middleware"
	appredis "routechat/internal/redis"
	"routechat/internal/repository"
	"routechat/internal/server"
	"routechat/internal/services"
	"routechat/internal/storage"
	"routechat/pkg/database"
	"routechat/pkg/events"
	"routechat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(appLogger)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&conversation.Conversation{},
		&conversation.Participant{},
		&conversation.ConversationSequence{},
		&message.Message{},
		&message.Attachment{},
		&call.Call{},
		&call.CallParticipant{},
	); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var broker events.Broker
	var signaling *appredis.SignalingStore
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Warnf("redis unavailable, falling back to in-process events: %v", err)
		broker = events.NewMemoryBroker()
	} else {
		broker = events.NewRedisBroker(redisClient)
		signaling = appredis.NewSignalingStore(redisClient)
	}

	var objectStore services.ObjectStorage
	if cfg.S3.Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Endpoint:   cfg.S3.Endpoint,
			PublicBase: cfg.S3.PublicBase,
		})
		if err != nil {
			log.Fatalf("failed to initialize object storage: %v", err)
		}
		objectStore = s3Client
	}

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)

	notifier := services.LogNotifier{Log: appLogger}

	directory := services.NewConversationService(db, conversationRepo, messageRepo, broker, appLogger)
	stream := services.NewMessageService(db, messageRepo, directory, broker, notifier, appLogger)
	presence := services.NewPresenceService(directory, messageRepo, broker, appLogger, cfg.Chat.ReadBatchSize)
	calls := services.NewCallService(callRepo, signaling, broker, notifier, appLogger, cfg.Chat.RingTimeout)
	uploads := services.NewUploadService(objectStore, cfg.Chat.UploadMaxBytes, appLogger)
	composer := services.NewComposerService(uploads, stream, services.NoopIdentity{}, appLogger)

	feedSource := feeds.New(broker, directory, stream, appLogger)

	hub := server.NewHub(feedSource, presence, appLogger)
	go hub.Run()

	conversationHandler := handler.NewConversationHandler(directory, presence)
	messageHandler := handler.NewMessageHandler(composer, stream)
	callHandler := handler.NewCallHandler(calls)
	uploadHandler := handler.NewUploadHandler(uploads)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(appLogger))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Server.JWTSecret))
	{
		api.POST("/conversations", conversationHandler.FindOrCreate)
		api.GET("/conversations", conversationHandler.List)
		api.GET("/conversations/:id", conversationHandler.GetByID)
		api.DELETE("/conversations/:id", conversationHandler.Delete)
		api.POST("/conversations/:id/open", conversationHandler.Open)

		api.POST("/conversations/:id/messages", messageHandler.Send)
		api.GET("/conversations/:id/messages", messageHandler.List)
		api.PATCH("/messages/:id/status", messageHandler.AdvanceStatus)
		api.DELETE("/messages/:id", messageHandler.Delete)

		api.POST("/calls", callHandler.Initiate)
		api.GET("/calls", callHandler.List)
		api.POST("/calls/:id/answer", callHandler.Answer)
		api.POST("/calls/:id/reject", callHandler.Reject)
		api.POST("/calls/:id/end", callHandler.End)
		api.POST("/calls/:id/mute", callHandler.Mute)
		api.POST("/calls/:id/offer", callHandler.Offer)
		api.POST("/calls/:id/answer-sdp", callHandler.AnswerSDP)
		api.POST("/calls/:id/ice", callHandler.ICECandidate)
		api.GET("/calls/:id/signals", callHandler.DrainSignals)

		api.POST("/uploads", uploadHandler.Upload)

		api.GET("/ws", server.WebSocketHandler(hub))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		appLogger.Infof("starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Infof("shutting down")
	calls.Stop()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("server shutdown: %v", err)
	}
}
