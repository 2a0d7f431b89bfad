package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"session-service/internal/config"
	"session-service/internal/db"
	"session-service/internal/handlers"
	"session-service/internal/livemonitor"
	"session-service/internal/middleware"
	"session-service/internal/observability"
	"session-service/internal/rabbitmq"
	"session-service/internal/repositories"
	"session-service/internal/telemetry"
	"session-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.InitTracing(context.Background(), "session-service", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalw("failed to init tracing", "error", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatalw("failed to connect to db", "error", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	logger.Infow("audit publisher ready",
		"mode", rabbitmq.PublisherMode(publisher),
		"reason", rabbitmq.PublisherNoopReason(publisher))
	if cfg.AMQPURL != "" {
		wsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warnw("ws event publisher disabled", "error", err)
		} else {
			observability.SetPublisher(wsPublisher)
			defer wsPublisher.Close()
		}
	}
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.sessions", "session-service", cfg.AppEnv)

	sessionRepo := repositories.NewSessionRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(logger)

	sessionHandler := handlers.NewSessionHandler(sessionRepo, hub, logger)
	chatHandler := handlers.NewChatHandler(sessionRepo, messageRepo, hub, logger)

	verify := func(token string) (string, error) {
		return middleware.ParseToken(cfg.JWTSecret, token)
	}
	sessionWS := ws.NewSessionWebSocketHandler(hub, verify, logger)

	monitor := livemonitor.New(sessionRepo, hub, cfg.ReadyThreshold, logger)
	if err := monitor.Start(cfg.SweepSpec); err != nil {
		logger.Fatalw("failed to start live monitor", "error", err)
	}
	defer monitor.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware("session-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/sessions", authMiddleware, sessionHandler.ListSessions)
	router.POST("/sessions", authMiddleware, sessionHandler.RequestSession)
	router.POST("/sessions/:session_id/accept", authMiddleware, sessionHandler.AcceptSession)
	router.POST("/sessions/:session_id/reject", authMiddleware, sessionHandler.RejectSession)
	router.POST("/sessions/:session_id/decline", authMiddleware, sessionHandler.DeclineSession)
	router.POST("/sessions/:session_id/cancel", authMiddleware, sessionHandler.CancelSession)
	router.POST("/sessions/:session_id/confirm-start", authMiddleware, sessionHandler.ConfirmStart)
	router.POST("/sessions/:session_id/confirm-end", authMiddleware, sessionHandler.ConfirmEnd)
	router.PUT("/sessions/:session_id/checklist", authMiddleware, sessionHandler.UpdateChecklist)
	router.POST("/sessions/:session_id/comments", authMiddleware, sessionHandler.AddComment)

	router.GET("/sessions/:session_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/sessions/:session_id/messages", authMiddleware, chatHandler.SendMessage)
	router.POST("/sessions/:session_id/read", authMiddleware, chatHandler.MarkRead)

	router.GET("/pricing/quote", authMiddleware, handlers.PricingQuote)
	router.GET("/distance", authMiddleware, handlers.Distance)

	router.GET("/ws/sessions", sessionWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.AppEnv != "production")

	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatalw("server error", "error", err)
	}
}
