package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/squat-coach-cv/server/cache"
	"github.com/san-kum/squat-coach-cv/server/config"
	"github.com/san-kum/squat-coach-cv/server/framestore"
	"github.com/san-kum/squat-coach-cv/server/handlers"
	"github.com/san-kum/squat-coach-cv/server/middleware"
	"github.com/san-kum/squat-coach-cv/server/ml"
	"github.com/san-kum/squat-coach-cv/server/models"
	"github.com/san-kum/squat-coach-cv/server/processor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Server struct {
	router         *gin.Engine
	logger         *zap.Logger
	frameProcessor *processor.FrameProcessor
	mlClient       *ml.Client
	store          *framestore.Store
	streamHandler  *handlers.StreamHandler
	rateLimiter    *middleware.RateLimiter
	config         *config.Config
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	server.mlClient.StartHealthChecker(healthCtx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	srv.RegisterOnShutdown(server.streamHandler.Close)

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("https", cfg.Security.EnableHTTPS))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// stop accepting uploads before the workers go away
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopHealth()

	if err := server.frameProcessor.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("Failed to shutdown frame processor", zap.Error(err))
	}

	if server.rateLimiter != nil {
		server.rateLimiter.Shutdown()
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	clientConfig := ml.DefaultClientConfig()
	clientConfig.Timeout = cfg.ML.Timeout
	clientConfig.MaxRetries = cfg.ML.MaxRetries
	clientConfig.RetryDelay = cfg.ML.RetryDelay
	clientConfig.HealthCheckInterval = cfg.ML.HealthCheckInterval
	clientConfig.PosePath = cfg.ML.PosePath
	clientConfig.HandsPath = cfg.ML.HandsPath

	mlClient, err := ml.NewClient(cfg.ML.BaseURL, clientConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ML client: %w", err)
	}

	var detector ml.Detector = mlClient
	if cfg.ML.SerializeDetectors {
		detector = ml.NewSerialized(mlClient)
	}

	var detectionCache cache.Cache[models.Detections]
	if cfg.Processor.CacheTTL > 0 && cfg.Processor.CacheSize > 0 {
		detectionCache = cache.NewMemoryCache[models.Detections](cfg.Processor.CacheSize, cfg.Processor.CacheTTL, logger)
	}

	store := framestore.New()

	frameProcessor, err := processor.NewFrameProcessor(detector, detector, store, detectionCache, &processor.ProcessorConfig{
		MaxQueueSize:      cfg.Processor.QueueSize,
		MaxWorkers:        cfg.Processor.Workers,
		ProcessingTimeout: cfg.Processor.Timeout,
		FlipHorizontal:    cfg.Processor.FlipHorizontal,
		CacheTTL:          cfg.Processor.CacheTTL,
		FontSize:          cfg.Processor.FontSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame processor: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))

	uploadHandler := handlers.NewUploadHandler(frameProcessor, logger)
	streamHandler := handlers.NewStreamHandler(frameProcessor, store, handlers.StreamConfig{
		PollInterval: cfg.Stream.PollInterval,
		JPEGQuality:  cfg.Stream.JPEGQuality,
	}, logger)
	wsHandler := handlers.NewWebSocketHandler(frameProcessor, cfg.Security.AllowedOrigins, logger)

	setupRoutes(router, uploadHandler, streamHandler, wsHandler, rateLimiter)

	return &Server{
		router:         router,
		logger:         logger,
		frameProcessor: frameProcessor,
		mlClient:       mlClient,
		store:          store,
		streamHandler:  streamHandler,
		rateLimiter:    rateLimiter,
		config:         cfg,
	}, nil
}

func setupRoutes(router *gin.Engine, upload *handlers.UploadHandler, stream *handlers.StreamHandler, ws *handlers.WebSocketHandler, rateLimiter *middleware.RateLimiter) {
	router.GET("/health", middleware.HealthCheck())

	router.GET("/", upload.Index)
	router.POST("/upload_frame", rateLimiter.RateLimit(), middleware.RequireJSON(), upload.UploadFrame)
	router.GET("/video_feed", stream.VideoFeed)

	router.GET("/ws", rateLimiter.RateLimit(), ws.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", middleware.HealthCheck())
		api.GET("/stats", rateLimiter.RateLimit(), stream.GetStats)
	}
}
