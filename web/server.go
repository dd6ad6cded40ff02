package web

import (
	"context"
	"net/http"
	"time"

	"csv-agent/config"
	"csv-agent/session"
	"csv-agent/web/handlers"
	"csv-agent/web/middleware"
	"csv-agent/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router         *gin.Engine
	store          *session.Store
	chatService    *services.ChatService
	datasetService *services.DatasetService
	streamService  *services.StreamService
	rateLimiter    *middleware.SessionRateLimiter
	logger         *zap.Logger
	config         *config.Config
}

func NewServer(cfg *config.Config, store *session.Store, chatService *services.ChatService, datasetService *services.DatasetService, logger *zap.Logger) *Server {
	// Set Gin mode based on environment
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		// Add logger to context
		c.Set("logger", logger)
		c.Next()
	})
	router.Use(requestLogger(logger))
	router.MaxMultipartMemory = 8 << 20

	server := &Server{
		router:         router,
		store:          store,
		chatService:    chatService,
		datasetService: datasetService,
		streamService:  services.NewStreamService(logger),
		rateLimiter:    middleware.NewSessionRateLimiter(middleware.ConfigFromApp(cfg), logger),
		logger:         logger,
		config:         cfg,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Serve static files
	s.router.Static("/static", "./web/static")

	chatHandler := handlers.NewChatHandler(s.config, s.chatService, s.streamService, s.logger)
	datasetHandler := handlers.NewDatasetHandler(s.config, s.datasetService, s.logger)
	workspaceHandler := handlers.NewWorkspaceHandler(s.config.WorkspaceDir, s.logger)

	app := s.router.Group("/")
	app.Use(middleware.SessionMiddleware(s.store))

	app.GET("/", chatHandler.Index)
	app.POST("/dataset", middleware.RateLimitMiddleware(s.rateLimiter, middleware.LimitFile), datasetHandler.Upload)
	app.POST("/chat", middleware.RateLimitMiddleware(s.rateLimiter, middleware.LimitMessage), chatHandler.SendMessage)
	app.GET("/chat/stream", chatHandler.StreamResponse)
	app.POST("/chat/reset", chatHandler.Reset)
	app.GET("/workspaces/:sessionID/*filepath", workspaceHandler.ServeFile)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))
	defer s.rateLimiter.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
			errCh <- err
		}
	}()

	// Wait for context cancellation
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	s.logger.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases background resources when the server is not started.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
