package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Engine is the surface the HTTP layer needs from the execution registry.
type Engine interface {
	ports.RegistryPort
	ListExecutions(limit int) ([]*domain.PipelineExecution, error)
}

// Server exposes the pipeline engine over HTTP and websockets.
type Server struct {
	engine  Engine
	emitter ports.EventEmitterPort
	logger  *slog.Logger
	http    *http.Server
}

func NewServer(engine Engine, emitter ports.EventEmitterPort, config domain.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		emitter: emitter,
		logger:  logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	SetupRoutes(router, s)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// SetupRoutes registers every endpoint on the router. Split out so tests
// can mount the routes on their own engine.
func SetupRoutes(router *gin.Engine, s *Server) {
	router.GET("/health", s.handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/pipelines/validate", s.handleValidate)

		executions := v1.Group("/executions")
		{
			executions.POST("", s.handleSubmit)
			executions.GET("", s.handleList)
			executions.GET("/:id", s.handleStatus)
			executions.DELETE("/:id", s.handleStop)
			executions.GET("/:id/events", s.handleEvents)
		}
	}
}
