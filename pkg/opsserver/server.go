package opsserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/auth"
	"github.com/opsflow/opsflow/pkg/config"
	"github.com/opsflow/opsflow/pkg/opsserver/handlers"
	"github.com/opsflow/opsflow/pkg/opsserver/middleware"
	"github.com/opsflow/opsflow/pkg/resolver"
	"github.com/opsflow/opsflow/pkg/store/postgres"
)

// Server is the operator-facing report API: dead-lettered events, queue
// stats and on-demand requirement resolution.
type Server struct {
	router   *gin.Engine
	db       *postgres.Store
	attempts handlers.AttemptSource
	cfg      *config.Config
	logger   *zap.Logger
}

func NewServer(db *postgres.Store, attempts handlers.AttemptSource, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		db:       db,
		attempts: attempts,
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokens := auth.NewTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(tokens))

		if s.db != nil {
			eventRepo := postgres.NewEventRepository(s.db.DB())
			workflowRepo := postgres.NewWorkflowRepository(s.db.DB())
			definitionRepo := postgres.NewDefinitionRepository(s.db.DB())
			documentRepo := postgres.NewWorkflowDocumentRepository(s.db.DB())
			res := resolver.NewResolver(definitionRepo, documentRepo, s.logger)

			eventHandler := handlers.NewEventHandler(eventRepo, s.logger)
			api.GET("/events/deadletters", eventHandler.ListDeadLetters)
			api.GET("/events/stats", eventHandler.Stats)

			requirementHandler := handlers.NewRequirementHandler(workflowRepo, res, s.logger)
			api.GET("/workflows/:id/requirements", requirementHandler.Get)
		}

		if s.attempts != nil {
			attemptHandler := handlers.NewAttemptHandler(s.attempts, s.logger)
			api.GET("/events/:id/attempts", attemptHandler.ListByEvent)
		}
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
