package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"veritag/internal/config"
	"veritag/internal/domain"
	"veritag/internal/usecase"
)

// TagDirectory is the slice of the tag repository the admin surface needs.
type TagDirectory interface {
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Tag, error)
	SetActive(ctx context.Context, identifier string, active bool) error
}

type AuditLog interface {
	ListByTarget(ctx context.Context, targetID string) ([]domain.AuditEvent, error)
}

type Server struct {
	cfg config.Config
	r   *gin.Engine

	verifyUC   *usecase.VerifyScan
	registerUC *usecase.RegisterTag
	tags       TagDirectory
	audit      *usecase.AuditEmitter
	auditLog   AuditLog

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration

	adminAPIKey string
}

type ServerDeps struct {
	Verify      *usecase.VerifyScan
	Register    *usecase.RegisterTag
	Tags        TagDirectory
	Audit       *usecase.AuditEmitter
	AuditLog    AuditLog
	RateLimiter domain.RateLimiter
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:               cfg,
		r:                 r,
		verifyUC:          deps.Verify,
		registerUC:        deps.Register,
		tags:              deps.Tags,
		audit:             deps.Audit,
		auditLog:          deps.AuditLog,
		rateLimiter:       deps.RateLimiter,
		rateLimitRequests: cfg.RateLimitRequests,
		rateLimitWindow:   time.Duration(cfg.RateLimitWindowSeconds) * time.Second,
		adminAPIKey:       cfg.AdminAPIKey,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	admin := s.r.Group("/v1/admin", s.adminAuth)
	admin.POST("/tags", s.handleRegisterTag)
	admin.GET("/tags/:identifier", s.handleGetTag)
	admin.GET("/tags/:identifier/history", s.handleTagHistory)
	admin.GET("/tags/:identifier/audit", s.handleTagAudit)
	admin.POST("/tags/:identifier/deactivate", s.handleSetActive(false))
	admin.POST("/tags/:identifier/reactivate", s.handleSetActive(true))

	// Custom-verb route; gin's tree router cannot hold the colon form.
	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/tags:verify" {
		s.handleVerify(c)
		return
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.r
}
