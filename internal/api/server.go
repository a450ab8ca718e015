package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/api/auth"
	"github.com/guestdesk/internal/approvals"
	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/kb"
	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/internal/threads"
)

// Deps are the services behind the HTTP surface
type Deps struct {
	Threads   threads.Store
	Intake    *threads.Intake
	Rules     *rules.Service
	Approvals *approvals.Service
	Records   audit.Store
	KB        *kb.Service
	Tokens    *auth.TokenService
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
	}

	server.setupRoutes(deps)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(deps Deps) {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1", auth.RequireAuth(deps.Tokens))

	threadHandler := NewThreadHandler(deps.Threads, deps.Intake)
	v1.GET("/threads", threadHandler.List)
	v1.POST("/threads", threadHandler.Create)
	v1.GET("/threads/:id", threadHandler.Get)
	v1.PATCH("/threads/:id/status", threadHandler.SetStatus)
	v1.GET("/threads/:id/messages", threadHandler.ListMessages)
	v1.POST("/threads/:id/messages", threadHandler.CreateMessage)
	v1.GET("/messages/:id/analysis", threadHandler.GetAnalysis)
	v1.POST("/properties", threadHandler.CreateProperty, auth.RequirePermission(auth.PermissionManageProperties))
	v1.GET("/properties/:id", threadHandler.GetProperty)

	approvalHandler := NewApprovalHandler(deps.Approvals)
	decide := auth.RequirePermission(auth.PermissionDecideApprovals)
	v1.GET("/approvals", approvalHandler.List)
	v1.POST("/approvals", approvalHandler.Create, decide)
	v1.POST("/approvals/bulk", approvalHandler.Bulk, decide)
	v1.GET("/approvals/:id", approvalHandler.Get)
	v1.POST("/approvals/:id/decide", approvalHandler.Decide, decide)
	v1.POST("/messages/:id/send", approvalHandler.SendDirect, auth.RequirePermission(auth.PermissionSendReplies))

	ruleHandler := NewRuleHandler(deps.Rules)
	manageRules := auth.RequirePermission(auth.PermissionManageRules)
	v1.GET("/rules", ruleHandler.List)
	v1.POST("/rules", ruleHandler.Create, manageRules)
	v1.GET("/rules/:id", ruleHandler.Get)
	v1.PATCH("/rules/:id", ruleHandler.Update, manageRules)
	v1.DELETE("/rules/:id", ruleHandler.Delete, manageRules)

	recordHandler := NewRecordHandler(deps.Records)
	viewAudit := auth.RequirePermission(auth.PermissionViewAudit)
	v1.GET("/send-logs", recordHandler.ListSendLogs, viewAudit)
	v1.GET("/audit-logs", recordHandler.ListAudit, viewAudit)

	kbHandler := NewKBHandler(deps.KB)
	v1.GET("/kb", kbHandler.List)
	v1.GET("/kb/search", kbHandler.Search)
	v1.POST("/kb", kbHandler.Create, auth.RequirePermission(auth.PermissionManageKB))
	v1.GET("/kb/:id", kbHandler.Get)
}

// ServeHTTP lets tests drive the router directly
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}
