package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/api/handlers"
	"github.com/adamscao/shotserver/internal/api/middleware"
	"github.com/adamscao/shotserver/internal/config"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/metrics"
	"github.com/adamscao/shotserver/internal/service"
	"github.com/adamscao/shotserver/internal/session"
)

const staticPrefix = "/static/"

// Deps are the components the HTTP surface is built from
type Deps struct {
	Config        *config.Config
	Users         *repository.UserRepository
	Sessions      *session.Manager
	Limiter       *guard.RateLimiter
	Files         *filestore.Store
	Auditor       *service.Auditor
	Authenticator *service.Authenticator
	Registration  *service.Registration
	Accounts      *service.Accounts
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(deps Deps) (*Server, error) {
	cfg := deps.Config

	// Set Gin mode
	if gin.Mode() != gin.TestMode {
		if cfg.IsDevelopment() {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Global middleware
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.Logger(deps.Log))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(deps.Limiter, deps.Metrics, staticPrefix))
	}

	// Create handlers
	authHandler := handlers.NewAuthHandler(deps.Authenticator, deps.Sessions, deps.Users, deps.Auditor)
	registerHandler := handlers.NewRegisterHandler(deps.Registration)
	adminHandler := handlers.NewAdminHandler(deps.Registration, deps.Accounts, deps.Auditor)
	fileHandler := handlers.NewFileHandler(deps.Files, deps.Auditor, deps.Metrics)

	// Public endpoints
	router.POST("/register", registerHandler.Register)
	router.POST("/login", authHandler.Login)
	router.GET("/check-auth", authHandler.CheckAuth)

	// Authenticated endpoints
	authed := router.Group("/")
	authed.Use(middleware.RequireAuthenticated(deps.Sessions, deps.Users))
	{
		authed.GET("/logout", authHandler.Logout)

		authed.POST("/upload", fileHandler.Upload)
		authed.GET("/image/*filepath", fileHandler.Image)

		authed.GET("/folders", fileHandler.ListFolders)
		authed.POST("/folder", fileHandler.CreateFolder)
		authed.GET("/folder/:name", fileHandler.GetFolder)
		authed.DELETE("/folder/:name", fileHandler.DeleteFolder)
		authed.POST("/folder/:name/star", fileHandler.StarFolder)
		authed.POST("/folder/:name/unstar", fileHandler.UnstarFolder)

		authed.POST("/move_screenshot", fileHandler.MoveScreenshot)
		authed.DELETE("/delete/:folder/:filename", fileHandler.DeleteScreenshot)
	}

	// Admin endpoints, legacy paths
	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/pending-requests", adminHandler.PendingRequests)
		admin.POST("/approve-request/:id", adminHandler.ApproveRequest)
		admin.POST("/reject-request/:id", adminHandler.RejectRequest)
		admin.GET("/users", adminHandler.ListUsers)
		admin.POST("/users/:id/toggle-access", adminHandler.ToggleAccess)
	}

	// Admin endpoints
	adminAPI := authed.Group("/api/admin")
	adminAPI.Use(middleware.RequireAdmin())
	{
		adminAPI.GET("/registration-requests", adminHandler.PendingRequests)
		adminAPI.POST("/registration-requests/:id/approve", adminHandler.ApproveRequest)
		adminAPI.POST("/registration-requests/:id/reject", adminHandler.RejectRequest)
		adminAPI.GET("/users", adminHandler.ListUsers)
		adminAPI.PUT("/users/:id/status", adminHandler.SetStatus)
		adminAPI.GET("/statistics", adminHandler.Statistics)
		adminAPI.GET("/audit-log", adminHandler.AuditLog)
		adminAPI.GET("/blocked-ips", adminHandler.BlockedIPs)
		adminAPI.DELETE("/blocked-ips/:ip", adminHandler.UnblockIP)
	}

	// Static assets
	if dir := cfg.Server.StaticDir; dir != "" {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			router.Static(staticPrefix, dir)
		} else {
			deps.Log.Warn().Str("dir", dir).Msg("static directory not found, not serving static files")
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return &Server{
		router: router,
		config: cfg,
	}, nil
}

// HTTPServer builds the net/http server for the configured listen address
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
