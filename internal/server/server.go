package server

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"atelier/internal/apperr"
	"atelier/internal/auth"
	"atelier/internal/config"
	"atelier/internal/storage/sqlite"
)

// Server provides the HTTP surface of the change-management backend.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	logger    *slog.Logger
	jwtSecret string
	tokenTTL  time.Duration
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, logger *slog.Logger, authCfg config.AuthConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	secret := authCfg.JWTSecret
	if secret == "" {
		secret = generateSecret()
		logger.Warn("no JWT secret configured; generated an ephemeral one, tokens will not survive restarts")
	}
	ttl := authCfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine:    router,
		store:     store,
		logger:    logger,
		jwtSecret: secret,
		tokenTTL:  ttl,
	}

	router.Use(srv.requestID())
	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/healthz", s.handleHealth)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("", s.requireAuth())
	{
		users := authed.Group("/users")
		{
			users.POST("", s.handleCreateUser)
			users.GET("", s.handleListUsers)
			users.GET(":id", s.handleGetUser)
		}

		projects := authed.Group("/projects")
		{
			projects.POST("", s.handleCreateProject)
			projects.GET("", s.handleListProjects)
			projects.GET(":id", s.handleGetProject)
			projects.PUT(":id/status", s.handleUpdateProjectStatus)

			projects.POST(":id/tasks", s.handleCreateTask)
			projects.GET(":id/tasks", s.handleListTasks)
			projects.GET(":id/tasks/stats", s.handleTaskStats)

			projects.POST(":id/change-orders", s.handleCreateChangeOrder)
			projects.GET(":id/change-orders", s.handleListChangeOrders)
			projects.GET(":id/change-orders/stats", s.handleChangeOrderStats)
		}

		authed.GET("/tasks/:id", s.handleGetTask)
		authed.PUT("/tasks/:id", s.handleUpdateTask)
		authed.DELETE("/tasks/:id", s.handleDeleteTask)

		authed.GET("/change-orders/:id", s.handleGetChangeOrder)
		authed.PUT("/change-orders/:id", s.handleUpdateChangeOrder)
		authed.POST("/change-orders/:id/decision", s.handleDecideChangeOrder)
		authed.POST("/change-orders/:id/implement", s.handleImplementChangeOrder)
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestID stamps every request with an id for log correlation.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

const requestIDKey = "request_id"

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondError logs the error and maps its kind onto an HTTP status.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindDenied:
		status = http.StatusForbidden
	}
	s.logger.Error("request failed",
		slog.String("path", c.FullPath()),
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// parseDate accepts calendar dates and full timestamps.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// caller returns the identity the auth middleware resolved.
func caller(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}
