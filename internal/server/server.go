// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/LegionofMany/blockpages-risk/internal/audit"
	"github.com/LegionofMany/blockpages-risk/internal/auth"
	"github.com/LegionofMany/blockpages-risk/internal/circuitbreaker"
	"github.com/LegionofMany/blockpages-risk/internal/config"
	"github.com/LegionofMany/blockpages-risk/internal/health"
	"github.com/LegionofMany/blockpages-risk/internal/logging"
	"github.com/LegionofMany/blockpages-risk/internal/metrics"
	"github.com/LegionofMany/blockpages-risk/internal/ratelimit"
	"github.com/LegionofMany/blockpages-risk/internal/realtime"
	"github.com/LegionofMany/blockpages-risk/internal/risk"
	"github.com/LegionofMany/blockpages-risk/internal/security"
	"github.com/LegionofMany/blockpages-risk/internal/validation"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	wallets      wallets.Store
	riskService  *risk.Service
	auditLog     audit.Logger
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWalletStore sets a custom wallet store (for testing)
func WithWalletStore(store wallets.Store) Option {
	return func(s *Server) {
		s.wallets = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set stores/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var riskStore risk.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		if s.wallets == nil {
			walletStore := wallets.NewPostgresStore(db)
			if err := walletStore.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate wallet store", "error", err)
			}
			s.wallets = walletStore
		}

		pgRiskStore := risk.NewPostgresStore(db)
		if err := pgRiskStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate risk store", "error", err)
		}
		riskStore = pgRiskStore

		auditLogger := audit.NewPostgresLogger(db)
		if err := auditLogger.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate audit log", "error", err)
		}
		s.auditLog = auditLogger

		s.healthReg.Register("database", health.DBChecker(db))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		if s.wallets == nil {
			s.wallets = wallets.NewMemoryStore()
		}
		riskStore = risk.NewMemoryStore()
		s.auditLog = audit.NewMemoryLogger()
	}

	// Signal sources: internal wallet heuristics plus the external feed.
	// Without a configured feed URL the external source runs against the
	// stub provider and reports no data.
	var feed risk.FeedProvider = risk.StubFeed{}
	if cfg.ExternalFeedURL != "" {
		if err := security.ValidateEndpointURL(cfg.ExternalFeedURL); err != nil {
			return nil, fmt.Errorf("invalid EXTERNAL_FEED_URL: %w", err)
		}
		feed = risk.NewHTTPFeed(cfg.ExternalFeedURL)
		s.logger.Info("external risk feed enabled", "url", cfg.ExternalFeedURL)
	}
	feedBreaker := circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultOpenDuration)
	aggregator := risk.NewAggregator(
		risk.NewInternalSignalSource(),
		risk.NewExternalSignalSource(feed).
			WithTimeout(cfg.ExternalFeedTimeout).
			WithBreaker(feedBreaker),
	)
	s.healthReg.Register("external_feed", func(ctx context.Context) health.Status {
		st := feedBreaker.State(feed.Name())
		return health.Status{
			Name:    "external_feed",
			Healthy: st != circuitbreaker.StateOpen,
			Detail:  "circuit " + st.String(),
		}
	})

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	s.riskService = risk.NewService(s.wallets, riskStore, aggregator).
		WithAuditLog(s.auditLog).
		WithEvents(s.realtimeHub).
		WithLogger(s.logger)

	// Admin mutation rate limiter
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		MaxCalls:        cfg.AdminRateLimit,
		Window:          cfg.AdminRateWindow,
		CleanupInterval: time.Minute,
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time risk events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	riskHandler := risk.NewHandler(s.riskService).WithListMinScore(s.cfg.ListMinScore)

	// PUBLIC ROUTES (no auth required)
	// Risk lookups are the read path every integrator uses
	riskHandler.RegisterRoutes(v1)

	// ADMIN ROUTES (shared secret + fixed-window rate limit on mutations)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	riskHandler.RegisterAdminRoutes(admin, s.rateLimiter.Middleware(auth.ContextKeyAdminIdentity))

	// Wallet record management (feeds the internal signal source)
	admin.PUT("/wallets", s.upsertWalletHandler)
	admin.GET("/audit", s.auditQueryHandler)

	// Realtime hub stats
	admin.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// upsertWalletHandler handles PUT /v1/admin/wallets.
// Wallet records are normally synced from chain indexers; this endpoint
// lets operators create or correct one by hand.
func (s *Server) upsertWalletHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Address     string   `json:"address" binding:"required"`
		Chain       string   `json:"chain" binding:"required"`
		Flags       []string `json:"flags"`
		Suspicious  bool     `json:"suspicious"`
		Blacklisted bool     `json:"blacklisted"`
		TxCount     int64    `json:"txCount"`
		KYCStatus   string   `json:"kycStatus"`
		TrustScore  *int     `json:"trustScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	chain := wallets.NormalizeChain(req.Chain)
	address := wallets.NormalizeAddress(req.Address)
	if !validation.IsValidAddress(chain, address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "address is not valid for the given chain",
		})
		return
	}

	w := &wallets.Wallet{
		Address:     address,
		Chain:       chain,
		Suspicious:  req.Suspicious,
		Blacklisted: req.Blacklisted,
		TxCount:     req.TxCount,
		KYCStatus:   req.KYCStatus,
	}
	if req.TrustScore != nil {
		w.TrustScore = *req.TrustScore
	}
	for _, f := range req.Flags {
		w.Flags = append(w.Flags, wallets.Flag{
			Reason:    validation.SanitizeString(f, 200),
			CreatedAt: time.Now().UTC(),
		})
	}

	if err := s.wallets.Upsert(ctx, w); err != nil {
		logging.L(ctx).Error("failed to upsert wallet", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save wallet record",
		})
		return
	}

	s.logger.Info("wallet record upserted",
		"chain", chain,
		"address", address,
		"actor", auth.AdminIdentity(c),
	)

	// A record change can flip the blacklist or push the automated score
	// into the red band; announce it to live subscribers.
	s.riskService.NotifyWalletChanged(ctx, chain, address)

	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"chain":       chain,
		"blacklisted": w.Blacklisted,
		"suspicious":  w.Suspicious,
		"flagCount":   len(w.Flags),
	})
}

// auditQueryHandler handles GET /v1/admin/audit?target=chain:address
func (s *Server) auditQueryHandler(c *gin.Context) {
	ctx := c.Request.Context()

	target := c.Query("target")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 500",
			})
			return
		}
	}

	records, err := s.auditLog.Query(ctx, target, limit)
	if err != nil {
		logging.L(ctx).Error("failed to query audit log", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to query audit log",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Blockpages Risk",
		"description": "Wallet risk scoring and override engine",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export DB pool stats while the server runs
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
