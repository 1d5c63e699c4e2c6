package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/allyant/audit-reporter/internal/chat"
	"github.com/allyant/audit-reporter/internal/config"
	"github.com/allyant/audit-reporter/internal/llm"
	"github.com/allyant/audit-reporter/internal/report"
	"github.com/allyant/audit-reporter/internal/server/middleware"
	"github.com/allyant/audit-reporter/internal/server/ratelimit"
	"github.com/allyant/audit-reporter/internal/store"
	"github.com/allyant/audit-reporter/internal/templating"
	"github.com/allyant/audit-reporter/internal/types"
)

// contextStore is the slice of the report-context store the handlers use.
type contextStore interface {
	Get(ctx context.Context, ownerID string) (*types.ReportContext, int64, error)
	Put(ctx context.Context, ownerID string, rc *types.ReportContext, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, ownerID string) error
}

// reportGenerator produces report text from normalized issue rows.
type reportGenerator interface {
	Generate(ctx context.Context, rows []types.IssueRow, tool types.ToolType) (string, error)
}

// documentFiller renders the report document and returns its path.
type documentFiller interface {
	Fill(data templating.ReportData) (string, error)
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	store       contextStore
	storeCloser func()
	generator   reportGenerator
	filler      documentFiller
	hub         *chat.Hub
	authHandler *AuthHandler
	rateLimiter *ratelimit.Limiter
	uploadDir   string
	log         *zap.Logger
}

// New creates a new server instance wired to the real store, model
// backend, and template filler.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	ctx := context.Background()

	contexts, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := contexts.EnsureSchema(ctx); err != nil {
		contexts.Close()
		return nil, err
	}

	llmConfig := &llm.Config{
		Provider:        llm.Provider(cfg.LLMProvider),
		Model:           cfg.LLMModel,
		AzureEndpoint:   cfg.AzureEndpoint,
		AzureDeployment: cfg.AzureDeployment,
		MaxTokens:       llm.DefaultConfig().MaxTokens,
		Temperature:     llm.DefaultConfig().Temperature,
	}
	client, err := llm.NewClient(ctx, llmConfig, cfg.LLMAPIKey)
	if err != nil {
		contexts.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	reportConfig := report.DefaultConfig()
	reportConfig.MaxAttempts = cfg.MaxAttempts
	reportConfig.InitialBackoff = cfg.InitialBackoff
	reportConfig.PacingDelay = cfg.PacingDelay

	s := &Server{
		store:       contexts,
		storeCloser: contexts.Close,
		generator:   report.NewGenerator(client, reportConfig, log),
		filler:      templating.NewFiller(cfg.TemplatePath, cfg.OutputDir, log),
		hub:         chat.NewHub(log),
		authHandler: NewAuthHandler(cfg.OAuth, NewStateSigner(cfg.CookieSecret), log),
		rateLimiter: ratelimit.NewLimiter(ratelimit.LoadConfig()),
		uploadDir:   cfg.UploadDir,
		log:         log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // model batch loops are slow
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler builds the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Root forces login, matching the original product behavior.
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("GET /login", s.authHandler.Login)
	mux.HandleFunc("GET /auth/callback", s.authHandler.Callback)
	mux.Handle("GET /protected", middleware.RequireAuth(http.HandlerFunc(s.handleProtected)))

	mux.Handle("POST /upload", middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleUpload(w, r, types.ToolSummary)
	})))
	mux.Handle("POST /vpat-upload", middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleUpload(w, r, types.ToolVPAT)
	})))
	mux.Handle("POST /store-document-data", middleware.RequireAuth(http.HandlerFunc(s.handleStoreDocumentData)))
	mux.Handle("GET /create-document", middleware.RequireAuth(http.HandlerFunc(s.handleCreateDocument)))

	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.storeCloser != nil {
		s.storeCloser()
	}

	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds inbound rate limiting.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProtected serves the application page after login.
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat("public/index.html"); err == nil {
		http.ServeFile(w, r, "public/index.html")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!doctype html><title>Audit Reporter</title><h1>Audit Reporter</h1>")
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the rate-limit client identifier (IP address).
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.log.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Int("remaining", info.Remaining))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
