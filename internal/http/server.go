package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/recat"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

// TaskEventLog reads the persisted run history written by the events worker.
type TaskEventLog interface {
	ListRecentTaskEvents(ctx context.Context, limit int) ([]core.TaskEventRecord, error)
}

type Server struct {
	http.Server
	recat       *recat.Service
	taxonomy    *taxonomy.Service
	history     TaskEventLog
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server serving the JSON API.
func NewServer(addr string, rc *recat.Service, tax *taxonomy.Service, history TaskEventLog) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		recat:       rc,
		taxonomy:    tax,
		history:     history,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	// Bulk re-categorization task
	mux.HandleFunc("GET /api/batch-category/task", s.wrap(s.handleTaskStatus))
	mux.HandleFunc("POST /api/batch-category/task", s.wrap(s.handleTaskStart))
	mux.HandleFunc("DELETE /api/batch-category/task", s.wrap(s.handleTaskClear))
	mux.HandleFunc("POST /api/batch-category/task/stop", s.wrap(s.handleTaskStop))
	mux.HandleFunc("POST /api/batch-category/task/restart", s.wrap(s.handleTaskRestart))
	mux.HandleFunc("POST /api/batch-category/task/continue", s.wrap(s.handleTaskContinue))
	mux.HandleFunc("GET /api/batch-category/task/results", s.wrap(s.handleTaskResults))
	mux.HandleFunc("GET /api/batch-category/task/results/summary", s.wrap(s.handleTaskSummary))
	mux.HandleFunc("GET /api/batch-category/task/results/preview", s.wrap(s.handleTaskPreview))
	mux.HandleFunc("POST /api/batch-category/task/apply", s.wrap(s.handleTaskApply))
	mux.HandleFunc("POST /api/batch-category/task/apply/partial", s.wrap(s.handleTaskApplyPartial))
	mux.HandleFunc("GET /api/batch-category/task/events", s.wrap(s.handleTaskEvents))

	// Category hierarchy
	mux.HandleFunc("GET /api/categories", s.wrap(s.handleCategoryList))
	mux.HandleFunc("POST /api/categories", s.wrap(s.handleCategoryCreate))
	mux.HandleFunc("GET /api/categories/tree", s.wrap(s.handleCategoryTree))
	mux.HandleFunc("GET /api/categories/statistics", s.wrap(s.handleCategoryStatistics))
	mux.HandleFunc("PUT /api/categories/{id}", s.wrap(s.handleCategoryUpdate))
	mux.HandleFunc("POST /api/categories/{id}/reparent", s.wrap(s.handleCategoryReparent))
	mux.HandleFunc("DELETE /api/categories/{id}", s.wrap(s.handleCategoryDelete))
	mux.HandleFunc("POST /api/categories/merge", s.wrap(s.handleCategoryMerge))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// wrap adds request logging, rate limiting, and security headers to a handler
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate limit mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
