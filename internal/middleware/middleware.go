package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nahidhasan98/netconf-relay/internal/errors"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/models"
)

const headerRequestID = "X-Request-ID"

// maxRequestIDLength bounds client supplied request ids
const maxRequestIDLength = 128

// Middleware represents the middleware dependencies
type Middleware struct {
	log         *logger.Logger
	rateLimiter *RateLimiter
}

// RateLimiter implements a fixed-window limiter per client
type RateLimiter struct {
	clients map[string]*ClientBucket
	mutex   sync.Mutex

	// Rate limiting configuration
	requestsPerMinute int
	windowSize        time.Duration
	now               func() time.Time
}

// ClientBucket represents a rate limit bucket for a specific client
type ClientBucket struct {
	tokens     int
	lastRefill time.Time
}

// New creates a new middleware instance
func New(log *logger.Logger, requestsPerMinute int) *Middleware {
	return &Middleware{
		log:         log,
		rateLimiter: NewRateLimiter(requestsPerMinute, time.Minute),
	}
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		clients:           make(map[string]*ClientBucket),
		requestsPerMinute: limit,
		windowSize:        window,
		now:               time.Now,
	}
}

// RequestID tags the request with an id taken from X-Request-ID or
// generated, and stores a logger carrying it in the request context.
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		ctx = logger.WithContext(ctx, m.log.With("request_id", id))
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs HTTP requests with detailed information
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a custom response writer to capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.FromContext(r.Context(), m.log).
			With("method", r.Method).
			With("path", r.URL.Path).
			With("status", rw.statusCode).
			With("duration", duration.String()).
			With("remote_addr", r.RemoteAddr).
			With("user_agent", r.UserAgent()).
			Infof("HTTP request completed")
	})
}

// Recovery handles panics and returns a 500 error
func (m *Middleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				logger.FromContext(r.Context(), m.log).Error("Panic in HTTP handler", err)
				writeError(w, errors.InternalError(err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RateLimit applies rate limiting based on client IP address
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)

		if !m.rateLimiter.Allow(clientIP) {
			m.log.Warnf("Rate limit exceeded for client: %s", clientIP)
			w.Header().Set("Retry-After", strconv.Itoa(int(m.rateLimiter.windowSize.Seconds())))
			writeError(w, errors.New(errors.ErrCodeTooManyRequests, "Rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow checks if a request is allowed based on rate limiting
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()

	bucket, exists := rl.clients[clientIP]
	if !exists {
		bucket = &ClientBucket{
			tokens:     rl.requestsPerMinute,
			lastRefill: now,
		}
		rl.clients[clientIP] = bucket
	}

	// Refill tokens once the window has passed
	if now.Sub(bucket.lastRefill) >= rl.windowSize {
		bucket.tokens = rl.requestsPerMinute
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}

	return false
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for proxies)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take the first IP in the comma-separated list
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	// Fall back to the host part of RemoteAddr
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// Security adds basic security headers
func (m *Middleware) Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Responses are never cacheable, except liveness probes
		if r.URL.Path != "/healthz" && r.URL.Path != "/health" {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(&models.ErrorResponse{
		Error: appErr.Message,
		Code:  string(appErr.Code),
	})
}

// responseWriter is a wrapper for http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
