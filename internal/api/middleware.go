package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/ledger"
	"github.com/kjannette/cryptovest-backend/internal/repository"
	"github.com/kjannette/cryptovest-backend/internal/session"
	"github.com/kjannette/cryptovest-backend/internal/supabase"
	"golang.org/x/time/rate"
)

// requireUser resolves the bearer token into a session and stores it on
// the request context.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			writeError(w, http.StatusUnauthorized, "expected a Bearer token")
			return
		}

		sess, err := s.Sessions.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			log.WithError(err).Error("Session lookup failed")
			writeError(w, http.StatusInternalServerError, "failed to resolve session")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

// requireAdmin is requireUser plus a check of the backend-resolved admin
// flag.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if sess == nil || !sess.IsAdmin {
			writeError(w, http.StatusForbidden, session.ErrForbidden.Error())
			return
		}
		next(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- rate limiting ---

// ipLimiter hands out one token bucket per client IP. Buckets idle for
// longer than ttl are dropped on the next lookup sweep.
type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipEntry
	every     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter returns nil when perMinute is not positive, which disables
// limiting.
func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		limiters: make(map[string]*ipEntry),
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(1, perMinute/4),
		ttl:      10 * time.Minute,
	}
}

func (l *ipLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.ttl {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimit != nil && !s.authLimit.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- error mapping ---

// writeServiceError maps domain errors to status codes. Anything
// unrecognized is logged and reported as a generic 500 with msg.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var vErr *session.ValidationError
	var sbErr *supabase.Error
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, ledger.ErrInsufficientBalance.Error())
	case errors.Is(err, session.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &sbErr) && sbErr.Status >= 400 && sbErr.Status < 500:
		status := http.StatusBadRequest
		if sbErr.Status == http.StatusUnauthorized || sbErr.Status == http.StatusForbidden {
			status = http.StatusUnauthorized
		}
		if sbErr.Status == http.StatusTooManyRequests {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, sbErr.Message)
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
