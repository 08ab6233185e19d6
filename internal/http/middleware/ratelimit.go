package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
	"go.uber.org/zap"
)

const rateWindow = time.Minute

// RateLimiter throttles requests per client IP before authentication and per
// tenant user after it. Health, metrics and whitelisted IPs are exempt.
type RateLimiter struct {
	cfg          *config.RateLimitConfig
	logger       *zap.Logger
	byIP         func(http.Handler) http.Handler
	byUser       func(http.Handler) http.Handler
	exemptIPs    map[string]struct{}
	exemptPaths  []string
	exemptPrefix []string
}

// NewRateLimiter builds both limiters from cfg
func NewRateLimiter(cfg *config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		cfg:       cfg,
		logger:    logger,
		exemptIPs: make(map[string]struct{}, len(cfg.WhitelistIPs)),
	}
	for _, ip := range cfg.WhitelistIPs {
		rl.exemptIPs[ip] = struct{}{}
	}
	for _, p := range cfg.WhitelistPaths {
		if prefix, ok := strings.CutSuffix(p, "/*"); ok {
			rl.exemptPrefix = append(rl.exemptPrefix, prefix)
			continue
		}
		rl.exemptPaths = append(rl.exemptPaths, p)
	}

	rl.byIP = httprate.Limit(
		cfg.RequestsPerMinute,
		rateWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + clientIP(r), nil
		}),
		httprate.WithLimitHandler(rl.tooManyRequests),
	)
	rl.byUser = httprate.Limit(
		cfg.RequestsPerMinuteAuth,
		rateWindow,
		httprate.WithKeyFuncs(userKey),
		httprate.WithLimitHandler(rl.tooManyRequests),
	)

	if cfg.Enabled {
		logger.Info("rate limiter enabled",
			zap.Int("requestsPerMinute", cfg.RequestsPerMinute),
			zap.Int("requestsPerMinuteAuth", cfg.RequestsPerMinuteAuth),
			zap.Int("exemptIPs", len(rl.exemptIPs)),
			zap.Strings("exemptPaths", cfg.WhitelistPaths))
	}
	return rl
}

// LimitByIP throttles every request by client IP. Mounted before
// authentication.
func (rl *RateLimiter) LimitByIP(next http.Handler) http.Handler {
	return rl.wrap(next, func(*http.Request) func(http.Handler) http.Handler { return rl.byIP })
}

// Limit throttles authenticated requests by tenant and user, and anything
// else by IP. Mounted after authentication and tenant scoping.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return rl.wrap(next, func(r *http.Request) func(http.Handler) http.Handler {
		if _, ok := auth.FromContext(r.Context()); ok {
			return rl.byUser
		}
		return rl.byIP
	})
}

func (rl *RateLimiter) wrap(next http.Handler, pick func(*http.Request) func(http.Handler) http.Handler) http.Handler {
	if !rl.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		pick(r)(next).ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) exempt(r *http.Request) bool {
	for _, p := range rl.exemptPaths {
		if r.URL.Path == p {
			return true
		}
	}
	for _, prefix := range rl.exemptPrefix {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	_, ok := rl.exemptIPs[clientIP(r)]
	return ok
}

// userKey keys a request by tenant and user so that one user working in two
// tenants has two budgets
func userKey(r *http.Request) (string, error) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		return "ip:" + clientIP(r), nil
	}
	if tenantID, err := auth.RequireTenant(r.Context()); err == nil {
		return "tenant:" + tenantID.String() + ":user:" + user.UserID.String(), nil
	}
	return "user:" + user.UserID.String(), nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("clientIP", clientIP(r)),
	}
	if user, ok := auth.FromContext(r.Context()); ok {
		fields = append(fields, zap.String("userID", user.UserID.String()))
	}
	rl.logger.Warn("rate limit exceeded", fields...)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   domain.ErrorTypeRateLimited,
		Title:  http.StatusText(http.StatusTooManyRequests),
		Status: http.StatusTooManyRequests,
		Detail: "Too many requests. Please try again later.",
	})
}
