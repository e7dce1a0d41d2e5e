package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/citylore/server/internal/config"
	"golang.org/x/time/rate"
)

// RateLimitTier selects which request budget applies. Routes opt into a
// tier via WithRateLimitTierHandler; everything else counts as public.
type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	TierAdmin  RateLimitTier = "admin"
	TierLogin  RateLimitTier = "login"
)

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

const (
	// Login throttling refills one attempt per three minutes after the
	// initial burst, which yields the configured attempts-per-15-minutes.
	loginRefillInterval = 3 * time.Minute

	limiterTTL    = 15 * time.Minute
	sweepInterval = 5 * time.Minute
)

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// RateLimit enforces per-client request budgets. Each tier with a
// positive budget gets its own token bucket per client IP; a tier whose
// budget is zero is unlimited. Health and readiness probes bypass
// limiting entirely so orchestrators cannot be locked out.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limiters := newClientLimiters(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			tier := TierPublic
			if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
				tier = value
			}

			limiter := limiters.get(tier, limiters.clientKey(r))
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", retryAfter(tier))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(tier RateLimitTier) string {
	if tier == TierLogin {
		return "180"
	}
	return "60"
}

// clientLimiters keeps one token bucket per (tier, client) pair and
// sweeps buckets that have gone quiet so the map cannot grow without
// bound under address-rotating abuse.
type clientLimiters struct {
	mu             sync.Mutex
	entries        map[string]*limiterEntry
	budgets        map[RateLimitTier]int
	trustedProxies []*net.IPNet
	done           chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	c := &clientLimiters{
		entries: make(map[string]*limiterEntry),
		budgets: map[RateLimitTier]int{
			TierPublic: cfg.PublicPerMinute,
			TierAdmin:  cfg.AdminPerMinute,
			TierLogin:  cfg.LoginPer15Minutes,
		},
		trustedProxies: parseCIDRs(cfg.TrustedProxyCIDRs),
		done:           make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *clientLimiters) get(tier RateLimitTier, key string) *rate.Limiter {
	budget := c.budgets[tier]
	if budget <= 0 {
		return nil
	}

	lookup := string(tier)
	if key != "" {
		lookup += ":" + key
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	interval := time.Minute / time.Duration(budget)
	if tier == TierLogin {
		interval = loginRefillInterval
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Every(interval), budget),
		lastSeen: time.Now(),
	}
	c.entries[lookup] = entry
	return entry.limiter
}

func (c *clientLimiters) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *clientLimiters) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-limiterTTL)
	for key, entry := range c.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the background sweeper.
func (c *clientLimiters) Stop() {
	close(c.done)
}

// clientKey identifies the client for budgeting. Forwarding headers are
// trusted only when the direct peer sits inside a configured proxy
// range, so clients cannot spoof X-Forwarded-For to dodge their bucket.
func (c *clientLimiters) clientKey(r *http.Request) string {
	if r == nil {
		return ""
	}

	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}

	if c.isTrustedProxy(peer) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	return peer
}

func (c *clientLimiters) isTrustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range c.trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

func parseCIDRs(raw []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(raw))
	for _, entry := range raw {
		if _, network, err := net.ParseCIDR(strings.TrimSpace(entry)); err == nil {
			networks = append(networks, network)
		}
	}
	return networks
}
