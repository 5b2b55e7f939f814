package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"studio-intake/internal/observability"
)

type Tier string

const (
	TierPublic Tier = "PUBLIC"
	TierForm   Tier = "FORM"
	TierLogin  Tier = "LOGIN"
)

type TierConfig struct {
	RequestsPerMinute int
	Window            time.Duration
}

type Config struct {
	Enabled bool
	Public  TierConfig
	Form    TierConfig
	Login   TierConfig
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Public:  TierConfig{RequestsPerMinute: 60, Window: time.Minute},
		Form:    TierConfig{RequestsPerMinute: 5, Window: time.Minute},
		Login:   TierConfig{RequestsPerMinute: 3, Window: time.Minute},
	}
}

type bucketEntry struct {
	bucket     *Bucket
	lastAccess time.Time
}

// Limiter keys buckets by tier plus client IP, each tier in its own
// partition. It is an injected instance with an explicit lifecycle, not a
// package-level registry.
type Limiter struct {
	config   Config
	logger   *observability.Logger
	onReject func(ip, method, path string)

	mu      sync.Mutex
	buckets map[Tier]map[string]*bucketEntry

	sweepInterval time.Duration
	idleFactor    int
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

func NewLimiter(config Config, logger *observability.Logger) *Limiter {
	l := &Limiter{
		config: config,
		logger: logger,
		buckets: map[Tier]map[string]*bucketEntry{
			TierPublic: {},
			TierForm:   {},
			TierLogin:  {},
		},
		sweepInterval: 5 * time.Minute,
		idleFactor:    3,
		stopSweep:     make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// OnReject registers a callback fired whenever a request is denied. Used to
// feed the audit trail without coupling this package to it.
func (l *Limiter) OnReject(fn func(ip, method, path string)) {
	l.onReject = fn
}

func (l *Limiter) tierConfig(tier Tier) TierConfig {
	switch tier {
	case TierForm:
		return l.config.Form
	case TierLogin:
		return l.config.Login
	default:
		return l.config.Public
	}
}

func (l *Limiter) ResolveBucket(tier Tier, key string) *Bucket {
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	partition := l.buckets[tier]
	entry, ok := partition[key]
	if !ok {
		cfg := l.tierConfig(tier)
		entry = &bucketEntry{bucket: NewBucket(cfg.RequestsPerMinute, cfg.Window)}
		partition[key] = entry
	}
	entry.lastAccess = now

	return entry.bucket
}

func (l *Limiter) Middleware(tier Tier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.config.Enabled || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		result := l.ResolveBucket(tier, ip).TryConsume(1)

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}

			l.logger.Info("rate_limit_exceeded", map[string]any{
				"tier":        string(tier),
				"ip":          ip,
				"method":      r.Method,
				"path":        r.URL.Path,
				"retry_after": retryAfter,
			})
			if l.onReject != nil {
				l.onReject(ip, r.Method, r.URL.Path)
			}

			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(time.Now().UTC())
		case <-l.stopSweep:
			return
		}
	}
}

// Sweep evicts buckets idle longer than idleFactor times their tier window,
// bounding memory growth across distinct client IPs.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for tier, partition := range l.buckets {
		maxIdle := time.Duration(l.idleFactor) * l.tierConfig(tier).Window
		for key, entry := range partition {
			if now.Sub(entry.lastAccess) > maxIdle {
				delete(partition, key)
				removed++
			}
		}
	}

	if removed > 0 {
		l.logger.Info("rate_limit_sweep", map[string]any{"evicted": removed})
	}
}

func (l *Limiter) Stats() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[string]int, len(l.buckets))
	for tier, partition := range l.buckets {
		stats[string(tier)] = len(partition)
	}

	return stats
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
}
