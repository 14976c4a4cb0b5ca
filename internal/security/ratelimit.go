package security

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket limiter.
type RateLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	limit   int
	window  time.Duration
	every   rate.Limit
	burst   int

	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained number of requests allowed per window
	RequestsPerWindow int
	// WindowDuration is the duration of the rate limit window
	WindowDuration time.Duration
	// BurstMax is the maximum number of requests allowed back to back
	BurstMax int
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 120,         // 120 requests
		WindowDuration:    time.Minute, // per minute
		BurstMax:          20,          // burst of 20
	}
}

// NewRateLimiter creates a limiter and starts its idle-client sweeper.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.RequestsPerWindow < 1 {
		config.RequestsPerWindow = def.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = def.WindowDuration
	}
	if config.BurstMax < 1 {
		config.BurstMax = def.BurstMax
	}

	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   config.RequestsPerWindow,
		window:  config.WindowDuration,
		every:   rate.Limit(float64(config.RequestsPerWindow) / config.WindowDuration.Seconds()),
		burst:   config.BurstMax,
		stop:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// RateLimitInfo contains rate limit information for response headers
type RateLimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Allow consumes one request for key and reports whether it was allowed.
func (rl *RateLimiter) Allow(key string) (RateLimitInfo, bool) {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) (RateLimitInfo, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.clients[key]
	if !exists {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	ok := c.limiter.AllowN(now, 1)
	tokens := c.limiter.TokensAt(now)

	info := RateLimitInfo{
		Limit:     rl.limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(rl.refill(float64(rl.burst) - tokens)),
	}
	if !ok {
		info.RetryAfter = rl.refill(1 - tokens)
	}
	return info, ok
}

// refill returns how long the bucket needs to gain n tokens.
func (rl *RateLimiter) refill(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n / float64(rl.every) * float64(time.Second))
}

// Reset forgets the bucket of a specific key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Close stops the sweeper.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanup periodically removes clients idle for two windows
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now)
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window * 2)
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}
