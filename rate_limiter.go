package wikimcp

import (
	"sync"
	"sync/atomic"
	"time"
)

// Limiter gates outbound upstream calls.
type Limiter interface {
	Allow() bool
}

// RateLimiter is a lock-free token bucket. Tokens refill at a fixed interval
// up to the bucket size; each allowed call consumes one token.
type RateLimiter struct {
	maxTokens  int64
	tokens     int64
	refillRate time.Duration
	lastRefill int64 // unix nanos
}

// NewRateLimiter creates a full bucket of maxTokens that regains one token
// every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		maxTokens:  int64(maxTokens),
		tokens:     int64(maxTokens),
		refillRate: refillRate,
		lastRefill: time.Now().UnixNano(),
	}
}

// Allow reports whether a call may proceed, consuming a token when it does.
func (rl *RateLimiter) Allow() bool {
	rl.refillTokens()
	return rl.consumeToken()
}

// Tokens returns the number of tokens currently available.
func (rl *RateLimiter) Tokens() int64 {
	rl.refillTokens()
	return atomic.LoadInt64(&rl.tokens)
}

// refillTokens credits tokens for the time elapsed since the last refill.
func (rl *RateLimiter) refillTokens() {
	now := time.Now().UnixNano()

	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		lastRefill := atomic.LoadInt64(&rl.lastRefill)

		elapsed := now - lastRefill
		tokensToAdd := int64(0)
		if rl.refillRate > 0 {
			tokensToAdd = elapsed / int64(rl.refillRate)
		}

		if tokensToAdd == 0 {
			break
		}

		newTokens := currentTokens + tokensToAdd
		if newTokens > rl.maxTokens {
			newTokens = rl.maxTokens
		}

		// Advance lastRefill by whole refill intervals so partial elapsed
		// time keeps accruing toward the next token.
		newLastRefill := lastRefill + (tokensToAdd * int64(rl.refillRate))

		if !atomic.CompareAndSwapInt64(&rl.lastRefill, lastRefill, newLastRefill) {
			continue
		}

		atomic.StoreInt64(&rl.tokens, newTokens)
		break
	}
}

// consumeToken attempts to take one token.
func (rl *RateLimiter) consumeToken() bool {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		if currentTokens <= 0 {
			return false
		}

		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, currentTokens-1) {
			return true
		}
	}
}

// RateLimiterRegistry maps mirror base URLs to dedicated limiters with a
// shared fallback for mirrors without an override. A nil fallback means
// unregistered mirrors are not limited.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	fallback Limiter
}

// NewRateLimiterRegistry creates a registry backed by the given fallback.
func NewRateLimiterRegistry(fallback Limiter) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]Limiter),
		fallback: fallback,
	}
}

// Register installs a dedicated limiter for a mirror.
func (r *RateLimiterRegistry) Register(mirror string, limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[mirror] = limiter
}

// SetFallback replaces the shared limiter without touching per-mirror
// overrides.
func (r *RateLimiterRegistry) SetFallback(limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = limiter
}

// Get returns the limiter governing mirror and the key it was resolved
// under: the mirror itself for an override, "default" for the fallback.
func (r *RateLimiterRegistry) Get(mirror string) (Limiter, string) {
	r.mu.RLock()
	limiter, exists := r.limiters[mirror]
	fallback := r.fallback
	r.mu.RUnlock()

	if exists {
		return limiter, mirror
	}
	if fallback != nil {
		return fallback, "default"
	}
	return nil, mirror
}

// Allow checks the limiter governing mirror. Mirrors without a limiter are
// always allowed.
func (r *RateLimiterRegistry) Allow(mirror string) (bool, string) {
	limiter, key := r.Get(mirror)
	if limiter == nil {
		return true, key
	}
	return limiter.Allow(), key
}
