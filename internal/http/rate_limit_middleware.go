package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]rateState
	stopCh  chan struct{}
	once    sync.Once
}

type rateState struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		entries: make(map[string]rateState),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.entries[key]
	if !ok || now.After(state.windowEnd) {
		state = rateState{count: 1, windowEnd: now.Add(window)}
		rl.entries[key] = state
		return rateDecision{allowed: true, count: state.count, windowEnd: state.windowEnd}
	}
	if state.count >= limit {
		return rateDecision{allowed: false, count: state.count, windowEnd: state.windowEnd}
	}
	state.count++
	rl.entries[key] = state
	return rateDecision{allowed: true, count: state.count, windowEnd: state.windowEnd}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, state := range rl.entries {
		if now.After(state.windowEnd) {
			delete(rl.entries, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

// rateScope names whose requests share a counter on a route.
type rateScope string

const (
	scopeIP      rateScope = "ip"
	scopeAccount rateScope = "account"
)

// rateRule is the limit applied to one route. Every route keeps its own
// counters; traffic on one route never spends another route's budget.
type rateRule struct {
	route  string
	limit  int
	window time.Duration
	scope  rateScope
}

// bucket returns the counter key for req under rule, in the form
// "<route>|<scope>:<subject>". Account rules fall back to the client address
// when no session is attached.
func (rule rateRule) bucket(req *http.Request) (string, rateScope) {
	if rule.scope == scopeAccount {
		if info, ok := authInfoFromContext(req.Context()); ok && info.Claims.AccountID != "" {
			return rule.route + "|" + string(scopeAccount) + ":" + info.Claims.AccountID, scopeAccount
		}
	}
	return rule.route + "|" + string(scopeIP) + ":" + remoteHost(req), scopeIP
}

func (r *Router) limited(rule rateRule, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if rule.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key, scope := rule.bucket(req)
		decision := r.limiter.Allow(key, rule.limit, rule.window)
		r.applyRateHeaders(w, rule.limit, decision)
		if !decision.allowed {
			r.metrics.recordRateLimitHit(rule.route, string(scope))
			writeError(w, http.StatusTooManyRequests, "Too many requests, try again later")
			return
		}
		next(w, req)
	}
}

// ownerLimited authenticates the caller and then applies rule per account.
func (r *Router) ownerLimited(rule rateRule, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(rule, next))
}

func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return host
}
