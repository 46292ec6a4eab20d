package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"escrowvault/observability"
)

const (
	// clientIdleTTL is how long an idle client keeps its bucket.
	clientIdleTTL = 5 * time.Minute
	// sweepInterval spaces out idle-bucket sweeps.
	sweepInterval = time.Minute
)

// RateLimit is the budget of one route group per client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

func (l RateLimit) enabled() bool { return l.RequestsPerMinute > 0 }

func (l RateLimit) newLimiter() *rate.Limiter {
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.RequestsPerMinute/60), burst)
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// routeGroup holds the buckets of every client of one named group.
type routeGroup struct {
	name    string
	limit   RateLimit
	clients map[string]*clientBucket
}

// RateLimiter keeps a token bucket per client for each named route group.
// Groups are independent: exhausting one leaves the others untouched.
type RateLimiter struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	groups    map[string]*routeGroup
	lastSweep time.Time
}

// NewRateLimiter builds a limiter with one group per entry of limits. Groups
// with a non-positive rate are not limited.
func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make(map[string]*routeGroup, len(limits))
	for name, limit := range limits {
		if !limit.enabled() {
			continue
		}
		groups[name] = &routeGroup{name: name, limit: limit, clients: make(map[string]*clientBucket)}
	}
	return &RateLimiter{logger: logger, now: time.Now, groups: groups}
}

// Middleware limits requests of the named group. Unknown groups pass through.
func (r *RateLimiter) Middleware(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			client := clientID(req)
			wait, limited := r.admit(group, client)
			if !limited {
				next.ServeHTTP(w, req)
				return
			}
			observability.API().RecordThrottle(group, "rate_limit")
			r.logger.Debug("request throttled",
				slog.String("group", group),
				slog.String("client", client),
				slog.Duration("retry_after", wait),
				slog.String("request_id", RequestIDFromContext(req.Context())))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

// admit takes a token for client in group. When none is available it reports
// how long until one will be.
func (r *RateLimiter) admit(group, client string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[group]
	if !ok {
		return 0, false
	}
	now := r.now()
	r.sweep(now)

	bucket, ok := g.clients[client]
	if !ok {
		bucket = &clientBucket{limiter: g.limit.newLimiter()}
		g.clients[client] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return time.Minute, true
	}
	if wait := reservation.DelayFrom(now); wait > 0 {
		reservation.CancelAt(now)
		return wait, true
	}
	return 0, false
}

// sweep drops buckets idle for clientIdleTTL. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < sweepInterval {
		return
	}
	r.lastSweep = now
	for _, g := range r.groups {
		for client, bucket := range g.clients {
			if now.Sub(bucket.lastSeen) > clientIdleTTL {
				delete(g.clients, client)
			}
		}
	}
}

// tracked returns the number of clients holding a bucket in group.
func (r *RateLimiter) tracked(group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[group]; ok {
		return len(g.clients)
	}
	return 0
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// clientID identifies the caller, preferring proxy headers over the socket
// address.
func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		first = strings.TrimSpace(first)
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
