package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-league/internal/api/handler"
	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/metrics"
)

// --------------------------------------------------------------------------
// Request instrumentation
// --------------------------------------------------------------------------

// InstrumentMiddleware records request latency by route pattern, so
// /leagues/1/balance and /leagues/2/balance share one series.
func InstrumentMiddleware(m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPRequest(route, r.Method, status, time.Since(start))
		})
	}
}

// --------------------------------------------------------------------------
// Rate limiting (token bucket per caller)
// --------------------------------------------------------------------------

// maxTrackedCallers bounds the limiter map; idle buckets are dropped past it.
const maxTrackedCallers = 10000

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type callerLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*callerBucket
	limit      rate.Limit
	burst      int
	retryAfter string
	idle       time.Duration
}

func newCallerLimiter(requestsPerWindow int, window time.Duration) *callerLimiter {
	if requestsPerWindow < 1 {
		requestsPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	limit := rate.Limit(float64(requestsPerWindow) / window.Seconds())
	burst := requestsPerWindow / 2
	if burst < 1 {
		burst = 1
	}
	refill := math.Ceil(window.Seconds() / float64(requestsPerWindow))
	return &callerLimiter{
		buckets:    make(map[string]*callerBucket),
		limit:      limit,
		burst:      burst,
		retryAfter: strconv.Itoa(int(refill)),
		idle:       window,
	}
}

func (l *callerLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxTrackedCallers {
			l.prune(now)
		}
		b = &callerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *callerLimiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
}

// callerKey identifies the caller by user header when present, else by IP.
func callerKey(r *http.Request) string {
	if id := r.Header.Get(handler.HeaderUserID); id != "" {
		return "user:" + id
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

// RateLimitMiddleware limits each caller to requestsPerWindow per window.
func RateLimitMiddleware(requestsPerWindow int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newCallerLimiter(requestsPerWindow, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(callerKey(r), time.Now()) {
				w.Header().Set("Retry-After", limiter.retryAfter)
				respond.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
