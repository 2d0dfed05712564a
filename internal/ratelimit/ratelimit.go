package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/nicoplay/nicoplay/internal/httputil"
)

const (
	idleTTL       = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ClientKey charges requests to the client address.
func ClientKey(r *http.Request) string {
	return httputil.ClientIP(r)
}

// VideoKey charges requests to the client address and the {id} route
// parameter, so posting to one video does not drain the allowance for others.
func VideoKey(r *http.Request) string {
	return httputil.ClientIP(r) + "|" + chi.URLParam(r, "id")
}

type Option func(*Limiter)

func WithKey(fn KeyFunc) Option {
	return func(l *Limiter) { l.key = fn }
}

func WithClock(clock clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = clock }
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter is a token bucket per key. Idle buckets are swept on access.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64
	burst     float64
	key       KeyFunc
	clock     clockwork.Clock
	lastSweep time.Time
}

func NewLimiter(requestsPerSecond float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    requestsPerSecond,
		burst:   float64(burst),
		key:     ClientKey,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.clock.Now()
	return l
}

// allow takes a token for key. When none is left it reports how long until
// the next one is available.
func (l *Limiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	} else {
		b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate)
		b.lastSeen = now
	}

	if b.tokens < 1 {
		if l.rate <= 0 {
			return false, idleTTL
		}
		wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(l.key(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			httputil.WriteError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
