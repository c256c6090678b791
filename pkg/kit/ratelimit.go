package kit

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter allows limit requests per window for each client IP. The
// client is the peer address unless the peer is a trusted proxy.
type IPRateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	visitors  map[string]*visitor
	lastSweep time.Time
	proxies   []netip.Prefix
	now       func() time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{
		limit:    limit,
		window:   window,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// TrustProxies makes requests arriving from nets key on X-Forwarded-For:
// the rightmost hop outside nets is taken as the client.
func (l *IPRateLimiter) TrustProxies(nets ...netip.Prefix) *IPRateLimiter {
	l.proxies = append(l.proxies, nets...)
	return l
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.clientIP(r)) {
			w.Header().Set("Retry-After", retryAfter(l.window, l.limit))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether ip may proceed now and consumes one token if so.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.evict(now)
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		v = &visitor{limiter: rate.NewLimiter(every, l.limit)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evict drops visitors idle for longer than a full window; their bucket is full again anyway.
func (l *IPRateLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

func retryAfter(window time.Duration, limit int) string {
	secs := int((window / time.Duration(limit)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (l *IPRateLimiter) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		peer = host
	}
	if !l.trusted(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !l.trusted(hop) {
			return hop
		}
	}
	return peer
}

func (l *IPRateLimiter) trusted(ip string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
