package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitPolicy struct {
	Enabled          bool
	WebhookPerMinute int
	ReadPerMinute    int

	// TrustedProxies lists IPs or CIDRs allowed to report the client address
	// through X-Forwarded-For. Entries that do not parse are ignored.
	TrustedProxies []string
}

// idleClientTTL bounds how long an unused per-client bucket is kept.
const idleClientTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientRateLimiter keeps one token bucket per action and client IP. Each
// bucket refills at the per-minute limit and bursts up to the same amount.
type clientRateLimiter struct {
	enabled bool
	limits  map[string]int
	trusted []netip.Prefix
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

func newClientRateLimiter(cfg RateLimitPolicy) *clientRateLimiter {
	return &clientRateLimiter{
		enabled: cfg.Enabled,
		limits: map[string]int{
			"webhook": cfg.WebhookPerMinute,
			"read":    cfg.ReadPerMinute,
		},
		trusted: parseTrustedProxies(cfg.TrustedProxies),
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientRateLimiter) Allow(r *http.Request, action string) bool {
	if l == nil || !l.enabled {
		return true
	}
	action = strings.TrimSpace(action)
	perMinute := l.limits[action]
	if perMinute <= 0 {
		return true
	}
	key := action + "|" + l.clientIP(r)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops idle buckets at most once per TTL. Callers hold l.mu.
func (l *clientRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleClientTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleClientTTL {
			delete(l.buckets, key)
		}
	}
}

func parseTrustedProxies(in []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(raw); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return out
}

func (l *clientRateLimiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP is the peer address, unless the peer is a trusted proxy. Then the
// X-Forwarded-For chain is walked from the right and the first hop that is
// not a trusted proxy is the client.
func (l *clientRateLimiter) clientIP(r *http.Request) string {
	peer := remoteAddrIP(r)
	if !l.isTrusted(peer) {
		return peer
	}
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff == "" {
		return peer
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !l.isTrusted(hop) {
			return hop
		}
	}
	return peer
}

func remoteAddrIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
