package web

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// ipLimiterIdle is how long an idle client's limiter is kept
const ipLimiterIdle = 10 * time.Minute

// ipRateLimiter manages per-IP rate limiters. Idle entries expire from the LRU.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	proxies  proxyList
}

// newIPRateLimiter creates a rate limiter that allows r events per second
// with the given burst size for each client IP
func newIPRateLimiter(r rate.Limit, burst, maxClients int, proxies proxyList) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, ipLimiterIdle),
		rate:     r,
		burst:    burst,
		proxies:  proxies,
	}
}

// getLimiter returns the rate limiter for the given IP, creating one if needed
func (rl *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	// re-adding refreshes the idle expiry
	rl.limiters.Add(ip, limiter)
	return limiter
}

// allow reports whether the client may make another request now
func (rl *ipRateLimiter) allow(r *http.Request) bool {
	return rl.getLimiter(rl.proxies.clientIP(r)).Allow()
}

// proxyList holds the reverse proxies whose forwarding headers are trusted
type proxyList []netip.Prefix

// parseProxies parses IP addresses and CIDR ranges
func parseProxies(entries []string) (proxyList, error) {
	proxies := make(proxyList, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

func (p proxyList) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address. Forwarding headers are only read when
// the peer is a trusted proxy, and X-Forwarded-For is walked from the right
// past any further trusted hops.
func (p proxyList) clientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !p.trusts(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !p.trusts(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func remoteHost(r *http.Request) string {
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr().Unmap().String()
	}
	return r.RemoteAddr
}
