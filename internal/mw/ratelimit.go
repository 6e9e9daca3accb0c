package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter 按客户端 IP 维护令牌桶，闲置条目定期回收。
type Limiter struct {
	mu    sync.Mutex
	perIP map[string]*ipLimiter
	rate  rate.Limit
	burst int
	ttl   time.Duration
	stop  chan struct{}
}

func NewLimiter(r rate.Limit, burst int, ttl time.Duration) *Limiter {
	l := &Limiter{
		perIP: make(map[string]*ipLimiter),
		rate:  r,
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go l.gc()
	return l
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.perIP[ip]
	if !ok {
		entry = &ipLimiter{lim: rate.NewLimiter(l.rate, l.burst)}
		l.perIP[ip] = entry
	}
	entry.seen = time.Now()
	return entry.lim.Allow()
}

func (l *Limiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.ttl)
			l.mu.Lock()
			for ip, entry := range l.perIP {
				if entry.seen.Before(cutoff) {
					delete(l.perIP, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop 停止 GC goroutine，用于优雅停服。
func (l *Limiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// RateLimit 返回一个基于客户端 IP 的令牌桶限速中间件。
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	l := NewLimiter(r, burst, 2*time.Minute)
	return func(c *gin.Context) {
		if !l.allow(clientIP(c.Request.RemoteAddr)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
