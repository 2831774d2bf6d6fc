// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an idle client's bucket is kept.
const limiterIdleTTL = 10 * time.Minute

// clientLimiter is a token bucket per client IP.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastPrune time.Time
	now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// newClientLimiter returns nil when perSecond is not positive.
func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = max(1, int(perSecond))
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastUsed) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastUsed = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !l.allow(client) {
			RateLimitedTotal.Inc()
			logger.Ctx(r.Context()).Debug().Str("client", client).Msg("rate limited")
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeError(w, r, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address. Forwarding headers are ignored since any LAN
// client could set them.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
