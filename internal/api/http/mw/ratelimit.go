package mw

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"

	"ratepath/internal/config"
	"ratepath/internal/security"
	"ratepath/internal/stores/redis"
)

// Limit by two dimension: client IP and JWT subject if present.
// Buckets live in redis so all replicas share the same state.
type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *redis.Client
	Verifier *security.RS256Verifier // not necessarily
}

func NewRateLimit(cfg *config.RateLimitConfig, rdb *redis.Client, verifier *security.RS256Verifier) *RateLimitMiddleware {
	if cfg == nil {
		panic("rate limit config cannot be nil")
	}
	if rdb == nil {
		panic("rate limit redis client cannot be nil")
	}

	// sane defaults
	if cfg.ByJWT.TTL == 0 {
		cfg.ByJWT.TTL = 2 * time.Minute
	}
	if cfg.ByIP.TTL == 0 {
		cfg.ByIP.TTL = 2 * time.Minute
	}

	return &RateLimitMiddleware{Cfg: cfg, Rdb: rdb, Verifier: verifier}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		// by ip
		ip := extractClientIP(r, m.Cfg.TrustedProxiesList)
		okIP, leftIP := m.allow(ctx, "rl:ip:"+ip, now, m.Cfg.ByIP)

		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.Cfg.ByIP.Burst))
		w.Header().Set("X-RateLimit-Remaining-IP", strconv.Itoa(int(leftIP)))

		// by JWT if exists/valid
		okJWT := true

		sub := subjectFromContext(r)
		if sub == "" && m.Verifier != nil {
			// try to parse ourselves
			if cl, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
				if rc, ok := cl.(*jwt.RegisteredClaims); ok && rc.Subject != "" {
					sub = rc.Subject
				}
			}
		}
		if sub != "" {
			var leftJWT float64
			okJWT, leftJWT = m.allow(ctx, "rl:jwt:"+sub, now, m.Cfg.ByJWT)

			w.Header().Set("X-RateLimit-Limit-JWT", strconv.Itoa(m.Cfg.ByJWT.Burst))
			w.Header().Set("X-RateLimit-Remaining-JWT", strconv.Itoa(int(leftJWT)))
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", strconv.Itoa(m.calculateRetryAfter(okIP, okJWT)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func subjectFromContext(r *http.Request) string {
	if v := r.Context().Value(claimsCtxKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}

	return ""
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = goredis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

-- read state
local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

-- replenish
if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tokens}
`)

func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, float64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Result()
	if err != nil { // if failure then don't crash
		return true, 0
	}

	arr, ok := res.([]any)
	if !ok || len(arr) < 2 {
		return false, 0
	}

	// redis truncates lua numbers to integer replies, keep both cases
	return asFloat(arr[0]) == 1, asFloat(arr[1])
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}

	return 0
}

// The slowest exceeded bucket defines how long to wait for one token
func (m *RateLimitMiddleware) calculateRetryAfter(okIP, okJWT bool) int {
	var wait float64

	if !okIP {
		wait = math.Max(wait, secondsPerToken(m.Cfg.ByIP.RefillPerSec))
	}
	if !okJWT {
		wait = math.Max(wait, secondsPerToken(m.Cfg.ByJWT.RefillPerSec))
	}

	retry := int(math.Ceil(wait))
	if retry < 1 {
		retry = 1
	}

	return retry
}

func secondsPerToken(refillPerSec int) float64 {
	if refillPerSec <= 0 {
		return 1
	}

	return 1 / float64(refillPerSec)
}

// Return user IP among the proxy IPs: take X-Forwarded-For, drop our own
// trusted proxies from the right edge, prefer the first public address
func extractClientIP(r *http.Request, trustedProxies []string) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := parseXFF(xff)

		for len(ips) > 0 && isTrusted(ips[len(ips)-1], trustedProxies) {
			ips = ips[:len(ips)-1]
		}

		for _, ip := range ips {
			if isPublicIP(ip) {
				return ip
			}
		}
		if len(ips) > 0 {
			return ips[0]
		}
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" && net.ParseIP(xrip) != nil {
		return xrip
	}

	return remoteAddrIP(r.RemoteAddr)
}

func parseXFF(xff string) []string {
	ips := []string{}

	for _, part := range strings.Split(xff, ",") {
		ip := strings.TrimSpace(part)
		if net.ParseIP(ip) != nil {
			ips = append(ips, ip)
		}
	}

	return ips
}

func remoteAddrIP(remoteAddr string) string {
	addr := strings.TrimSpace(remoteAddr)

	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	addr = strings.Trim(addr, "[]")
	if net.ParseIP(addr) == nil {
		return "unknown"
	}

	return addr
}

func isTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range trusted {
		if strings.Contains(t, "/") {
			if _, cidr, err := net.ParseCIDR(t); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if tip := net.ParseIP(t); tip != nil && tip.Equal(parsed) {
			return true
		}
	}

	return false
}

func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	return !(parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() || parsed.IsUnspecified())
}
