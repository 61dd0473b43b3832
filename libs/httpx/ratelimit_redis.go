package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every service
// instance that talks to the same Redis. Windows are aligned to wall clock
// multiples of the window length.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// Returns {count, remaining ttl in ms} for the window key.
var redisWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

type RateDecision struct {
	Allowed   bool
	Remaining int
	Reset     time.Duration
}

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 600
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "seqlog:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Allow counts one request for client in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, client string) (RateDecision, error) {
	bucket := rl.now().UnixMilli() / rl.window.Milliseconds()
	key := fmt.Sprintf("%s:%s:%d", rl.prefix, client, bucket)

	res, err := redisWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateDecision{}, err
	}
	if len(res) != 2 {
		return RateDecision{}, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	count, ttl := res[0], res[1]
	if ttl < 0 {
		ttl = rl.window.Milliseconds()
	}
	return RateDecision{
		Allowed:   count <= int64(rl.limit),
		Remaining: max(rl.limit-int(count), 0),
		Reset:     time.Duration(ttl) * time.Millisecond,
	}, nil
}

// Middleware limits requests using one of methods, or every request when
// methods is empty. With failOpen a Redis error lets the request through.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool, methods ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(methods) > 0 && !slices.Contains(methods, r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			d, err := rl.Allow(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("redis rate limiter error", "err", err, "request_id", RequestIDFromContext(r.Context()))
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retry := max(int((d.Reset+time.Second-1)/time.Second), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
