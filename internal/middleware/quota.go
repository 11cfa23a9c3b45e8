package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Quota enforces a per-user daily generation limit with a redis counter that
// expires at the next UTC midnight. The configured limit applies to the free
// tier; paid plans are uncapped. A redis outage fails open: generation is the
// product, quota is a guardrail.
type Quota struct {
	rdb   *redis.Client
	limit int
}

func NewQuota(rdb *redis.Client, limit int) *Quota {
	return &Quota{rdb: rdb, limit: limit}
}

// limitFor maps the token's plan claim to a daily cap; zero means uncapped.
func (q *Quota) limitFor(plan string) int {
	if plan != "free" {
		return 0
	}
	return q.limit
}

func (q *Quota) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := q.limitFor(GetPlan(r.Context()))
		if limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		userID := GetUserID(r.Context())
		key := fmt.Sprintf("quota:gen:%s:%s", userID.String(), time.Now().UTC().Format("2006-01-02"))

		count, err := q.rdb.Incr(r.Context(), key).Result()
		if err != nil {
			log.Printf("quota check failed for %s: %v", userID, err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			now := time.Now().UTC()
			midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			q.rdb.Expire(r.Context(), key, midnight.Sub(now))
		}

		if int(count) > limit {
			writeError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
				fmt.Sprintf("Daily generation limit of %d reached. Try again tomorrow.", limit), r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
