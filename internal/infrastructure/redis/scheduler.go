package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const retryScheduleKey = "transactions:retry_schedule"

// Lua script that pops all due members atomically, so two scheduler loops
// never double-dispatch the same retry.
var popDueScript = redis.NewScript(`
	local due = redis.call("zrangebyscore", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
	if #due > 0 then
		redis.call("zrem", KEYS[1], unpack(due))
	end
	return due
`)

// RetryScheduler schedules delayed advance steps. Transient acquirer
// failures are retried on a timer here instead of blocking a worker in a
// sleep, so a crashed worker loses nothing: the schedule lives in Redis and
// the reconciliation sweeper backstops it.
type RetryScheduler struct {
	client *redis.Client
}

func NewRetryScheduler(client *redis.Client) *RetryScheduler {
	return &RetryScheduler{client: client}
}

// Schedule enqueues a transaction for re-advance at the given time.
func (s *RetryScheduler) Schedule(ctx context.Context, transactionID string, at time.Time) error {
	err := s.client.ZAdd(ctx, retryScheduleKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: transactionID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// PopDue removes and returns the transaction ids whose scheduled time has
// passed, up to limit.
func (s *RetryScheduler) PopDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	result, err := popDueScript.Run(ctx, s.client, []string{retryScheduleKey}, now.Unix(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop due retries: %w", err)
	}

	raw, ok := result.([]any)
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
