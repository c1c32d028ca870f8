// Package counter keeps webhook delivery counters per provider and outcome.
package counter

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const deliveriesKey = "clienthub:counters:webhooks"

// Recorder counts webhook deliveries.
type Recorder interface {
	Add(ctx context.Context, provider, outcome string) error
	Snapshot(ctx context.Context) (map[string]int64, error)
}

func field(provider, outcome string) string {
	return provider + ":" + outcome
}

// Redis keeps the counters in one hash so every instance reports the same
// totals.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Add(ctx context.Context, provider, outcome string) error {
	return r.client.HIncrBy(ctx, deliveriesKey, field(provider, outcome), 1).Err()
}

func (r *Redis) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := r.client.HGetAll(ctx, deliveriesKey).Result()
	if errors.Is(err, redis.Nil) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset drops all counters.
func (r *Redis) Reset(ctx context.Context) error {
	return r.client.Del(ctx, deliveriesKey).Err()
}

// Memory is the single-process fallback.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemory() *Memory {
	return &Memory{counts: map[string]int64{}}
}

func (m *Memory) Add(_ context.Context, provider, outcome string) error {
	m.mu.Lock()
	m.counts[field(provider, outcome)]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Snapshot(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out, nil
}
