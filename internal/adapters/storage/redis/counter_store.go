package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

//go:embed fixed_window.lua
var fixedWindowScript string

// CounterStore is a fixed-window counter shared across instances. The
// increment-and-expire cycle runs inside a Lua script, so concurrent
// increments on the same key are linearized by Redis itself.
type CounterStore struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		prefix: "rl:",
	}
}

func (s *CounterStore) IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (ports.CounterResult, error) {
	reply, err := s.script.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return ports.CounterResult{}, fmt.Errorf("%w: %v", domain.ErrCounterUnavailable, err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return ports.CounterResult{}, fmt.Errorf("%w: unexpected script reply", domain.ErrCounterUnavailable)
	}
	count, _ := values[0].(int64)
	ttlMs, _ := values[1].(int64)

	return ports.CounterResult{
		Count:   count,
		Allowed: count <= limit,
		ResetAt: now.Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}
