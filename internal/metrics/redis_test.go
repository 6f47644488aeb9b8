package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRedisHookProcess(t *testing.T) {
	ctx := context.Background()
	hook := RedisHook{Store: "test_redis"}

	tests := []struct {
		name   string
		err    error
		result string
	}{
		{"success", nil, "success"},
		{"missing key", redis.Nil, "success"},
		{"failure", errors.New("connection reset"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := StoreOperations.WithLabelValues("test_redis", "get", tt.result)
			before := counterValue(t, counter)

			process := hook.ProcessHook(func(ctx context.Context, cmd redis.Cmder) error {
				return tt.err
			})
			if err := process(ctx, redis.NewStringCmd(ctx, "get", "k")); !errors.Is(err, tt.err) {
				t.Fatalf("hook changed error: got %v, want %v", err, tt.err)
			}

			if got := counterValue(t, counter) - before; got != 1 {
				t.Errorf("counter delta = %v, want 1", got)
			}
		})
	}
}

func TestObserveStore(t *testing.T) {
	counter := StoreOperations.WithLabelValues("test_store", "put", "error")
	before := counterValue(t, counter)
	ObserveStore("test_store", "put", errors.New("boom"))
	if got := counterValue(t, counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}
