package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/agentmarket/internal/metrics"
)

const (
	flowKeyPrefix = "flow:"
	flowListKey   = "flows"

	// maxTxRetries bounds optimistic-lock retries on concurrent writes.
	maxTxRetries = 3
)

// RedisStore implements FlowStore using Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed flow store.
func NewRedisStore(opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)
	client.AddHook(metrics.RedisHook{Store: "redis_flows"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store using an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) flowKey(id string) string {
	return flowKeyPrefix + id
}

// Create saves a new flow.
func (s *RedisStore) Create(ctx context.Context, req *CreateFlowRequest) (*Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	flow := newFlow(id, req, time.Now().UTC())
	data, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.flowKey(id), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("save flow: %w", err)
	}
	if !ok {
		return nil, ErrFlowExists
	}
	if err := s.client.SAdd(ctx, flowListKey, id).Err(); err != nil {
		return nil, fmt.Errorf("index flow: %w", err)
	}

	return flow, nil
}

// Get retrieves a flow by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*Flow, error) {
	return s.get(ctx, s.client, id)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*Flow, error) {
	data, err := c.Get(ctx, s.flowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &flow, nil
}

// Update modifies an existing flow.
func (s *RedisStore) Update(ctx context.Context, id string, req *UpdateFlowRequest) (*Flow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(f *Flow) {
		applyUpdate(f, req, time.Now().UTC())
	})
}

// ToggleFavorite flips the favorite flag.
func (s *RedisStore) ToggleFavorite(ctx context.Context, id string) (*Flow, error) {
	return s.mutate(ctx, id, func(f *Flow) {
		f.Favorite = !f.Favorite
	})
}

// MarkRun records the time of the latest run.
func (s *RedisStore) MarkRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.mutate(ctx, id, func(f *Flow) {
		t := at.UTC()
		f.LastRun = &t
	})
	return err
}

// mutate applies fn to the stored flow under WATCH so concurrent writers
// do not lose updates.
func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*Flow)) (*Flow, error) {
	key := s.flowKey(id)
	var out *Flow

	txf := func(tx *redis.Tx) error {
		flow, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(flow)

		data, err := json.Marshal(flow)
		if err != nil {
			return fmt.Errorf("marshal flow: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			out = flow
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("save flow %s: too much contention", id)
}

// Delete removes a flow.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.flowKey(id))
	pipe.SRem(ctx, flowListKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if del.Val() == 0 {
		return ErrFlowNotFound
	}
	return nil
}

// List returns all flows matching the options.
func (s *RedisStore) List(ctx context.Context, opts *ListOptions) ([]*Flow, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	ids, err := s.client.SMembers(ctx, flowListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list flow ids: %w", err)
	}

	flows := make([]*Flow, 0, len(ids))
	for _, id := range ids {
		flow, err := s.Get(ctx, id)
		if errors.Is(err, ErrFlowNotFound) {
			// Stale reference, clean up
			s.client.SRem(ctx, flowListKey, id)
			continue
		}
		if err != nil {
			continue // Skip on error
		}
		if matches(flow, opts) {
			flows = append(flows, flow)
		}
	}

	return paginate(flows, opts), nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ FlowStore = (*RedisStore)(nil)
