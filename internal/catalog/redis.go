package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/pkg/types"
)

const (
	// Key patterns for Redis storage
	agentKeyPrefix = "catalog:agent:"
	agentIndexKey  = "catalog:agents"
)

// RedisCatalog implements Catalog using Redis for persistence.
type RedisCatalog struct {
	client *redis.Client
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCatalog creates a Redis-backed catalog.
func NewRedisCatalog(cfg *RedisConfig) (*RedisCatalog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	client.AddHook(metrics.RedisHook{Store: "redis_catalog"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCatalog{client: client}, nil
}

// NewRedisCatalogFromClient creates a catalog from an existing Redis client.
func NewRedisCatalogFromClient(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{client: client}
}

func agentKey(id string) string {
	return agentKeyPrefix + id
}

// Create lists a new agent. SETNX guards against concurrent creates.
func (c *RedisCatalog) Create(ctx context.Context, req *CreateAgentRequest) (*types.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	agent := newAgent(req, time.Now().UTC())
	data, err := json.Marshal(agent)
	if err != nil {
		return nil, fmt.Errorf("marshal agent: %w", err)
	}

	ok, err := c.client.SetNX(ctx, agentKey(req.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	if !ok {
		return nil, ErrAgentExists
	}
	if err := c.client.SAdd(ctx, agentIndexKey, req.ID).Err(); err != nil {
		return nil, fmt.Errorf("index agent: %w", err)
	}

	return agent, nil
}

// Get retrieves an agent by ID.
func (c *RedisCatalog) Get(ctx context.Context, id string) (*types.Agent, error) {
	data, err := c.client.Get(ctx, agentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}

	var agent types.Agent
	if err := json.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("unmarshal agent: %w", err)
	}
	return &agent, nil
}

// Update modifies an existing agent.
func (c *RedisCatalog) Update(ctx context.Context, id string, req *UpdateAgentRequest) (*types.Agent, error) {
	agent, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpdate(agent, req, time.Now().UTC())

	data, err := json.Marshal(agent)
	if err != nil {
		return nil, fmt.Errorf("marshal agent: %w", err)
	}
	if err := c.client.Set(ctx, agentKey(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return agent, nil
}

// Delete removes an agent.
func (c *RedisCatalog) Delete(ctx context.Context, id string) error {
	pipe := c.client.TxPipeline()
	del := pipe.Del(ctx, agentKey(id))
	pipe.SRem(ctx, agentIndexKey, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if del.Val() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// List returns agents matching the options.
func (c *RedisCatalog) List(ctx context.Context, opts *ListOptions) ([]*types.Agent, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	all, err := c.all(ctx)
	if err != nil {
		return nil, err
	}

	agents := make([]*types.Agent, 0, len(all))
	for _, agent := range all {
		if matches(agent, opts) {
			agents = append(agents, agent)
		}
	}
	return paginate(agents, opts), nil
}

// Exists checks if an agent with the given ID exists.
func (c *RedisCatalog) Exists(ctx context.Context, id string) (bool, error) {
	n, err := c.client.Exists(ctx, agentKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return n > 0, nil
}

// Categories returns the default categories plus any in use.
func (c *RedisCatalog) Categories(ctx context.Context) ([]string, error) {
	all, err := c.all(ctx)
	if err != nil {
		return nil, err
	}
	return mergeCategories(all), nil
}

// Close releases Redis connection resources.
func (c *RedisCatalog) Close() error {
	return c.client.Close()
}

// all loads every indexed agent with a single MGET.
func (c *RedisCatalog) all(ctx context.Context) ([]*types.Agent, error) {
	ids, err := c.client.SMembers(ctx, agentIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list agent ids: %w", err)
	}
	if len(ids) == 0 {
		return []*types.Agent{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = agentKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	agents := make([]*types.Agent, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Clean up stale index entry
			c.client.SRem(ctx, agentIndexKey, ids[i])
			continue
		}
		var agent types.Agent
		if err := json.Unmarshal([]byte(s), &agent); err != nil {
			return nil, fmt.Errorf("unmarshal agent %s: %w", ids[i], err)
		}
		agents = append(agents, &agent)
	}
	return agents, nil
}

var _ Catalog = (*RedisCatalog)(nil)
