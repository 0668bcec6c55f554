// Package cache provides Redis-backed run coordination: per tenant+project
// run locks and transient run status for pollers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gapscan/gapscan/internal/models"
)

// lockTTL bounds how long a crashed run can hold its lock.
const lockTTL = 30 * time.Minute

// statusTTL keeps run status around long enough for pollers without growing
// the keyspace forever.
const statusTTL = 24 * time.Hour

// Client wraps the Redis connection used for coordination in server mode.
type Client struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient connects to Redis and verifies connectivity.
func NewClient(ctx context.Context, addr, password string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr missing")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger := slog.Default().With("component", "redis")
	logger.Info("redis client connected", "addr", addr)
	return &Client{client: client, logger: logger}, nil
}

func lockKey(tenantID, projectID string) string {
	return fmt.Sprintf("gapscan:runlock:%s:%s", tenantID, projectID)
}

// AcquireRunLock takes the per tenant+project run lock. Returns false when
// another run already holds it.
func (c *Client) AcquireRunLock(ctx context.Context, tenantID, projectID, runID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(tenantID, projectID), runID, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

// ReleaseRunLock drops the lock if this run still owns it.
func (c *Client) ReleaseRunLock(ctx context.Context, tenantID, projectID, runID string) error {
	key := lockKey(tenantID, projectID)
	holder, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read run lock: %w", err)
	}
	if holder != runID {
		c.logger.Warn("run lock held by another run, not releasing", "holder", holder, "run", runID)
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// PublishRunStatus stores a run record for cheap status polling.
func (c *Client) PublishRunStatus(ctx context.Context, run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run status: %w", err)
	}
	key := fmt.Sprintf("gapscan:run:%s", run.ID)
	if err := c.client.Set(ctx, key, data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish run status: %w", err)
	}
	return nil
}

// RunStatus fetches a published run record, or nil when absent.
func (c *Client) RunStatus(ctx context.Context, runID string) (*models.RunRecord, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("gapscan:run:%s", runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run status: %w", err)
	}

	var run models.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run status: %w", err)
	}
	return &run, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
