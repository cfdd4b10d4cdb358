package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	client := redis.NewClient(opt)

	return &Client{client}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// CacheRegionHealth stores the debounced status snapshot with a short TTL so
// external consumers (and the API fast path) read a bounded-staleness view.
func (c *Client) CacheRegionHealth(ctx context.Context, status core.HealthStatus) error {
	key := fmt.Sprintf("dr:health:%s", status.RegionID)
	return c.SetJSON(ctx, key, status, 5*time.Minute)
}

func (c *Client) GetCachedRegionHealth(ctx context.Context, regionID string) (*core.HealthStatus, error) {
	key := fmt.Sprintf("dr:health:%s", regionID)
	var status core.HealthStatus
	if err := c.GetJSON(ctx, key, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
