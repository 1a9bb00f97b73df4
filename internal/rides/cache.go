package rides

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// Cache mirrors ride records into Redis so read-heavy callers (status
// polling, event payloads) do not hit the system of record. The OTP is not
// serialized, so authoritative operations always go through the Store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Put(ctx context.Context, r *models.Ride) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rideKey(r.ID), b, c.ttl).Err()
}

func (c *Cache) Get(ctx context.Context, id string) (*models.Ride, bool) {
	b, err := c.client.Get(ctx, rideKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var r models.Ride
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func rideKey(id string) string { return "ride:" + id }
