package dispatch

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisEligibility reads the captain status the account system maintains in
// a per-captain hash. Missing metadata counts as ineligible.
type RedisEligibility struct {
	client *redis.Client
}

func NewRedisEligibility(client *redis.Client) *RedisEligibility {
	return &RedisEligibility{client: client}
}

func (e *RedisEligibility) Active(ctx context.Context, captainID string) (bool, error) {
	status, err := e.client.HGet(ctx, "captain:meta:"+captainID, "status").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == "active", nil
}

// AllowAll treats every captain as eligible; used when no account backend is
// wired (local runs, tests).
type AllowAll struct{}

func (AllowAll) Active(context.Context, string) (bool, error) { return true, nil }

// RedisRiderDirectory reads rider display fields from the hash the account
// system maintains. Lookup failures yield an empty profile.
type RedisRiderDirectory struct {
	client *redis.Client
}

func NewRedisRiderDirectory(client *redis.Client) *RedisRiderDirectory {
	return &RedisRiderDirectory{client: client}
}

func (d *RedisRiderDirectory) Profile(ctx context.Context, riderID string) (models.RiderProfile, error) {
	m, err := d.client.HGetAll(ctx, "rider:meta:"+riderID).Result()
	if err != nil {
		return models.RiderProfile{}, err
	}
	return models.RiderProfile{Name: m["name"], Photo: m["photo"]}, nil
}
