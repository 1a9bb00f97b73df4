package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisIndex keeps captain positions in a Redis GEO set. Because GEO members
// have no per-member TTL, each upsert also refreshes a companion key with the
// staleness bound; a query only returns members whose companion key still
// exists. The GEO member itself is left behind and cleaned up lazily.
type RedisIndex struct {
	client    *redis.Client
	key       string
	staleness time.Duration
}

func NewRedisIndex(client *redis.Client, key string, staleness time.Duration) *RedisIndex {
	return &RedisIndex{client: client, key: key, staleness: staleness}
}

func (r *RedisIndex) Upsert(ctx context.Context, captainID string, c models.Coord) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: c.Lng,
		Latitude:  c.Lat,
		Name:      captainID,
	}).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, r.seenKey(captainID), "1", r.staleness).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, center models.Coord, radiusMiles float64) ([]models.Candidate, error) {
	locs, err := r.client.GeoRadius(ctx, r.key, center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusMiles,
		Unit:      "mi",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, len(locs))
	for _, loc := range locs {
		fresh, err := r.client.Exists(ctx, r.seenKey(loc.Name)).Result()
		if err != nil {
			return nil, err
		}
		if fresh == 0 {
			// expired entry, evict the stale GEO member on the way past
			_ = r.client.ZRem(ctx, r.key, loc.Name).Err()
			continue
		}
		out = append(out, models.Candidate{
			CaptainID: loc.Name,
			Coord:     models.Coord{Lat: loc.Latitude, Lng: loc.Longitude},
		})
	}
	return out, nil
}

func (r *RedisIndex) Remove(ctx context.Context, captainID string) error {
	if err := r.client.ZRem(ctx, r.key, captainID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, r.seenKey(captainID)).Err()
}

func (r *RedisIndex) seenKey(id string) string { return "captain:seen:" + id }
