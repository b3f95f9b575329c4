package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands. Positions live in a
// single GEO set; per-driver metadata rides in a hash next to it.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

// NewRedisGeoWithClient is used by the consumer which owns its own client.
func NewRedisGeoWithClient(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"online":  strconv.FormatBool(d.Online),
		"heading": strconv.FormatFloat(d.Heading, 'f', -1, 64),
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.Candidate, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusM,
		Unit:      "m",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, len(res))
	for _, g := range res {
		c := models.Candidate{DistanceM: g.Dist}
		c.ID = g.Name
		c.Loc.Lat = g.Latitude
		c.Loc.Lon = g.Longitude
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			c.Online = m["online"] == "true"
			if v, ok := m["heading"]; ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					c.Heading = f
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func metaKey(id string) string { return "driver:meta:" + id }
