package eta

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Client is the routing backend used for real road estimates.
type Client interface {
	Route(ctx context.Context, from, to models.Coord) (Route, error)
}

// Route is a raw routing answer before presentation.
type Route struct {
	DistanceM float64
	DurationS float64
	Polyline  string
	Resolved  models.Coord
}

// Service produces rider-facing estimates. A failing routing backend
// degrades to a haversine distance and speed-based duration instead of
// blocking dispatch.
type Service struct {
	Client   Client // nil means always degrade
	Cache    *Cache
	SpeedMps float64
	Log      *slog.Logger
}

func NewService(client Client, cache *Cache, speedMps float64, log *slog.Logger) *Service {
	return &Service{Client: client, Cache: cache, SpeedMps: speedMps, Log: log}
}

func (s *Service) Estimate(ctx context.Context, from, to models.Coord) models.Estimate {
	if s.Cache != nil {
		if est, ok := s.Cache.Get(from, to); ok {
			return est
		}
	}
	if s.Client != nil {
		if rt, err := s.Client.Route(ctx, from, to); err == nil {
			est := models.Estimate{
				DistanceM:    rt.DistanceM,
				DurationText: durationText(rt.DurationS),
				Polyline:     rt.Polyline,
				Resolved:     rt.Resolved,
			}
			if s.Cache != nil {
				s.Cache.Set(from, to, est)
			}
			return est
		} else if s.Log != nil {
			s.Log.Warn("routing provider failed, degrading", "error", err)
		}
	}
	return s.fallback(from, to)
}

// fallback keeps the ride flow alive with straight-line numbers and no
// path; Degraded tells the client what it is looking at.
func (s *Service) fallback(from, to models.Coord) models.Estimate {
	speed := s.SpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	d := haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return models.Estimate{
		DistanceM:    d,
		DurationText: durationText(d / speed),
		Resolved:     to,
		Degraded:     true,
	}
}

func durationText(seconds float64) string {
	mins := int(math.Round(seconds / 60))
	if mins < 1 {
		return "under a minute"
	}
	if mins == 1 {
		return "1 min"
	}
	if mins < 60 {
		return fmt.Sprintf("%d mins", mins)
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}

// Cache is a tiny in-memory TTL cache for estimates keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  models.Estimate
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func (c *Cache) Get(a, b models.Coord) (models.Estimate, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.Estimate{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.Estimate{}, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v models.Estimate) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// local haversine to avoid importing geo here
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
