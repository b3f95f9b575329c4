package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Geo answers proximity queries over live driver positions. Nearby returns
// candidates ascending by geodesic distance, bounded by radius and limit.
type Geo interface {
	Upsert(ctx context.Context, d models.Driver) error
	Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.Candidate, error)
}

// Index is an in-memory Geo for tests and redis-less local runs.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

// naive scan; the redis implementation carries the real index
func (g *Index) Nearby(_ context.Context, lat, lon, radiusM float64, limit int) ([]models.Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]models.Candidate, 0, len(g.drivers))
	for _, d := range g.drivers {
		dist := Haversine(lat, lon, d.Loc.Lat, d.Loc.Lon)
		if dist > radiusM {
			continue
		}
		arr = append(arr, models.Candidate{Driver: d, DistanceM: dist})
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].DistanceM < arr[j].DistanceM })
	if limit > 0 && len(arr) > limit {
		arr = arr[:limit]
	}
	return arr, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
