package geo

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.2 km
	d := Haversine(12.0, 77.0, 13.0, 77.0)
	if d < 110000 || d > 112500 {
		t.Fatalf("unexpected distance: %f", d)
	}
}

func TestIndexNearbyRadiusAndOrder(t *testing.T) {
	g := NewIndex()
	ctx := context.Background()
	_ = g.Upsert(ctx, models.Driver{ID: "near", Loc: models.Coord{Lat: 12.901, Lon: 77.601}, Online: true})
	_ = g.Upsert(ctx, models.Driver{ID: "far", Loc: models.Coord{Lat: 12.94, Lon: 77.64}, Online: true})
	_ = g.Upsert(ctx, models.Driver{ID: "out", Loc: models.Coord{Lat: 13.5, Lon: 78.2}, Online: true})

	got, err := g.Nearby(ctx, 12.90, 77.60, 10000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "far" {
		t.Fatalf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].DistanceM <= 0 || got[0].DistanceM > got[1].DistanceM {
		t.Fatalf("distances not ascending: %f, %f", got[0].DistanceM, got[1].DistanceM)
	}
}

func TestIndexNearbyLimit(t *testing.T) {
	g := NewIndex()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = g.Upsert(ctx, models.Driver{ID: id, Loc: models.Coord{Lat: 1, Lon: 1}, Online: true})
	}
	got, _ := g.Nearby(ctx, 1, 1, 1000, 2)
	if len(got) != 2 {
		t.Fatalf("expected limit 2, got %d", len(got))
	}
}
