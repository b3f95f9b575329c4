package presence

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

func newTestRegistry() (*Registry, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return NewRegistry(geo.NewIndex(), store, slog.Default()), store
}

func heartbeat(id string, lat, lon float64) models.PresenceUpdate {
	return models.PresenceUpdate{DriverID: id, Lat: lat, Lon: lon, ConnID: "conn-" + id}
}

func TestUpdateMarksOnlineAndIndexes(t *testing.T) {
	r, store := newTestRegistry()
	ctx := context.Background()

	healed, err := r.Update(ctx, heartbeat("d1", 12.90, 77.60))
	if err != nil {
		t.Fatal(err)
	}
	if healed != "" {
		t.Fatalf("unexpected self-heal: %s", healed)
	}
	d, err := store.GetDriver(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Online || d.Loc.Lat != 12.90 {
		t.Fatalf("driver not updated: %+v", d)
	}

	cands, err := r.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 1000, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].ID != "d1" {
		t.Fatalf("expected d1 as candidate, got %v", cands)
	}
}

func TestFindCandidatesSkipsBusyAndExcluded(t *testing.T) {
	r, store := newTestRegistry()
	ctx := context.Background()

	for _, id := range []string{"free", "busy", "skip"} {
		if _, err := r.Update(ctx, heartbeat(id, 12.90, 77.60)); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.CreateRide(ctx, &models.Ride{ID: "r1", RiderID: "u1", Status: models.StatusRequested, CreatedAt: time.Now()})
	if won, _ := store.AcceptRide(ctx, "r1", "busy"); !won {
		t.Fatal("setup: accept failed")
	}

	cands, err := r.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 1000, map[string]bool{"skip": true}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].ID != "free" {
		t.Fatalf("expected only free driver, got %v", cands)
	}
}

func TestFindCandidatesRadiusBound(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	// ~5.6 km north of the query point
	if _, err := r.Update(ctx, heartbeat("far", 12.95, 77.60)); err != nil {
		t.Fatal(err)
	}

	inner, _ := r.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 5000, nil, 10)
	if len(inner) != 0 {
		t.Fatalf("driver leaked into inner radius: %v", inner)
	}
	outer, _ := r.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 10000, nil, 10)
	if len(outer) != 1 {
		t.Fatalf("driver missing from outer radius: %v", outer)
	}
}

func TestIdleHeartbeatSelfHeals(t *testing.T) {
	r, store := newTestRegistry()
	ctx := context.Background()

	if _, err := r.Update(ctx, heartbeat("d1", 12.90, 77.60)); err != nil {
		t.Fatal(err)
	}
	_ = store.CreateRide(ctx, &models.Ride{ID: "r1", RiderID: "u1", Status: models.StatusRequested, CreatedAt: time.Now()})
	if won, _ := store.AcceptRide(ctx, "r1", "d1"); !won {
		t.Fatal("setup: accept failed")
	}

	// on-ride heartbeat must not heal
	upd := heartbeat("d1", 12.91, 77.61)
	upd.RideID = "r1"
	healed, err := r.Update(ctx, upd)
	if err != nil || healed != "" {
		t.Fatalf("on-ride heartbeat healed: %q %v", healed, err)
	}

	// idle heartbeat heals the stale ride
	healed, err = r.Update(ctx, heartbeat("d1", 12.92, 77.62))
	if err != nil {
		t.Fatal(err)
	}
	if healed != "r1" {
		t.Fatalf("expected r1 healed, got %q", healed)
	}
	got, _ := store.GetRide(ctx, "r1")
	if got.Status != models.StatusCancelled || got.DriverID != "" {
		t.Fatalf("ride not force-cancelled: %+v", got)
	}

	// driver is a candidate again
	cands, _ := r.FindCandidates(ctx, models.Coord{Lat: 12.92, Lon: 77.62}, 1000, nil, 10)
	if len(cands) != 1 {
		t.Fatalf("healed driver not free: %v", cands)
	}
}

func TestMarkOfflineUnknownHandle(t *testing.T) {
	r, _ := newTestRegistry()
	id, err := r.MarkOffline(context.Background(), "ghost")
	if err != nil || id != "" {
		t.Fatalf("expected no-op, got %q %v", id, err)
	}
}

func TestMarkOfflineRemovesCandidate(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	if _, err := r.Update(ctx, heartbeat("d1", 12.90, 77.60)); err != nil {
		t.Fatal(err)
	}
	id, err := r.MarkOffline(ctx, "conn-d1")
	if err != nil || id != "d1" {
		t.Fatalf("expected d1 offline, got %q %v", id, err)
	}
	cands, _ := r.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 1000, nil, 10)
	if len(cands) != 0 {
		t.Fatalf("offline driver still a candidate: %v", cands)
	}
}
