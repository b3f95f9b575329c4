package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/storage"
)

func seedRide(t *testing.T, store *storage.MemoryStore, id string, status models.RideStatus, driverID string) {
	t.Helper()
	r := &models.Ride{ID: id, RiderID: "u-" + id, Status: models.StatusRequested, CreatedAt: time.Now()}
	if err := store.CreateRide(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if status == models.StatusRequested {
		return
	}
	if won, err := store.AcceptRide(context.Background(), id, driverID); err != nil || !won {
		t.Fatalf("seed accept failed: %v", err)
	}
	if status != models.StatusAccepted {
		if _, err := store.UpdateStatus(context.Background(), id, status); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunCancelsAllBusyRides(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	seedRide(t, store, "r-accepted", models.StatusAccepted, "d1")
	seedRide(t, store, "r-arrived", models.StatusArrived, "d2")
	seedRide(t, store, "r-ontrip", models.StatusOnTrip, "d3")
	seedRide(t, store, "r-open", models.StatusRequested, "")
	seedRide(t, store, "r-done", models.StatusCompleted, "d4")

	n, err := New(store, slog.Default()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reconciled rides, got %d", n)
	}
	for _, id := range []string{"r-accepted", "r-arrived", "r-ontrip"} {
		r, _ := store.GetRide(ctx, id)
		if r.Status != models.StatusCancelled || r.DriverID != "" {
			t.Fatalf("%s not reconciled: %+v", id, r)
		}
	}
	// untouched rows
	if r, _ := store.GetRide(ctx, "r-open"); r.Status != models.StatusRequested {
		t.Fatalf("open request mutated: %s", r.Status)
	}
	if r, _ := store.GetRide(ctx, "r-done"); r.Status != models.StatusCompleted || r.DriverID != "d4" {
		t.Fatalf("completed ride mutated: %+v", r)
	}
}

func TestReconciledDriversBecomeCandidatesAgain(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	reg := presence.NewRegistry(geo.NewIndex(), store, slog.Default())
	if _, err := reg.Update(ctx, models.PresenceUpdate{DriverID: "d1", Lat: 12.90, Lon: 77.60, RideID: "r1", ConnID: "c1"}); err != nil {
		t.Fatal(err)
	}
	seedRide(t, store, "r1", models.StatusOnTrip, "d1")

	before, _ := reg.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 1000, nil, 10)
	if len(before) != 0 {
		t.Fatalf("busy driver leaked before reconcile: %v", before)
	}

	if _, err := New(store, slog.Default()).Run(ctx); err != nil {
		t.Fatal(err)
	}

	after, _ := reg.FindCandidates(ctx, models.Coord{Lat: 12.90, Lon: 77.60}, 1000, nil, 10)
	if len(after) != 1 || after[0].ID != "d1" {
		t.Fatalf("reconciled driver not free at last known location: %v", after)
	}
}

func TestRunEmptyLedger(t *testing.T) {
	n, err := New(storage.NewMemoryStore(), slog.Default()).Run(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected clean no-op, got %d %v", n, err)
	}
}
