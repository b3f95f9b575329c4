// Package presence tracks live driver state: location, heading, connection
// handle and the online flag. It answers the proximity queries the dispatch
// engine searches over. Whether a driver is busy is never stored here; it
// is re-derived from the ledger on every query so a restart cannot corrupt
// matching.
package presence

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

type Registry struct {
	Geo   geo.Geo
	Store storage.RideStore
	Log   *slog.Logger
}

func NewRegistry(g geo.Geo, store storage.RideStore, log *slog.Logger) *Registry {
	return &Registry{Geo: g, Store: store, Log: log}
}

// Update applies a driver heartbeat: position, heading and push token are
// persisted and the driver is marked online. When the heartbeat is idle
// (no ride id) but the ledger still shows the driver mid-ride, the stale
// ride is force-cancelled; the freshest heartbeat is trusted over ledger
// state left behind by a crash. The healed ride id is returned so the
// caller can notify the affected rider.
func (r *Registry) Update(ctx context.Context, upd models.PresenceUpdate) (string, error) {
	d, err := r.Store.GetDriver(ctx, upd.DriverID)
	if errors.Is(err, storage.ErrNotFound) {
		d = &models.Driver{ID: upd.DriverID}
	} else if err != nil {
		return "", err
	}

	wasOnline := d.Online
	d.Loc = models.Coord{Lat: upd.Lat, Lon: upd.Lon}
	d.Heading = upd.Heading
	d.Online = true
	if upd.PushToken != "" {
		d.PushToken = upd.PushToken
	}
	if upd.ConnID != "" {
		d.ConnID = upd.ConnID
	}

	if err := r.Store.UpsertDriver(ctx, d); err != nil {
		return "", err
	}
	if err := r.Geo.Upsert(ctx, *d); err != nil {
		return "", err
	}
	if !wasOnline {
		observability.DriversOnline.Inc()
	}

	if upd.RideID != "" {
		return "", nil
	}
	return r.selfHeal(ctx, upd.DriverID)
}

// selfHeal force-cancels a ride the ledger believes this driver is on even
// though the driver just reported idle.
func (r *Registry) selfHeal(ctx context.Context, driverID string) (string, error) {
	active, err := r.Store.ActiveRideForDriver(ctx, driverID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if _, err := r.Store.UpdateStatus(ctx, active.ID, models.StatusCancelled); err != nil {
		return "", err
	}
	r.Log.Warn("self-heal cancelled stale ride",
		"ride_id", active.ID, "driver_id", driverID, "was_status", string(active.Status))
	return active.ID, nil
}

// MarkOffline flips the owning driver offline. Unknown handles are a
// silent no-op. The freed driver id (if any) is returned.
func (r *Registry) MarkOffline(ctx context.Context, connID string) (string, error) {
	id, err := r.Store.SetDriverOffline(ctx, connID)
	if err != nil || id == "" {
		return "", err
	}
	if d, err := r.Store.GetDriver(ctx, id); err == nil {
		_ = r.Geo.Upsert(ctx, *d) // keep the geo meta flag in step
	}
	observability.DriversOnline.Dec()
	return id, nil
}

// FindCandidates returns free, online drivers within radiusM of point,
// ascending by geodesic distance, capped at limit. Free means no ledger
// row holds the driver in a busy status right now. It performs no
// notification.
func (r *Registry) FindCandidates(ctx context.Context, point models.Coord, radiusM float64, excluded map[string]bool, limit int) ([]models.Candidate, error) {
	// over-fetch: busy and offline drivers are filtered out below
	raw, err := r.Geo.Nearby(ctx, point.Lat, point.Lon, radiusM, limit*5)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, limit)
	for _, c := range raw {
		if len(out) >= limit {
			break
		}
		if !c.Online || excluded[c.ID] {
			continue
		}
		if _, err := r.Store.ActiveRideForDriver(ctx, c.ID); err == nil {
			continue // busy
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		// enrich from the driver row; the geo index only carries position
		if d, err := r.Store.GetDriver(ctx, c.ID); err == nil {
			dist := c.DistanceM
			c.Driver = *d
			c.DistanceM = dist
			if !d.Online {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}
