// Package dispatch converts a ride request into zero or more driver
// notifications with bounded total wait: a cascading-radius search that
// widens one tier per phase, stops instantly on acceptance or cancellation,
// and times the ride out when the final tier goes unanswered.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ride"
)

type Engine struct {
	Presence   *presence.Registry
	Rides      *ride.Service
	Notifier   Notifier
	RadiiM     []float64
	PhaseWait  time.Duration
	PhaseLimit int
	Log        *slog.Logger

	timers *timerTable
}

func NewEngine(reg *presence.Registry, rides *ride.Service, n Notifier, radiiM []float64, wait time.Duration, limit int, log *slog.Logger) *Engine {
	return &Engine{
		Presence:   reg,
		Rides:      rides,
		Notifier:   n,
		RadiiM:     radiiM,
		PhaseWait:  wait,
		PhaseLimit: limit,
		Log:        log,
		timers:     newTimerTable(),
	}
}

// phase is the explicit state record carried across timer callbacks: no
// closure-captured mutable state.
type phase struct {
	rideID   string
	tier     int
	excluded map[string]bool
}

// Dispatch starts the cascading search for a freshly requested ride. Phase
// zero runs on the caller's goroutine; later phases run off their timers.
func (e *Engine) Dispatch(r *models.Ride) {
	e.runPhase(phase{rideID: r.ID, tier: 0, excluded: make(map[string]bool)})
}

func (e *Engine) runPhase(p phase) {
	ctx := context.Background()
	observability.DispatchPhases.Inc()

	// re-read status; a race already resolved (accept, cancel) aborts the
	// cascade silently
	r, err := e.Rides.Get(ctx, p.rideID)
	if err != nil {
		e.Log.Error("phase aborted: ride lookup failed", "ride_id", p.rideID, "error", err)
		return
	}
	if r.Status != models.StatusRequested {
		return
	}

	cands, err := e.Presence.FindCandidates(ctx, r.Pickup, e.RadiiM[p.tier], p.excluded, e.PhaseLimit)
	if err != nil {
		// degrade: an unreachable index this phase must not kill the
		// cascade, the next tier retries the whole radius
		e.Log.Error("candidate query failed", "ride_id", p.rideID, "tier", p.tier, "error", err)
		cands = nil
	}

	for _, c := range cands {
		p.excluded[c.ID] = true
		offer := models.RideOffer{
			RideID:        r.ID,
			Pickup:        r.Pickup,
			Drop:          r.Drop,
			Destination:   r.Destination,
			Fare:          r.Fare,
			DistanceLabel: distanceLabel(c.DistanceM),
		}
		if err := e.Notifier.Notify(c.ID, models.EventDriverRequest, offer); err != nil {
			e.Log.Warn("offer not delivered", "ride_id", r.ID, "driver_id", c.ID, "error", err)
			continue
		}
		observability.OffersSent.Inc()
	}
	e.Log.Info("search phase ran",
		"ride_id", r.ID, "tier", p.tier, "radius_m", e.RadiiM[p.tier], "notified", len(cands))

	e.scheduleNext(p)
}

func (e *Engine) scheduleNext(p phase) {
	next := phase{rideID: p.rideID, tier: p.tier + 1, excluded: p.excluded}
	if next.tier >= len(e.RadiiM) {
		e.timers.schedule(p.rideID, e.PhaseWait, func() { e.expire(p.rideID) })
		return
	}
	e.timers.schedule(p.rideID, e.PhaseWait, func() { e.runPhase(next) })
}

// expire fires after the last tier's wait: conditionally time the ride out
// and tell the rider. An accept that landed first makes this a no-op.
func (e *Engine) expire(rideID string) {
	ctx := context.Background()
	fired, err := e.Rides.Timeout(ctx, rideID)
	if err != nil {
		e.Log.Error("timeout transition failed", "ride_id", rideID, "error", err)
		return
	}
	if !fired {
		return
	}
	observability.RidesTimedOut.Inc()
	r, err := e.Rides.Get(ctx, rideID)
	if err != nil {
		e.Log.Error("timed-out ride lookup failed", "ride_id", rideID, "error", err)
		return
	}
	e.Log.Info("ride timed out", "ride_id", rideID)
	if err := e.Notifier.Notify(r.RiderID, models.EventRideTimeout, map[string]string{"ride_id": rideID}); err != nil {
		e.Log.Warn("timeout notice not delivered", "ride_id", rideID, "rider_id", r.RiderID, "error", err)
	}
}

// Accept resolves an acceptance attempt. The winner's pending phase timer
// is cancelled synchronously so no further fan-out happens; losers receive
// ride.ErrRideTaken.
func (e *Engine) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	r, err := e.Rides.Accept(ctx, rideID, driverID)
	if err != nil {
		if errors.Is(err, ride.ErrRideTaken) {
			observability.AcceptsLost.Inc()
		}
		return nil, err
	}
	e.timers.cancel(rideID)
	observability.AcceptsWon.Inc()
	e.Log.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return r, nil
}

// Cancel terminates the ride and synchronously stops its pending phase,
// preventing a use-after-cancel notification.
func (e *Engine) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	r, err := e.Rides.Cancel(ctx, rideID)
	if err != nil {
		return nil, err
	}
	e.timers.cancel(rideID)
	return r, nil
}

// PendingPhases reports how many rides currently await their next phase.
func (e *Engine) PendingPhases() int { return e.timers.pending() }

// distanceLabel renders a geodesic distance the way driver apps show it.
func distanceLabel(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m away", meters)
	}
	return fmt.Sprintf("%.1f km away", meters/1000)
}
