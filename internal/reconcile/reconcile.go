// Package reconcile repairs the ledger after a crash. Phase timers live
// only in memory, so any ride left in a busy status by a dead process can
// never advance again; it is force-cancelled before the engine starts
// taking requests, freeing its driver instead of leaving them busy forever.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

type Reconciler struct {
	Store storage.RideStore
	Log   *slog.Logger
}

func New(store storage.RideStore, log *slog.Logger) *Reconciler {
	return &Reconciler{Store: store, Log: log}
}

// Run scans for rides stranded mid-flight and cancels them synchronously.
// It must complete before the listener accepts new requests.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	stranded, err := r.Store.RidesInStatuses(ctx, models.BusyStatuses...)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rd := range stranded {
		if _, err := r.Store.UpdateStatus(ctx, rd.ID, models.StatusCancelled); err != nil {
			return n, err
		}
		n++
		observability.RidesReconciled.Inc()
		r.Log.Warn("reconciled stranded ride",
			"ride_id", rd.ID, "was_status", string(rd.Status), "driver_id", rd.DriverID)
	}
	if n > 0 {
		r.Log.Info("startup reconciliation finished", "cancelled", n)
	}
	return n, nil
}
