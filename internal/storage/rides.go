package storage

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNotFound is returned for lookups against unknown ride or driver ids.
var ErrNotFound = errors.New("not found")

// RideStore is the ledger: the durable, authoritative record of every ride
// and driver row. AcceptRide and TimeoutRide are the only conditional
// writes; they are decided by the store's own compare-and-set, never by
// application locking, so multiple engine instances may race safely.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// AcceptRide transitions REQUESTED→ACCEPTED and assigns the driver in
	// one conditional update. It reports false, nil when the ride exists
	// but the precondition failed (already taken or cancelled).
	AcceptRide(ctx context.Context, id, driverID string) (bool, error)

	// TimeoutRide transitions REQUESTED→TIMEOUT; an already-accepted ride
	// must not time out.
	TimeoutRide(ctx context.Context, id string) (bool, error)

	// UpdateStatus writes a new status unless the ride is already terminal,
	// in which case it is an idempotent no-op returning the current row.
	// Cancelling clears the assigned driver to keep the driver-iff-busy
	// invariant.
	UpdateStatus(ctx context.Context, id string, status models.RideStatus) (*models.Ride, error)

	CompleteRide(ctx context.Context, id, paymentMethod string) (*models.Ride, error)
	RateRide(ctx context.Context, id string, stars int, comment string) error

	// ActiveRideForDriver reports the ride currently holding the driver
	// busy, or ErrNotFound. Busy is always re-derived from here, never
	// from any in-memory session state.
	ActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error)
	RidesInStatuses(ctx context.Context, statuses ...models.RideStatus) ([]*models.Ride, error)

	UpsertDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	SetDriverOffline(ctx context.Context, connID string) (string, error)
}
