// Package ride enforces the ride lifecycle over the ledger:
//
//	REQUESTED → ACCEPTED → ARRIVED → ON_TRIP → COMPLETED
//	REQUESTED → CANCELLED | TIMEOUT
//	ACCEPTED/ARRIVED/ON_TRIP → CANCELLED
//
// Only Accept and Timeout are guarded transitions; they are delegated to
// the store's conditional update so racing engine instances stay correct.
// Everything else is last-write-wins behind the store's terminal guard.
package ride

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// ErrNotFound mirrors the store's sentinel for unknown ride ids.
var ErrNotFound = storage.ErrNotFound

// ErrRideTaken is the explicit loser outcome of the accept race. Losing
// clients get this as a rejection payload, never silence.
var ErrRideTaken = errors.New("ride already taken")

type Service struct {
	Store storage.RideStore
	Log   *slog.Logger
}

func NewService(store storage.RideStore, log *slog.Logger) *Service {
	return &Service{Store: store, Log: log}
}

// Request creates a REQUESTED ride. It only fails on storage errors.
func (s *Service) Request(ctx context.Context, draft models.RideDraft) (*models.Ride, error) {
	now := time.Now()
	r := &models.Ride{
		ID:          uuid.NewString(),
		RiderID:     draft.RiderID,
		RiderConnID: draft.RiderConnID,
		Pickup:      draft.Pickup,
		Drop:        draft.Drop,
		Destination: draft.Destination,
		Fare:        draft.Fare,
		Status:      models.StatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Accept resolves the acceptance race. Exactly one caller per ride wins;
// the rest receive ErrRideTaken without anything being mutated.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	won, err := s.Store.AcceptRide(ctx, rideID, driverID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrRideTaken
	}
	return s.Store.GetRide(ctx, rideID)
}

// Arrived marks the driver at the pickup point. Idempotent.
func (s *Service) Arrived(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.UpdateStatus(ctx, rideID, models.StatusArrived)
}

// StartTrip moves an accepted or arrived ride onto the road.
func (s *Service) StartTrip(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.UpdateStatus(ctx, rideID, models.StatusOnTrip)
}

// Complete finishes the ride and records how it was paid. A second call on
// a terminal ride leaves it untouched.
func (s *Service) Complete(ctx context.Context, rideID, paymentMethod string) (*models.Ride, error) {
	return s.Store.CompleteRide(ctx, rideID, paymentMethod)
}

// Cancel terminates the ride; any assigned driver becomes free again since
// busy is always re-derived from the ledger. Idempotent on terminal rides.
func (s *Service) Cancel(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.UpdateStatus(ctx, rideID, models.StatusCancelled)
}

// Timeout expires an unanswered request. Conditional: an already-accepted
// ride must not time out, so a false return with nil error means the
// precondition failed and nothing changed.
func (s *Service) Timeout(ctx context.Context, rideID string) (bool, error) {
	return s.Store.TimeoutRide(ctx, rideID)
}

// Rate annotates the ride regardless of its status.
func (s *Service) Rate(ctx context.Context, rideID string, stars int, comment string) error {
	return s.Store.RateRide(ctx, rideID, stars, comment)
}

func (s *Service) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Store.GetRide(ctx, rideID)
}
