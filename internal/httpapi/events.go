package httpapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

// Inbound event payloads.
type acceptRideReq struct {
	RideID string `json:"ride_id"`
}

type rideIDReq struct {
	RideID string `json:"ride_id"`
}

type completeRideReq struct {
	RideID        string `json:"ride_id"`
	PaymentMethod string `json:"payment_method"`
}

type ratingReq struct {
	RideID  string `json:"ride_id"`
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

type estimateReq struct {
	Pickup models.Coord `json:"pickup"`
	Drop   models.Coord `json:"drop"`
}

func (s *Server) handleDriverEvent(driverID, connID string, msg wsMessage) {
	ctx := context.Background()
	switch msg.Event {
	case models.EventDriverLocation:
		s.onDriverLocation(ctx, driverID, connID, msg.Data)
	case models.EventAcceptRide:
		s.onAcceptRide(ctx, driverID, msg.Data)
	case models.EventDriverArrived:
		s.onDriverArrived(ctx, driverID, msg.Data)
	case models.EventStartTrip:
		s.onStartTrip(ctx, driverID, msg.Data)
	case models.EventCompleteRide:
		s.onCompleteRide(ctx, driverID, msg.Data)
	default:
		s.reply(driverID, "error", map[string]string{"message": "unknown event " + msg.Event})
	}
}

func (s *Server) handleRiderEvent(riderID, connID string, msg wsMessage) {
	ctx := context.Background()
	switch msg.Event {
	case models.EventRequestRide:
		s.onRequestRide(ctx, riderID, connID, msg.Data)
	case models.EventCancelRide:
		s.onCancelRide(ctx, riderID, msg.Data)
	case models.EventGetEstimate:
		s.onGetEstimate(ctx, riderID, msg.Data)
	case models.EventSubmitRating:
		s.onSubmitRating(ctx, riderID, msg.Data)
	default:
		s.reply(riderID, "error", map[string]string{"message": "unknown event " + msg.Event})
	}
}

func (s *Server) onDriverLocation(ctx context.Context, driverID, connID string, data json.RawMessage) {
	var upd models.PresenceUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		s.reply(driverID, "error", map[string]string{"message": "invalid location payload"})
		return
	}
	upd.DriverID = driverID
	upd.ConnID = connID
	if s.Kafka != nil {
		if err := s.Kafka.PublishPresence(upd); err != nil {
			s.logger.Warn("location publish failed", "driver_id", driverID, "error", err)
		}
	}
	healed, err := s.Registry.Update(ctx, upd)
	if err != nil {
		s.logger.Error("presence update failed", "driver_id", driverID, "error", err)
		return
	}
	s.notifyHealed(healed)
}

// onAcceptRide resolves the acceptance race. The winner gets
// ride_booking_success and the rider gets exactly one ride_accepted;
// losers get an explicit ride_booking_failed so they stop waiting.
func (s *Server) onAcceptRide(ctx context.Context, driverID string, data json.RawMessage) {
	var req acceptRideReq
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply(driverID, models.EventBookingFailed, map[string]string{"message": "invalid accept payload"})
		return
	}
	rd, err := s.Engine.Accept(ctx, req.RideID, driverID)
	switch {
	case err == nil:
		s.reply(driverID, models.EventBookingSuccess, rd)
		d, derr := s.Registry.Store.GetDriver(ctx, driverID)
		if derr != nil {
			d = &models.Driver{ID: driverID}
		}
		_ = s.Notify.Notify(rd.RiderID, models.EventRideAccepted, map[string]any{"ride": rd, "driver": d})
	case errors.Is(err, ride.ErrRideTaken):
		s.reply(driverID, models.EventBookingFailed, map[string]string{"ride_id": req.RideID, "reason": "already_taken"})
	case errors.Is(err, ride.ErrNotFound):
		s.logger.Info("accept for unknown ride", "ride_id", req.RideID, "driver_id", driverID)
	default:
		s.logger.Error("accept failed", "ride_id", req.RideID, "error", err)
		s.reply(driverID, models.EventBookingFailed, map[string]string{"ride_id": req.RideID, "reason": "storage_error"})
	}
}

func (s *Server) onDriverArrived(ctx context.Context, driverID string, data json.RawMessage) {
	var req rideIDReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	rd, err := s.Rides.Arrived(ctx, req.RideID)
	if err != nil {
		s.logger.Info("arrived for unknown ride", "ride_id", req.RideID, "error", err)
		return
	}
	_ = s.Notify.Notify(rd.RiderID, models.EventArrivedNotify, map[string]string{"ride_id": rd.ID})
}

func (s *Server) onStartTrip(ctx context.Context, driverID string, data json.RawMessage) {
	var req rideIDReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if _, err := s.Rides.StartTrip(ctx, req.RideID); err != nil {
		s.logger.Info("start for unknown ride", "ride_id", req.RideID, "error", err)
	}
}

func (s *Server) onCompleteRide(ctx context.Context, driverID string, data json.RawMessage) {
	var req completeRideReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	rd, err := s.Rides.Complete(ctx, req.RideID, req.PaymentMethod)
	if err != nil {
		s.logger.Info("complete for unknown ride", "ride_id", req.RideID, "error", err)
		return
	}
	s.reply(driverID, models.EventRideSavedSuccess, rd)
	_ = s.Notify.Notify(rd.RiderID, models.EventRideCompleted, rd)
}

func (s *Server) onRequestRide(ctx context.Context, riderID, connID string, data json.RawMessage) {
	var draft models.RideDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		s.reply(riderID, models.EventRequestError, map[string]string{"message": "invalid ride request"})
		return
	}
	draft.RiderID = riderID
	draft.RiderConnID = connID
	rd, err := s.Rides.Request(ctx, draft)
	if err != nil {
		// not auto-retried; the client retries the whole request
		s.logger.Error("ride create failed", "rider_id", riderID, "error", err)
		s.reply(riderID, models.EventRequestError, map[string]string{"message": "could not save ride"})
		return
	}
	observability.RidesRequested.Inc()
	s.reply(riderID, models.EventRideRequested, rd)
	go s.Engine.Dispatch(rd)
}

func (s *Server) onCancelRide(ctx context.Context, riderID string, data json.RawMessage) {
	var req rideIDReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	// capture the assignment before cancel clears it
	prev, err := s.Rides.Get(ctx, req.RideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("cancel for unknown ride", "ride_id", req.RideID)
			return
		}
		s.reply(riderID, models.EventRequestError, map[string]string{"message": "could not cancel ride"})
		return
	}
	if _, err := s.Engine.Cancel(ctx, req.RideID); err != nil {
		s.reply(riderID, models.EventRequestError, map[string]string{"message": "could not cancel ride"})
		return
	}
	if prev.DriverID != "" {
		_ = s.Notify.Notify(prev.DriverID, models.EventCancelledByUser, map[string]string{"ride_id": req.RideID})
	}
}

func (s *Server) onGetEstimate(ctx context.Context, riderID string, data json.RawMessage) {
	var req estimateReq
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply(riderID, models.EventEstimateError, map[string]string{"message": "invalid estimate request"})
		return
	}
	est := s.ETA.Estimate(ctx, req.Pickup, req.Drop)
	s.reply(riderID, models.EventEstimateOK, est)
}

func (s *Server) onSubmitRating(ctx context.Context, riderID string, data json.RawMessage) {
	var req ratingReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if err := s.Rides.Rate(ctx, req.RideID, req.Stars, req.Comment); err != nil {
		s.logger.Info("rating for unknown ride", "ride_id", req.RideID, "error", err)
	}
}
