package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RideStatus is the ledger's status enum. The ledger is the sole authority
// on status; no component may cache it beyond a single request.
type RideStatus string

const (
	StatusRequested RideStatus = "REQUESTED"
	StatusAccepted  RideStatus = "ACCEPTED"
	StatusArrived   RideStatus = "ARRIVED"
	StatusOnTrip    RideStatus = "ON_TRIP"
	StatusCompleted RideStatus = "COMPLETED"
	StatusCancelled RideStatus = "CANCELLED"
	StatusTimeout   RideStatus = "TIMEOUT"
)

// BusyStatuses are the non-terminal statuses that make a driver unavailable.
var BusyStatuses = []RideStatus{StatusAccepted, StatusArrived, StatusOnTrip}

func (s RideStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

func (s RideStatus) Busy() bool {
	switch s {
	case StatusAccepted, StatusArrived, StatusOnTrip:
		return true
	}
	return false
}

type Driver struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Vehicle   string    `json:"vehicle"`
	Verified  bool      `json:"verified"`
	Loc       Coord     `json:"loc"`
	Heading   float64   `json:"heading"`
	Online    bool      `json:"online"`
	PushToken string    `json:"push_token,omitempty"`
	ConnID    string    `json:"conn_id,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Candidate is a driver returned from a proximity query with its geodesic
// distance to the query point in meters.
type Candidate struct {
	Driver
	DistanceM float64 `json:"distance_m"`
}

type Ride struct {
	ID            string     `json:"id"`
	RiderID       string     `json:"rider_id"`
	RiderConnID   string     `json:"-"` // routing only, never authoritative
	Pickup        Coord      `json:"pickup"`
	Drop          Coord      `json:"drop"`
	Destination   string     `json:"destination"`
	Fare          float64    `json:"fare"`
	Status        RideStatus `json:"status"`
	DriverID      string     `json:"driver_id,omitempty"`
	Rating        int        `json:"rating,omitempty"`
	Feedback      string     `json:"feedback,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RideDraft is the rider's request payload before a ride row exists.
type RideDraft struct {
	RiderID     string  `json:"rider_id"`
	RiderConnID string  `json:"-"`
	Pickup      Coord   `json:"pickup"`
	Drop        Coord   `json:"drop"`
	Destination string  `json:"destination"`
	Fare        float64 `json:"fare"`
}

// PresenceUpdate is a driver heartbeat. RideID is empty on an idle
// heartbeat; a non-empty value means the driver reports being on that ride.
type PresenceUpdate struct {
	DriverID  string  `json:"driver_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Heading   float64 `json:"heading"`
	RideID    string  `json:"ride_id,omitempty"`
	PushToken string  `json:"push_token,omitempty"`
	ConnID    string  `json:"-"`
}

// RideOffer is the driver_request payload fanned out during dispatch.
type RideOffer struct {
	RideID        string  `json:"ride_id"`
	Pickup        Coord   `json:"pickup"`
	Drop          Coord   `json:"drop"`
	Destination   string  `json:"destination"`
	Fare          float64 `json:"fare"`
	DistanceLabel string  `json:"distance"`
}

// Estimate is the routing provider's answer for get_estimate.
type Estimate struct {
	DistanceM    float64 `json:"distance_m"`
	DurationText string  `json:"duration"`
	Polyline     string  `json:"polyline,omitempty"`
	Resolved     Coord   `json:"resolved"`
	Degraded     bool    `json:"degraded,omitempty"`
}
