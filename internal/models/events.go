package models

// Event names on the real-time transport. Every request-shaped event has a
// paired error event so no client waits past the dispatch timeout window.
const (
	// client → core
	EventDriverLocation = "driver_location"
	EventRequestRide    = "request_ride"
	EventAcceptRide     = "accept_ride"
	EventCancelRide     = "cancel_ride"
	EventDriverArrived  = "driver_arrived"
	EventStartTrip      = "start_trip"
	EventCompleteRide   = "complete_ride"
	EventSubmitRating   = "submit_rating"
	EventGetEstimate    = "get_estimate"

	// core → driver
	EventDriverRequest    = "driver_request"
	EventBookingSuccess   = "ride_booking_success"
	EventBookingFailed    = "ride_booking_failed"
	EventCancelledByUser  = "ride_cancelled_by_user"
	EventRideSavedSuccess = "ride_saved_success"

	// core → rider
	EventRideRequested = "ride_requested"
	EventRideAccepted  = "ride_accepted"
	EventArrivedNotify = "driver_arrived_notification"
	EventRideCompleted = "ride_completed"
	EventRideTimeout   = "ride_timeout"
	EventEstimateOK    = "estimate_response"
	EventEstimateError = "estimate_error"
	EventRequestError  = "request_error"
)
