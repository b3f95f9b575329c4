package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

type testEnv struct {
	store *storage.MemoryStore
	srv   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	registry := presence.NewRegistry(geo.NewIndex(), store, logger)
	rides := ride.NewService(store, logger)
	wsreg := dispatch.NewWSRegistry()
	fanout := dispatch.NewFanout(wsreg, nil, store, logger)
	engine := dispatch.NewEngine(registry, rides, fanout,
		[]float64{2000, 5000}, 500*time.Millisecond, 10, logger)
	etaSvc := eta.NewService(nil, eta.NewCache(time.Minute), 10, logger)
	s := NewServerWith(registry, rides, engine, wsreg, fanout, etaSvc, nil, logger)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return &testEnv{store: store, srv: ts}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	b, _ := json.Marshal(data)
	if err := conn.WriteJSON(wsMessage{Event: event, Data: b}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// awaitEvent reads frames until the wanted event arrives, skipping others.
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

// nextEvent reads exactly one frame.
func nextEvent(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return f
}

func (e *testEnv) waitOnline(t *testing.T, driverID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d, err := e.store.GetDriver(context.Background(), driverID)
		if err == nil && d.Online {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("driver %s never came online", driverID)
}

func heartbeat(t *testing.T, conn *websocket.Conn, lat, lon float64) {
	send(t, conn, models.EventDriverLocation, models.PresenceUpdate{Lat: lat, Lon: lon, Heading: 45})
}

func TestAcceptRaceExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	d1 := env.dial(t, "/ws/driver/d1")
	d2 := env.dial(t, "/ws/driver/d2")
	rider := env.dial(t, "/ws/rider/r1")

	heartbeat(t, d1, 12.901, 77.600)
	heartbeat(t, d2, 12.902, 77.600)
	env.waitOnline(t, "d1")
	env.waitOnline(t, "d2")

	send(t, rider, models.EventRequestRide, models.RideDraft{
		Pickup: models.Coord{Lat: 12.900, Lon: 77.600},
		Drop:   models.Coord{Lat: 12.950, Lon: 77.650},
		Fare:   180,
	})
	ack := awaitEvent(t, rider, models.EventRideRequested)
	var requested models.Ride
	if err := json.Unmarshal(ack.Data, &requested); err != nil || requested.ID == "" {
		t.Fatalf("bad request ack: %s", ack.Data)
	}

	var o1, o2 models.RideOffer
	off1 := awaitEvent(t, d1, models.EventDriverRequest)
	off2 := awaitEvent(t, d2, models.EventDriverRequest)
	json.Unmarshal(off1.Data, &o1)
	json.Unmarshal(off2.Data, &o2)
	if o1.RideID != requested.ID || o2.RideID != requested.ID {
		t.Fatalf("offers carry wrong ride: %q %q want %q", o1.RideID, o2.RideID, requested.ID)
	}

	send(t, d1, models.EventAcceptRide, map[string]string{"ride_id": o1.RideID})
	send(t, d2, models.EventAcceptRide, map[string]string{"ride_id": o2.RideID})

	r1 := nextEvent(t, d1)
	r2 := nextEvent(t, d2)
	wins, losses := 0, 0
	for _, f := range []frame{r1, r2} {
		switch f.Event {
		case models.EventBookingSuccess:
			wins++
		case models.EventBookingFailed:
			losses++
		default:
			t.Fatalf("unexpected driver event %q", f.Event)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("want exactly one winner, got wins=%d losses=%d", wins, losses)
	}

	accepted := awaitEvent(t, rider, models.EventRideAccepted)
	var payload struct {
		Ride models.Ride `json:"ride"`
	}
	if err := json.Unmarshal(accepted.Data, &payload); err != nil {
		t.Fatalf("bad accept payload: %v", err)
	}
	if payload.Ride.Status != models.StatusAccepted || payload.Ride.DriverID == "" {
		t.Fatalf("accepted ride not assigned: %+v", payload.Ride)
	}
}

func TestFullTripLifecycleOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	drv := env.dial(t, "/ws/driver/d1")
	rider := env.dial(t, "/ws/rider/r1")

	heartbeat(t, drv, 12.901, 77.600)
	env.waitOnline(t, "d1")

	send(t, rider, models.EventRequestRide, models.RideDraft{
		Pickup: models.Coord{Lat: 12.900, Lon: 77.600},
		Drop:   models.Coord{Lat: 12.950, Lon: 77.650},
		Fare:   220,
	})
	offer := awaitEvent(t, drv, models.EventDriverRequest)
	var o models.RideOffer
	json.Unmarshal(offer.Data, &o)

	send(t, drv, models.EventAcceptRide, map[string]string{"ride_id": o.RideID})
	awaitEvent(t, drv, models.EventBookingSuccess)
	awaitEvent(t, rider, models.EventRideAccepted)

	send(t, drv, models.EventDriverArrived, map[string]string{"ride_id": o.RideID})
	awaitEvent(t, rider, models.EventArrivedNotify)

	send(t, drv, models.EventStartTrip, map[string]string{"ride_id": o.RideID})
	send(t, drv, models.EventCompleteRide, map[string]string{"ride_id": o.RideID, "payment_method": "cash"})
	awaitEvent(t, drv, models.EventRideSavedSuccess)
	done := awaitEvent(t, rider, models.EventRideCompleted)

	var final models.Ride
	if err := json.Unmarshal(done.Data, &final); err != nil {
		t.Fatalf("bad completion payload: %v", err)
	}
	if final.Status != models.StatusCompleted || final.PaymentMethod != "cash" {
		t.Fatalf("unexpected final ride: %+v", final)
	}

	send(t, rider, models.EventSubmitRating, map[string]any{"ride_id": o.RideID, "stars": 5, "comment": "smooth"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rd, _ := env.store.GetRide(context.Background(), o.RideID)
		if rd != nil && rd.Rating == 5 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("rating never persisted")
}

func TestCancelNotifiesAssignedDriver(t *testing.T) {
	env := newTestEnv(t)
	drv := env.dial(t, "/ws/driver/d1")
	rider := env.dial(t, "/ws/rider/r1")

	heartbeat(t, drv, 12.901, 77.600)
	env.waitOnline(t, "d1")

	send(t, rider, models.EventRequestRide, models.RideDraft{
		Pickup: models.Coord{Lat: 12.900, Lon: 77.600},
		Drop:   models.Coord{Lat: 12.950, Lon: 77.650},
	})
	offer := awaitEvent(t, drv, models.EventDriverRequest)
	var o models.RideOffer
	json.Unmarshal(offer.Data, &o)
	send(t, drv, models.EventAcceptRide, map[string]string{"ride_id": o.RideID})
	awaitEvent(t, drv, models.EventBookingSuccess)
	awaitEvent(t, rider, models.EventRideAccepted)

	send(t, rider, models.EventCancelRide, map[string]string{"ride_id": o.RideID})
	awaitEvent(t, drv, models.EventCancelledByUser)

	rd, err := env.store.GetRide(context.Background(), o.RideID)
	if err != nil {
		t.Fatalf("ride vanished: %v", err)
	}
	if rd.Status != models.StatusCancelled || rd.DriverID != "" {
		t.Fatalf("cancel must free the driver, got %+v", rd)
	}
}

func TestEstimateDegradesWithoutRoutingBackend(t *testing.T) {
	env := newTestEnv(t)
	rider := env.dial(t, "/ws/rider/r1")

	send(t, rider, models.EventGetEstimate, map[string]any{
		"pickup": models.Coord{Lat: 12.900, Lon: 77.600},
		"drop":   models.Coord{Lat: 12.950, Lon: 77.650},
	})
	resp := awaitEvent(t, rider, models.EventEstimateOK)
	var est models.Estimate
	if err := json.Unmarshal(resp.Data, &est); err != nil {
		t.Fatalf("bad estimate payload: %v", err)
	}
	if !est.Degraded || est.DistanceM <= 0 || est.DurationText == "" {
		t.Fatalf("expected degraded haversine estimate, got %+v", est)
	}
}

func TestDriverDisconnectMarksOffline(t *testing.T) {
	env := newTestEnv(t)
	drv := env.dial(t, "/ws/driver/d1")
	heartbeat(t, drv, 12.901, 77.600)
	env.waitOnline(t, "d1")

	drv.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d, err := env.store.GetDriver(context.Background(), "d1")
		if err == nil && !d.Online {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("driver still online after disconnect")
}
