package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

type Server struct {
	Registry *presence.Registry
	Rides    *ride.Service
	Engine   *dispatch.Engine
	WSReg    *dispatch.WSRegistry
	Notify   dispatch.Notifier
	ETA      *eta.Service
	Kafka    *ingest.KafkaProducer // nil disables the location stream

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the full dispatch stack from config with sensible
// fallbacks: redis-less runs get the in-memory geo index, postgres-less
// runs get the in-memory ledger.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var ggeo geo.Geo
	if cfg.RedisAddr != "" {
		ggeo = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		ggeo = geo.NewIndex()
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	var push *dispatch.FCMPusher
	if cfg.FCMEndpoint != "" {
		push = dispatch.NewFCMPusher(cfg.FCMEndpoint, cfg.FCMKey)
	}

	var etaClient eta.Client
	if cfg.OSRMEndpoint != "" {
		etaClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	wsreg := dispatch.NewWSRegistry()
	registry := presence.NewRegistry(ggeo, store, logger)
	rides := ride.NewService(store, logger)
	fanout := dispatch.NewFanout(wsreg, push, store, logger)
	engine := dispatch.NewEngine(registry, rides, fanout,
		cfg.DispatchRadiiM, cfg.DispatchPhaseWait, cfg.DispatchPhaseLimit, logger)
	etaSvc := eta.NewService(etaClient, eta.NewCache(cfg.DispatchPhaseWait), cfg.DefaultSpeedMps, logger)

	return NewServerWith(registry, rides, engine, wsreg, fanout, etaSvc, kp, logger)
}

// NewServerWith assembles a server from prebuilt components; tests use it
// to swap in memory-backed pieces.
func NewServerWith(registry *presence.Registry, rides *ride.Service, engine *dispatch.Engine,
	wsreg *dispatch.WSRegistry, notify dispatch.Notifier, etaSvc *eta.Service,
	kafka *ingest.KafkaProducer, logger *slog.Logger) *Server {
	s := &Server{
		Registry: registry,
		Rides:    rides,
		Engine:   engine,
		WSReg:    wsreg,
		Notify:   notify,
		ETA:      etaSvc,
		Kafka:    kafka,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/rider/{rider_id}", s.handleRiderWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleDriverLocation is the HTTP ingest path used by driver app backends
// that do not hold a websocket. It feeds the same presence pipeline.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var upd models.PresenceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if upd.DriverID == "" {
		http.Error(w, "driver_id required", http.StatusBadRequest)
		return
	}
	if s.Kafka != nil {
		if err := s.Kafka.PublishPresence(upd); err != nil {
			s.logger.Warn("location publish failed", "driver_id", upd.DriverID, "error", err)
		}
	}
	healed, err := s.Registry.Update(r.Context(), upd)
	if err != nil {
		http.Error(w, "storage error", http.StatusServiceUnavailable)
		return
	}
	s.notifyHealed(healed)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["ride_id"]
	rd, err := s.Rides.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, "storage error", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rd)
}

// notifyHealed tells the rider of a self-heal-cancelled ride that it is
// gone. Best-effort.
func (s *Server) notifyHealed(rideID string) {
	if rideID == "" {
		return
	}
	rd, err := s.Rides.Get(context.Background(), rideID)
	if err != nil {
		return
	}
	_ = s.Notify.Notify(rd.RiderID, models.EventCancelledByUser, map[string]string{"ride_id": rideID, "reason": "driver_reset"})
}
