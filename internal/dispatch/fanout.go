package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// Notifier delivers an event to a connected client. Implementations are
// best-effort; a returned error means the client probably did not get the
// event, and the caller decides whether that matters.
type Notifier interface {
	Notify(clientID, event string, payload any) error
}

// Fanout sends over the live websocket session when one exists and falls
// back to push when the target driver has a token on file. Push failures
// are logged and never retried; fanout never blocks dispatch.
type Fanout struct {
	WS    *WSRegistry
	Push  *FCMPusher // nil disables the fallback
	Store storage.RideStore
	Log   *slog.Logger
}

func NewFanout(ws *WSRegistry, push *FCMPusher, store storage.RideStore, log *slog.Logger) *Fanout {
	return &Fanout{WS: ws, Push: push, Store: store, Log: log}
}

func (f *Fanout) Notify(clientID, event string, payload any) error {
	err := f.WS.Send(clientID, event, payload)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNoSession) {
		f.Log.Warn("ws send failed", "client_id", clientID, "event", event, "error", err)
	}
	if f.Push == nil {
		return err
	}
	d, derr := f.Store.GetDriver(context.Background(), clientID)
	if derr != nil || d.PushToken == "" {
		return err
	}
	if perr := f.Push.Push(d.PushToken, event, payload); perr != nil {
		observability.PushFailures.Inc()
		f.Log.Warn("push delivery failed", "client_id", clientID, "event", event, "error", perr)
		return perr
	}
	return nil
}
