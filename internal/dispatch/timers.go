package dispatch

import (
	"sync"
	"time"
)

// timerTable maps ride ids to their pending phase timer. It is the
// engine's only shared mutable state; cancel-if-present and the fire-path
// claim are single locked operations so a firing timer and an arriving
// cancel cannot both proceed.
type timerTable struct {
	mu sync.Mutex
	m  map[string]*time.Timer
}

func newTimerTable() *timerTable {
	return &timerTable{m: make(map[string]*time.Timer)}
}

// schedule arms fn to run after d, registering the timer under the lock so
// the fire path cannot observe an unregistered entry. fn only runs if the
// entry survives until the timer claims it.
func (t *timerTable) schedule(rideID string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.m[rideID]; ok {
		prev.Stop()
	}
	t.m[rideID] = time.AfterFunc(d, func() {
		if !t.claim(rideID) {
			return
		}
		fn()
	})
}

// cancel stops and removes the pending timer, if any. A timer that has
// already fired but not yet claimed its entry is still removed here, which
// makes the claim fail and the callback abort.
func (t *timerTable) cancel(rideID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.m[rideID]
	if !ok {
		return false
	}
	tm.Stop()
	delete(t.m, rideID)
	return true
}

// claim is the fire path: the callback removes its own entry before doing
// any work. A false return means a cancel won the race and the callback
// must do nothing.
func (t *timerTable) claim(rideID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[rideID]; !ok {
		return false
	}
	delete(t.m, rideID)
	return true
}

func (t *timerTable) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
