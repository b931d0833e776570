package statusserver

import (
	"encoding/json"
	"net/http"
)

// Locker behaves like a sync.Mutex without the blocking: Check rejects
// requests with 423 while locked, except the path used to read/set the
// lock itself. Unlike the teacher's purely manual lock, Locked() is
// also true whenever the wrapped driver is mid-command (spec.md's
// "busy" condition), so a client cannot race a Transmit against the
// engine's own state machine by forgetting to lock first; Lock/Unlock
// remain for taking the device offline for maintenance regardless of
// engine state.
//
// Adapted from server/middleware/locker/locker.go's Locker, rebuilt as
// plain net/http middleware (chi.Router accepts http.Handler
// middleware directly) instead of goji.io/pat route injection.
type Locker struct {
	isLocked bool
	busy     func() bool
}

// NewLocker returns an unlocked Locker whose Locked() also reflects
// busy(), the driver's "not idle" condition.
func NewLocker(busy func() bool) *Locker { return &Locker{busy: busy} }

// Lock locks the Locker.
func (l *Locker) Lock() { l.isLocked = true }

// Unlock unlocks the Locker.
func (l *Locker) Unlock() { l.isLocked = false }

// Locked reports whether the Locker is locked, manually or because the
// driver is currently busy.
func (l *Locker) Locked() bool {
	return l.isLocked || (l.busy != nil && l.busy())
}

// Check is a chi-compatible middleware returning 423 Locked while
// Locked() is true.
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			w.WriteHeader(http.StatusLocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type lockedResponse struct {
	Locked bool `json:"locked"`
}

// HTTPGet reports Locked() as JSON.
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, lockedResponse{Locked: l.Locked()})
}

// HTTPSet locks or unlocks based on a JSON {"locked": bool} body.
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	var req lockedResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Locked {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}
