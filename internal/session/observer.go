package session

import (
	"time"

	"github.com/2389/tether/internal/behavior"
)

// Observer receives lifecycle notifications from the manager and its
// supervisors. Calls may arrive concurrently from different sessions.
type Observer interface {
	behavior.Observer

	SessionUp(id string)
	SessionDown(id, reason string)
	ReconnectScheduled(id string, delay time.Duration)
	CreateFinished(err error)
}

// NopObserver ignores everything.
type NopObserver struct {
	behavior.NopObserver
}

func (NopObserver) SessionUp(string)                         {}
func (NopObserver) SessionDown(string, string)               {}
func (NopObserver) ReconnectScheduled(string, time.Duration) {}
func (NopObserver) CreateFinished(error)                     {}
