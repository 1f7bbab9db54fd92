// Package communication implements the send state machine: a single
// background worker that initializes the SDK against the cluster, polls
// server status, drains session beacons with retry, honors throttling,
// and flushes everything on shutdown.
package communication

import (
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/protocol"
)

// Session is the view of a live session the state machine drives. The
// core object graph implements it.
type Session interface {
	// End closes the session; idempotent.
	End()

	// SendBeacon drains and transmits the session's cached records.
	SendBeacon(provider protocol.ClientProvider) *protocol.StatusResponse

	// IsEmpty reports whether the session has no cached records.
	IsEmpty() bool

	// ClearCapturedData drops the session's cached records.
	ClearCapturedData()

	// SetBeaconConfiguration swaps the per-session configuration.
	SetBeaconConfiguration(bc *config.BeaconConfiguration)

	// BeaconConfiguration returns the current per-session configuration.
	BeaconConfiguration() *config.BeaconConfiguration
}

// maxNewSessionRequests is how often a new-session request is attempted
// per session before the session is given up on (capture disabled via
// multiplicity 0).
const maxNewSessionRequests = 4

// sessionWrapper decorates a session with the sending state the machine
// tracks: whether the server configured it yet, whether it finished, and
// how many new-session request attempts are left.
type sessionWrapper struct {
	session Session

	beaconConfigurationSet atomic.Bool
	sessionFinished        atomic.Bool
	newSessionRequestsLeft atomic.Int32
}

func newSessionWrapper(s Session) *sessionWrapper {
	w := &sessionWrapper{session: s}
	w.newSessionRequestsLeft.Store(maxNewSessionRequests)
	return w
}

func (w *sessionWrapper) Session() Session { return w.session }

// updateBeaconConfiguration applies the server-assigned multiplicity and
// marks the session configured.
func (w *sessionWrapper) updateBeaconConfiguration(multiplicity int32) {
	w.session.SetBeaconConfiguration(w.session.BeaconConfiguration().WithMultiplicity(multiplicity))
	w.beaconConfigurationSet.Store(true)
}

func (w *sessionWrapper) isBeaconConfigurationSet() bool {
	return w.beaconConfigurationSet.Load()
}

func (w *sessionWrapper) markFinished() {
	w.sessionFinished.Store(true)
}

func (w *sessionWrapper) isFinished() bool {
	return w.sessionFinished.Load()
}

func (w *sessionWrapper) canSendNewSessionRequest() bool {
	return w.newSessionRequestsLeft.Load() > 0
}

func (w *sessionWrapper) decreaseNewSessionRequests() {
	w.newSessionRequestsLeft.Add(-1)
}

// isDataSendingAllowed reports whether this session's data may go out:
// the server must have configured it and the multiplicity must permit
// sampling.
func (w *sessionWrapper) isDataSendingAllowed() bool {
	return w.isBeaconConfigurationSet() && w.session.BeaconConfiguration().CapturingAllowed()
}
