// Package pulsekit is an embeddable client-side observability SDK. It
// captures user interaction data — actions, values, events, errors,
// crashes, web request timings, user identification — from a host
// application and transmits it to an analytics cluster as compact
// line-oriented beacons.
//
// Typical usage:
//
//	kit := pulsekit.NewBuilder(endpointURL, applicationID, deviceID).Build()
//	kit.WaitForInitCompletionTimeout(10_000)
//
//	session := kit.CreateSession("")
//	action := session.EnterAction("load dashboard")
//	action.ReportIntValue("widgets", 42)
//	action.LeaveAction()
//	session.End()
//
//	kit.Shutdown()
//
// All SDK objects are safe for concurrent use. The SDK never returns
// errors through this API; a call that cannot proceed degrades to a
// no-op object and the data is simply absent on the server side.
package pulsekit

import (
	"github.com/pulsekit/pulsekit/internal/core"
	"github.com/pulsekit/pulsekit/internal/logging"
)

// Version is the SDK version.
const Version = "1.4.0"

// The domain object surface, implemented by the SDK and by the no-op
// sentinels returned after shutdown or on invalid input.
type (
	Session          = core.Session
	RootAction       = core.RootAction
	Action           = core.Action
	WebRequestTracer = core.WebRequestTracer
)

// Logger is the logging façade the SDK writes through. Supply your own
// implementation via Builder.WithLogger to route SDK logs into the host
// application's logging infrastructure.
type Logger = logging.Logger

// NewLogger creates the default logger. With verbose set, debug and
// info messages are emitted, otherwise only warnings and errors.
func NewLogger(verbose bool) Logger {
	return logging.NewDefault(verbose)
}

// OpenKit is one SDK instance. Create it through a Builder; every
// instance owns its own beacon cache and its two background workers.
type OpenKit interface {
	// CreateSession opens a new session. clientIPAddress may be empty,
	// in which case the server derives the IP from the connection.
	CreateSession(clientIPAddress string) Session

	// WaitForInitCompletion blocks until the initial server handshake
	// finished. Returns false when initialization failed or Shutdown
	// preempted it.
	WaitForInitCompletion() bool

	// WaitForInitCompletionTimeout is WaitForInitCompletion bounded by a
	// timeout in milliseconds.
	WaitForInitCompletionTimeout(timeoutMillis int64) bool

	// IsInitialized reports whether the handshake completed successfully.
	IsInitialized() bool

	// Shutdown flushes and stops this instance: open sessions are ended,
	// remaining data is sent where privacy allows, and both background
	// workers terminate. Idempotent; afterwards CreateSession returns a
	// no-op session.
	Shutdown()
}
