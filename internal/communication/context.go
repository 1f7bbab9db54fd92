package communication

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// Context carries everything the states share: configuration, transport
// access, the session set, timing, and the shutdown/init latches. One
// context exists per SDK instance, owned by the send worker goroutine.
type Context struct {
	log            logging.Logger
	cfg            *config.Configuration
	clientProvider protocol.ClientProvider
	timing         providers.TimingProvider
	sleeper        providers.Sleeper

	currentState State

	stateMu   sync.Mutex
	nextState State

	shutdown atomic.Bool

	initDone chan struct{}
	initOnce sync.Once
	initOK   atomic.Bool

	lastOpenSessionSend atomic.Int64
	lastStatusCheck     atomic.Int64

	sessMu   sync.Mutex
	sessions []*sessionWrapper
}

// NewContext creates a context starting in the Initial state.
func NewContext(
	log logging.Logger,
	cfg *config.Configuration,
	clientProvider protocol.ClientProvider,
	timing providers.TimingProvider,
	sleeper providers.Sleeper,
) *Context {
	return &Context{
		log:            log,
		cfg:            cfg,
		clientProvider: clientProvider,
		timing:         timing,
		sleeper:        sleeper,
		currentState:   NewInitialState(),
		initDone:       make(chan struct{}),
	}
}

// ExecuteCurrentState runs one state machine step: execute the current
// state, divert to its shutdown state when a shutdown was requested, and
// apply the pending transition.
func (c *Context) ExecuteCurrentState() {
	c.currentState.Execute(c)

	if c.IsShutdownRequested() && !c.currentState.Terminal() {
		c.setNextState(c.currentState.ShutdownState())
	}
	if next := c.takeNextState(); next != nil {
		c.log.Debugf("BeaconSender state change: %s -> %s", c.currentState, next)
		c.currentState = next
	}
}

// CurrentState returns the state the machine is in.
func (c *Context) CurrentState() State { return c.currentState }

// IsInTerminalState reports whether the machine reached Terminal.
func (c *Context) IsInTerminalState() bool { return c.currentState.Terminal() }

func (c *Context) setNextState(next State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.nextState = next
}

func (c *Context) takeNextState() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	next := c.nextState
	c.nextState = nil
	return next
}

// RequestShutdown asks the state machine to wind down. It wakes every
// interruptible sleep so the worker reacts promptly.
func (c *Context) RequestShutdown() {
	if c.shutdown.CompareAndSwap(false, true) {
		c.sleeper.Wakeup()
	}
}

// IsShutdownRequested reports whether a shutdown was requested.
func (c *Context) IsShutdownRequested() bool { return c.shutdown.Load() }

// SetInitCompleted publishes the init outcome. Only the first call
// counts.
func (c *Context) SetInitCompleted(success bool) {
	c.initOnce.Do(func() {
		c.initOK.Store(success)
		close(c.initDone)
	})
}

// IsInitialized reports whether init completed successfully.
func (c *Context) IsInitialized() bool {
	select {
	case <-c.initDone:
		return c.initOK.Load()
	default:
		return false
	}
}

// WaitForInit blocks until init completed (or shutdown aborted it).
func (c *Context) WaitForInit() bool {
	<-c.initDone
	return c.initOK.Load()
}

// WaitForInitTimeout is WaitForInit with a deadline. It returns false on
// timeout expiry or when shutdown preempted initialization.
func (c *Context) WaitForInitTimeout(timeoutMillis int64) bool {
	timer := time.NewTimer(time.Duration(timeoutMillis) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-c.initDone:
		return c.initOK.Load()
	case <-timer.C:
		return false
	}
}

// Sleep pauses the worker, returning early on shutdown.
func (c *Context) Sleep(millis int64) {
	c.SleepDuration(time.Duration(millis) * time.Millisecond)
}

// SleepDuration is Sleep with a time.Duration.
func (c *Context) SleepDuration(d time.Duration) {
	c.sleeper.Sleep(d)
}

// CurrentTimestamp returns the current time in milliseconds.
func (c *Context) CurrentTimestamp() int64 {
	return c.timing.ProvideTimestampInMilliseconds()
}

// GetHTTPClient creates a transport client from the current connection
// snapshot.
func (c *Context) GetHTTPClient() protocol.Client {
	return c.clientProvider.CreateClient(c.cfg.HTTPClientConfiguration())
}

// Configuration returns the runtime configuration.
func (c *Context) Configuration() *config.Configuration { return c.cfg }

// SendInterval returns the current send interval in milliseconds.
func (c *Context) SendInterval() int64 { return c.cfg.SendInterval() }

// HandleStatusResponse applies a successful status response to the
// runtime configuration. When the server turned capture off, all cached
// session data is dropped.
func (c *Context) HandleStatusResponse(resp *protocol.StatusResponse) {
	if resp == nil || !resp.IsSuccessful() {
		return
	}
	c.cfg.UpdateSettings(resp)
	if !c.cfg.IsCapture() {
		c.clearAllSessionData()
	}
}

// DisableCaptureAndClear turns capture off and drops all cached session
// data.
func (c *Context) DisableCaptureAndClear() {
	c.cfg.DisableCapture()
	c.clearAllSessionData()
}

func (c *Context) clearAllSessionData() {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	kept := c.sessions[:0]
	for _, w := range c.sessions {
		w.session.ClearCapturedData()
		if !w.isFinished() {
			kept = append(kept, w)
		}
	}
	c.sessions = kept
}

// LastOpenSessionSendTime returns when open sessions were last drained.
func (c *Context) LastOpenSessionSendTime() int64 { return c.lastOpenSessionSend.Load() }

// SetLastOpenSessionSendTime records when open sessions were drained.
func (c *Context) SetLastOpenSessionSendTime(ts int64) { c.lastOpenSessionSend.Store(ts) }

// LastStatusCheckTime returns when the server status was last polled.
func (c *Context) LastStatusCheckTime() int64 { return c.lastStatusCheck.Load() }

// SetLastStatusCheckTime records when the server status was polled.
func (c *Context) SetLastStatusCheckTime(ts int64) { c.lastStatusCheck.Store(ts) }

// StartSession registers a newly created session with the machine.
func (c *Context) StartSession(s Session) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	c.sessions = append(c.sessions, newSessionWrapper(s))
}

// FinishSession marks a session as ended so the next cycle transmits and
// releases it.
func (c *Context) FinishSession(s Session) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	for _, w := range c.sessions {
		if w.session == s {
			w.markFinished()
			return
		}
	}
}

// NewSessions returns the sessions the server has not configured yet.
func (c *Context) NewSessions() []*sessionWrapper {
	return c.filterSessions(func(w *sessionWrapper) bool {
		return !w.isBeaconConfigurationSet()
	})
}

// OpenAndConfiguredSessions returns configured sessions still open.
func (c *Context) OpenAndConfiguredSessions() []*sessionWrapper {
	return c.filterSessions(func(w *sessionWrapper) bool {
		return w.isBeaconConfigurationSet() && !w.isFinished()
	})
}

// FinishedAndConfiguredSessions returns configured sessions that ended.
func (c *Context) FinishedAndConfiguredSessions() []*sessionWrapper {
	return c.filterSessions(func(w *sessionWrapper) bool {
		return w.isBeaconConfigurationSet() && w.isFinished()
	})
}

// RemoveSession drops a session wrapper from the machine. Returns true
// when it was present.
func (c *Context) RemoveSession(w *sessionWrapper) bool {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	for i, cur := range c.sessions {
		if cur == w {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Context) filterSessions(keep func(*sessionWrapper) bool) []*sessionWrapper {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	var out []*sessionWrapper
	for _, w := range c.sessions {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}
