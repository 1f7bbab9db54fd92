package communication

import "time"

// statusCheckInterval is how long capture-off idles between status
// polls when the server gave no explicit Retry-After.
const statusCheckInterval = int64(2 * time.Hour / time.Millisecond)

// captureOffState idles while the server refuses data. It polls the
// status endpoint after its sleep and returns to CaptureOn once the
// server re-enables capture.
type captureOffState struct {
	// sleepTime overrides the default idle period; used to honor a
	// Retry-After from a throttled response. Negative means default.
	sleepTime int64
}

// NewCaptureOffState creates a capture-off state with the default idle
// period.
func NewCaptureOffState() State {
	return &captureOffState{sleepTime: -1}
}

// NewCaptureOffStateWithSleep creates a capture-off state sleeping the
// given number of milliseconds before the next status poll.
func NewCaptureOffStateWithSleep(sleepTimeMillis int64) State {
	return &captureOffState{sleepTime: sleepTimeMillis}
}

func (s *captureOffState) Execute(ctx *Context) {
	ctx.DisableCaptureAndClear()

	delta := s.sleepTime
	if delta < 0 {
		delta = statusCheckInterval - (ctx.CurrentTimestamp() - ctx.LastStatusCheckTime())
	}
	if delta > 0 && !ctx.IsShutdownRequested() {
		ctx.Sleep(delta)
	}
	if ctx.IsShutdownRequested() {
		return
	}

	resp := sendStatusRequest(ctx, statusRequestRetries, initialRetrySleep)
	ctx.SetLastStatusCheckTime(ctx.CurrentTimestamp())

	switch {
	case isTooManyRequests(resp):
		ctx.setNextState(NewCaptureOffStateWithSleep(resp.RetryAfterMillis()))
	case isSuccessful(resp):
		// Completes an init left pending by a throttled handshake.
		ctx.SetInitCompleted(true)
		ctx.HandleStatusResponse(resp)
		if ctx.Configuration().IsCapture() {
			ctx.setNextState(NewCaptureOnState())
		}
	}
}

func (s *captureOffState) ShutdownState() State { return NewFlushSessionsState() }
func (s *captureOffState) Terminal() bool       { return false }
func (s *captureOffState) String() string       { return "CaptureOff" }
