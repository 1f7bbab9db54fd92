package communication

import "time"

// Initial-state constants: 5 status request retries with a doubling
// sleep starting at 1 second; when the whole cycle fails, the next cycle
// starts after one of the re-init delays, escalating up to two hours.
const maxInitialStatusRequestRetries = 5

var reInitDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
}

// initialState performs the first status handshake. On success it
// completes initialization and hands over to CaptureOn or CaptureOff; a
// throttled response diverts straight to CaptureOff with the server's
// Retry-After delay; shutdown aborts initialization.
type initialState struct {
	reInitDelayIndex int
}

// NewInitialState creates the machine's entry state.
func NewInitialState() State {
	return &initialState{}
}

func (s *initialState) Execute(ctx *Context) {
	for !ctx.IsShutdownRequested() {
		now := ctx.CurrentTimestamp()
		ctx.SetLastOpenSessionSendTime(now)
		ctx.SetLastStatusCheckTime(now)

		resp := sendStatusRequest(ctx, maxInitialStatusRequestRetries, initialRetrySleep)
		if ctx.IsShutdownRequested() {
			break
		}
		if isTooManyRequests(resp) {
			ctx.setNextState(NewCaptureOffStateWithSleep(resp.RetryAfterMillis()))
			return
		}
		if isSuccessful(resp) {
			ctx.SetInitCompleted(true)
			ctx.HandleStatusResponse(resp)
			if ctx.Configuration().IsCapture() {
				ctx.setNextState(NewCaptureOnState())
			} else {
				ctx.setNextState(NewCaptureOffState())
			}
			return
		}

		// Whole retry cycle failed; back off and start over.
		ctx.SleepDuration(reInitDelays[s.reInitDelayIndex])
		if s.reInitDelayIndex < len(reInitDelays)-1 {
			s.reInitDelayIndex++
		}
	}

	// Shutdown preempted initialization.
	ctx.SetInitCompleted(false)
}

func (s *initialState) ShutdownState() State { return NewTerminalState() }
func (s *initialState) Terminal() bool       { return false }
func (s *initialState) String() string       { return "Initial" }
