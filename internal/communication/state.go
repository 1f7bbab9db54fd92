package communication

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pulsekit/pulsekit/internal/protocol"
)

// State is one state of the send state machine. Execute runs until the
// state decides on a transition (via context.setNextState) or a shutdown
// request interrupts it; ShutdownState names the state an external
// shutdown request diverts to.
type State interface {
	Execute(ctx *Context)
	ShutdownState() State
	Terminal() bool
	String() string
}

// statusRequestRetries is how often the non-initial states retry a
// failed status request before giving up for the cycle.
const statusRequestRetries = 5

// initialRetrySleep is the first sleep of the doubling retry schedule.
const initialRetrySleep = time.Second

// sendStatusRequest issues a status request with bounded exponential
// backoff: up to maxRetries retries with the sleep doubling after each
// attempt. It stops early on success, on throttling, and on shutdown,
// and returns the last response (possibly erroneous, possibly nil).
func sendStatusRequest(ctx *Context, maxRetries int, initialDelay time.Duration) *protocol.StatusResponse {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0
	bo.Reset()

	var resp *protocol.StatusResponse
	for retry := 0; ; retry++ {
		resp = ctx.GetHTTPClient().SendStatusRequest()
		if resp != nil && (resp.IsSuccessful() || resp.IsTooManyRequests()) {
			break
		}
		if retry >= maxRetries || ctx.IsShutdownRequested() {
			break
		}
		ctx.SleepDuration(bo.NextBackOff())
		if ctx.IsShutdownRequested() {
			break
		}
	}
	return resp
}

func isTooManyRequests(resp *protocol.StatusResponse) bool {
	return resp != nil && resp.IsTooManyRequests()
}

func isSuccessful(resp *protocol.StatusResponse) bool {
	return resp != nil && resp.IsSuccessful()
}
