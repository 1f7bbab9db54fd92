package communication

import (
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/protocol"
)

// captureOnSleep is the poll granularity of the capture-on loop. Open
// sessions are only drained once per send interval; finished and new
// sessions are handled every cycle.
const captureOnSleep int64 = 1000 // ms

// captureOnState is the steady state while the server wants data: every
// cycle it announces new sessions, transmits finished sessions, and
// periodically drains open sessions. The server can throttle (429) or
// turn capture off at any time.
type captureOnState struct{}

// NewCaptureOnState creates the capture-on state.
func NewCaptureOnState() State {
	return &captureOnState{}
}

func (s *captureOnState) Execute(ctx *Context) {
	ctx.Sleep(captureOnSleep)
	if ctx.IsShutdownRequested() {
		return
	}

	if resp := s.sendNewSessionRequests(ctx); isTooManyRequests(resp) {
		s.throttle(ctx, resp)
		return
	}

	finishedResp := s.sendFinishedSessions(ctx)
	if isTooManyRequests(finishedResp) {
		s.throttle(ctx, finishedResp)
		return
	}

	openResp := s.sendOpenSessions(ctx)
	if isTooManyRequests(openResp) {
		s.throttle(ctx, openResp)
		return
	}

	lastStatus := openResp
	if lastStatus == nil {
		lastStatus = finishedResp
	}
	s.handleStatusResponse(ctx, lastStatus)
}

// sendNewSessionRequests asks the server to admit each yet-unconfigured
// session. Sessions out of attempts are disabled via multiplicity 0.
// Returns a response only when the server throttled.
func (s *captureOnState) sendNewSessionRequests(ctx *Context) *protocol.StatusResponse {
	for _, w := range ctx.NewSessions() {
		if !w.canSendNewSessionRequest() {
			w.updateBeaconConfiguration(0)
			continue
		}
		resp := ctx.GetHTTPClient().SendNewSessionRequest()
		switch {
		case isTooManyRequests(resp):
			return resp
		case isSuccessful(resp):
			multiplicity := resp.Multiplicity()
			if multiplicity < 0 {
				multiplicity = config.DefaultMultiplicity
			}
			w.updateBeaconConfiguration(multiplicity)
		default:
			w.decreaseNewSessionRequests()
		}
	}
	return nil
}

// sendFinishedSessions transmits and releases every finished session.
// A transport failure keeps the session for the next cycle.
func (s *captureOnState) sendFinishedSessions(ctx *Context) *protocol.StatusResponse {
	var lastStatus *protocol.StatusResponse
	for _, w := range ctx.FinishedAndConfiguredSessions() {
		if w.isDataSendingAllowed() {
			resp := w.Session().SendBeacon(ctx.clientProvider)
			if isTooManyRequests(resp) {
				return resp
			}
			if resp == nil && !w.Session().IsEmpty() {
				// Transport failure; records were rolled back, retry on
				// the next cycle.
				break
			}
			if resp != nil {
				lastStatus = resp
			}
		}
		ctx.RemoveSession(w)
		w.Session().ClearCapturedData()
	}
	return lastStatus
}

// sendOpenSessions drains open sessions once per send interval.
func (s *captureOnState) sendOpenSessions(ctx *Context) *protocol.StatusResponse {
	now := ctx.CurrentTimestamp()
	if now <= ctx.LastOpenSessionSendTime()+ctx.SendInterval() {
		return nil
	}

	var lastStatus *protocol.StatusResponse
	for _, w := range ctx.OpenAndConfiguredSessions() {
		if !w.isDataSendingAllowed() {
			w.Session().ClearCapturedData()
			continue
		}
		resp := w.Session().SendBeacon(ctx.clientProvider)
		if isTooManyRequests(resp) {
			return resp
		}
		if resp != nil {
			lastStatus = resp
		}
	}
	ctx.SetLastOpenSessionSendTime(now)
	return lastStatus
}

func (s *captureOnState) handleStatusResponse(ctx *Context, resp *protocol.StatusResponse) {
	if resp == nil {
		return
	}
	ctx.HandleStatusResponse(resp)
	if !ctx.Configuration().IsCapture() {
		ctx.setNextState(NewCaptureOffState())
	}
}

func (s *captureOnState) throttle(ctx *Context, resp *protocol.StatusResponse) {
	ctx.setNextState(NewCaptureOffStateWithSleep(resp.RetryAfterMillis()))
}

func (s *captureOnState) ShutdownState() State { return NewFlushSessionsState() }
func (s *captureOnState) Terminal() bool       { return false }
func (s *captureOnState) String() string       { return "CaptureOn" }
