package communication

import "github.com/pulsekit/pulsekit/internal/config"

// flushSessionsState is the shutdown drain: it configures any session
// the server never acknowledged with the default multiplicity, closes
// every still-open session, transmits whatever privacy allows, and
// clears the rest before handing over to Terminal.
type flushSessionsState struct{}

// NewFlushSessionsState creates the flush state.
func NewFlushSessionsState() State {
	return &flushSessionsState{}
}

func (s *flushSessionsState) Execute(ctx *Context) {
	for _, w := range ctx.NewSessions() {
		w.updateBeaconConfiguration(config.DefaultMultiplicity)
	}

	for _, w := range ctx.OpenAndConfiguredSessions() {
		w.Session().End()
	}

	for _, w := range ctx.FinishedAndConfiguredSessions() {
		if w.isDataSendingAllowed() {
			w.Session().SendBeacon(ctx.clientProvider)
		}
		ctx.RemoveSession(w)
		w.Session().ClearCapturedData()
	}

	ctx.setNextState(NewTerminalState())
}

func (s *flushSessionsState) ShutdownState() State { return NewTerminalState() }
func (s *flushSessionsState) Terminal() bool       { return false }
func (s *flushSessionsState) String() string       { return "FlushSessions" }
