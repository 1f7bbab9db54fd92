package communication

// terminalState is the machine's end state. It only makes sure the
// shutdown flag is set; the worker loop exits as soon as the machine is
// in a terminal state, so this never executes twice.
type terminalState struct{}

// NewTerminalState creates the terminal state.
func NewTerminalState() State {
	return &terminalState{}
}

func (s *terminalState) Execute(ctx *Context) {
	ctx.RequestShutdown()
}

func (s *terminalState) ShutdownState() State { return s }
func (s *terminalState) Terminal() bool       { return true }
func (s *terminalState) String() string       { return "Terminal" }
