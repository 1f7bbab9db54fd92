package core

import (
	"sync"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
)

// actionCore holds the state and behavior shared by root and child
// actions. The two facades only differ in whether they admit children
// and what they detach from on leave.
type actionCore struct {
	log    logging.Logger
	beacon *protocol.Beacon

	id              int32
	name            string
	parentID        int32
	startTime       int64
	startSequenceNo int32

	endTime       atomic.Int64
	endSequenceNo atomic.Int32
}

func newActionCore(log logging.Logger, beacon *protocol.Beacon, name string, parentID int32) actionCore {
	c := actionCore{
		log:             log,
		beacon:          beacon,
		id:              beacon.CreateID(),
		name:            name,
		parentID:        parentID,
		startTime:       beacon.CurrentTimestamp(),
		startSequenceNo: beacon.CreateSequenceNumber(),
	}
	c.endTime.Store(-1)
	return c
}

// The protocol.ActionData view.

func (c *actionCore) ID() int32              { return c.id }
func (c *actionCore) ParentID() int32        { return c.parentID }
func (c *actionCore) Name() string           { return c.name }
func (c *actionCore) StartTime() int64       { return c.startTime }
func (c *actionCore) EndTime() int64         { return c.endTime.Load() }
func (c *actionCore) StartSequenceNo() int32 { return c.startSequenceNo }
func (c *actionCore) EndSequenceNo() int32   { return c.endSequenceNo.Load() }

func (c *actionCore) isLeft() bool {
	return c.endTime.Load() != -1
}

// seal stamps end time and end sequence number exactly once. Returns
// false when the action had already been left.
func (c *actionCore) seal() bool {
	if !c.endTime.CompareAndSwap(-1, c.beacon.CurrentTimestamp()) {
		return false
	}
	c.endSequenceNo.Store(c.beacon.CreateSequenceNumber())
	return true
}

func (c *actionCore) reportEvent(name string) {
	if name == "" {
		c.log.Warnf("Action.ReportEvent: name must not be empty")
		return
	}
	if c.isLeft() {
		return
	}
	c.beacon.ReportEvent(c.id, name)
}

func (c *actionCore) reportIntValue(name string, value int32) {
	if name == "" {
		c.log.Warnf("Action.ReportIntValue: name must not be empty")
		return
	}
	if c.isLeft() {
		return
	}
	c.beacon.ReportIntValue(c.id, name, value)
}

func (c *actionCore) reportDoubleValue(name string, value float64) {
	if name == "" {
		c.log.Warnf("Action.ReportDoubleValue: name must not be empty")
		return
	}
	if c.isLeft() {
		return
	}
	c.beacon.ReportDoubleValue(c.id, name, value)
}

func (c *actionCore) reportStringValue(name, value string) {
	if name == "" {
		c.log.Warnf("Action.ReportStringValue: name must not be empty")
		return
	}
	if c.isLeft() {
		return
	}
	c.beacon.ReportStringValue(c.id, name, value)
}

func (c *actionCore) reportError(name string, code int32, reason string) {
	if name == "" {
		c.log.Warnf("Action.ReportError: name must not be empty")
		return
	}
	if c.isLeft() {
		return
	}
	c.beacon.ReportError(c.id, name, code, reason)
}

func (c *actionCore) traceWebRequest(url string) WebRequestTracer {
	if url == "" {
		c.log.Warnf("Action.TraceWebRequest: url must not be empty")
		return NullWebRequestTracer
	}
	if c.isLeft() {
		return NullWebRequestTracer
	}
	return newWebRequestTracer(c.log, c.beacon, c.id, url)
}

// rootAction is an action entered directly on a session. It owns its
// still-open children; leaving it leaves them first so every child's
// end sequence number precedes the root's.
type rootAction struct {
	actionCore

	openChildActions *syncQueue[*action]

	mu      sync.Mutex
	session *session
}

func newRootAction(log logging.Logger, s *session, beacon *protocol.Beacon, name string) *rootAction {
	return &rootAction{
		actionCore:       newActionCore(log, beacon, name, 0),
		openChildActions: newSyncQueue[*action](),
		session:          s,
	}
}

func (a *rootAction) EnterAction(name string) Action {
	if name == "" {
		a.log.Warnf("RootAction.EnterAction: name must not be empty")
		return NullAction
	}
	if a.isLeft() {
		return NullAction
	}
	child := newChildAction(a.log, a.beacon, name, a)
	a.openChildActions.Put(child)
	return child
}

func (a *rootAction) ReportEvent(name string) Action { a.reportEvent(name); return a }

func (a *rootAction) ReportIntValue(name string, value int32) Action {
	a.reportIntValue(name, value)
	return a
}

func (a *rootAction) ReportDoubleValue(name string, value float64) Action {
	a.reportDoubleValue(name, value)
	return a
}

func (a *rootAction) ReportStringValue(name, value string) Action {
	a.reportStringValue(name, value)
	return a
}

func (a *rootAction) ReportError(name string, code int32, reason string) Action {
	a.reportError(name, code, reason)
	return a
}

func (a *rootAction) TraceWebRequest(url string) WebRequestTracer {
	return a.traceWebRequest(url)
}

func (a *rootAction) LeaveAction() Action {
	// Leave still-open children before sealing so their end sequence
	// numbers precede ours.
	for {
		child, ok := a.openChildActions.Shift()
		if !ok {
			break
		}
		child.LeaveAction()
	}

	if !a.seal() {
		return nil
	}
	a.beacon.AddAction(a)

	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()
	if s != nil {
		s.removeRootAction(a)
	}
	return nil
}

// action is a child action below a root action. It cannot contain
// further actions.
type action struct {
	actionCore

	mu     sync.Mutex
	parent *rootAction
}

func newChildAction(log logging.Logger, beacon *protocol.Beacon, name string, parent *rootAction) *action {
	return &action{
		actionCore: newActionCore(log, beacon, name, parent.ID()),
		parent:     parent,
	}
}

func (a *action) ReportEvent(name string) Action { a.reportEvent(name); return a }

func (a *action) ReportIntValue(name string, value int32) Action {
	a.reportIntValue(name, value)
	return a
}

func (a *action) ReportDoubleValue(name string, value float64) Action {
	a.reportDoubleValue(name, value)
	return a
}

func (a *action) ReportStringValue(name, value string) Action {
	a.reportStringValue(name, value)
	return a
}

func (a *action) ReportError(name string, code int32, reason string) Action {
	a.reportError(name, code, reason)
	return a
}

func (a *action) TraceWebRequest(url string) WebRequestTracer {
	return a.traceWebRequest(url)
}

func (a *action) LeaveAction() Action {
	if !a.seal() {
		return a.parentAction()
	}
	a.beacon.AddAction(a)

	a.mu.Lock()
	parent := a.parent
	a.parent = nil
	a.mu.Unlock()
	if parent == nil {
		return nil
	}
	parent.openChildActions.Remove(a)
	return parent
}

func (a *action) parentAction() Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parent == nil {
		return nil
	}
	return a.parent
}
