// Package core implements the live object graph the host application
// interacts with: sessions, actions, web request tracers, their no-op
// sentinels, and the beacon sender owning the background send worker.
package core

// Session is one user session. All methods are safe for concurrent use;
// after End every mutator degrades to a no-op.
type Session interface {
	// EnterAction starts a new timed root action. An empty name yields a
	// no-op action.
	EnterAction(name string) RootAction

	// IdentifyUser ties the session to a user tag.
	IdentifyUser(userTag string)

	// ReportCrash records an application crash with a free-text reason
	// and stacktrace.
	ReportCrash(errorName, reason, stacktrace string)

	// TraceWebRequest starts timing an outbound web request attached
	// directly to the session.
	TraceWebRequest(url string) WebRequestTracer

	// End closes the session, leaving any still-open root actions first.
	// Idempotent.
	End()
}

// Action is a timed unit of host application work. Mutators are no-ops
// once the action was left; the fluent returns allow chaining.
type Action interface {
	// ReportEvent records a named event on this action.
	ReportEvent(name string) Action

	// ReportIntValue records a named integer value on this action.
	ReportIntValue(name string, value int32) Action

	// ReportDoubleValue records a named floating point value on this
	// action.
	ReportDoubleValue(name string, value float64) Action

	// ReportStringValue records a named string value on this action.
	ReportStringValue(name, value string) Action

	// ReportError records a named error with code and reason on this
	// action.
	ReportError(name string, code int32, reason string) Action

	// TraceWebRequest starts timing an outbound web request attached to
	// this action.
	TraceWebRequest(url string) WebRequestTracer

	// LeaveAction seals the action and returns its parent, or nil for a
	// root action. Idempotent.
	LeaveAction() Action
}

// RootAction is an Action that may contain child actions.
type RootAction interface {
	Action

	// EnterAction starts a child action. Leaving the root action leaves
	// all still-open children first.
	EnterAction(name string) Action
}

// WebRequestTracer times one outbound web request. Obtain the Tag before
// issuing the request and send it along as the correlation header; call
// Stop when the response arrived. Mutators are no-ops after Stop.
type WebRequestTracer interface {
	// Tag returns the correlation header value, empty when correlation
	// is disabled by the privacy level.
	Tag() string

	// SetBytesSent records the request payload size.
	SetBytesSent(bytes int32) WebRequestTracer

	// SetBytesReceived records the response payload size.
	SetBytesReceived(bytes int32) WebRequestTracer

	// Start re-stamps the start time; use it when tracer creation and
	// request start are far apart.
	Start() WebRequestTracer

	// Stop seals the tracer with the response code. Idempotent.
	Stop(responseCode int32)
}
