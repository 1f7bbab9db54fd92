package core

import (
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
)

// session is the live session implementation. Beyond the public Session
// surface it implements the communication.Session view the send state
// machine drives.
type session struct {
	log    logging.Logger
	beacon *protocol.Beacon
	sender *BeaconSender

	// endTime is -1 while the session is open; End CASes it exactly
	// once.
	endTime atomic.Int64

	openRootActions *syncQueue[*rootAction]
}

// NewSession creates and registers a session: the sessionStart record is
// written and the sender is told to announce the session to the server.
func NewSession(log logging.Logger, sender *BeaconSender, beacon *protocol.Beacon) Session {
	s := &session{
		log:             log,
		beacon:          beacon,
		sender:          sender,
		openRootActions: newSyncQueue[*rootAction](),
	}
	s.endTime.Store(-1)
	beacon.StartSession()
	sender.StartSession(s)
	return s
}

func (s *session) EnterAction(name string) RootAction {
	if name == "" {
		s.log.Warnf("Session.EnterAction: name must not be empty")
		return NullRootAction
	}
	if s.isEnded() {
		return NullRootAction
	}
	a := newRootAction(s.log, s, s.beacon, name)
	s.openRootActions.Put(a)
	return a
}

func (s *session) IdentifyUser(userTag string) {
	if userTag == "" {
		s.log.Warnf("Session.IdentifyUser: user tag must not be empty")
		return
	}
	if s.isEnded() {
		return
	}
	s.beacon.IdentifyUser(userTag)
}

func (s *session) ReportCrash(errorName, reason, stacktrace string) {
	if errorName == "" {
		s.log.Warnf("Session.ReportCrash: error name must not be empty")
		return
	}
	if s.isEnded() {
		return
	}
	s.beacon.ReportCrash(errorName, reason, stacktrace)
}

func (s *session) TraceWebRequest(url string) WebRequestTracer {
	if url == "" {
		s.log.Warnf("Session.TraceWebRequest: url must not be empty")
		return NullWebRequestTracer
	}
	if s.isEnded() {
		return NullWebRequestTracer
	}
	// Parent action id 0 attaches the request directly to the session.
	return newWebRequestTracer(s.log, s.beacon, 0, url)
}

func (s *session) End() {
	if !s.endTime.CompareAndSwap(-1, s.beacon.CurrentTimestamp()) {
		return
	}

	// Leave any root action the host forgot to leave.
	for {
		a, ok := s.openRootActions.Shift()
		if !ok {
			break
		}
		a.LeaveAction()
	}

	s.beacon.EndSession(s)
	s.sender.FinishSession(s)
}

// EndTime returns the session end timestamp, -1 while open. It is the
// protocol.SessionData view.
func (s *session) EndTime() int64 {
	return s.endTime.Load()
}

func (s *session) isEnded() bool {
	return s.endTime.Load() != -1
}

func (s *session) removeRootAction(a *rootAction) {
	s.openRootActions.Remove(a)
}

// The communication.Session view.

// SendBeacon drains and transmits this session's cached records.
func (s *session) SendBeacon(provider protocol.ClientProvider) *protocol.StatusResponse {
	return s.beacon.Send(provider)
}

// IsEmpty reports whether this session has no cached records.
func (s *session) IsEmpty() bool {
	return s.beacon.IsEmpty()
}

// ClearCapturedData drops this session's cached records.
func (s *session) ClearCapturedData() {
	s.beacon.ClearData()
}

// SetBeaconConfiguration swaps the per-session configuration.
func (s *session) SetBeaconConfiguration(bc *config.BeaconConfiguration) {
	s.beacon.SetBeaconConfiguration(bc)
}

// BeaconConfiguration returns the per-session configuration.
func (s *session) BeaconConfiguration() *config.BeaconConfiguration {
	return s.beacon.BeaconConfiguration()
}
