package core

import (
	"time"

	"github.com/pulsekit/pulsekit/internal/communication"
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// senderShutdownTimeout bounds how long Shutdown waits for the send
// worker to flush and exit. The worker cuts its sleeps short on
// shutdown, so hitting this limit means it is stuck in transport I/O.
const senderShutdownTimeout = 10 * time.Second

// BeaconSender owns the background goroutine running the send state
// machine.
type BeaconSender struct {
	log     logging.Logger
	context *communication.Context
	done    chan struct{}
	started bool
}

// NewBeaconSender creates a sender; Initialize starts the worker.
func NewBeaconSender(
	log logging.Logger,
	cfg *config.Configuration,
	clientProvider protocol.ClientProvider,
	timing providers.TimingProvider,
) *BeaconSender {
	return &BeaconSender{
		log:     log,
		context: communication.NewContext(log, cfg, clientProvider, timing, providers.NewSleeper()),
		done:    make(chan struct{}),
	}
}

// Initialize spawns the send worker. The worker performs the server
// handshake asynchronously; use WaitForInit to observe the outcome.
func (s *BeaconSender) Initialize() {
	if s.started {
		return
	}
	s.started = true

	go func() {
		defer close(s.done)
		// Release init waiters with false if the worker exits while init
		// is still pending; a no-op when init already completed.
		defer s.context.SetInitCompleted(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("BeaconSender panicked: %v", r)
			}
		}()

		s.log.Debugf("BeaconSender worker started")
		for !s.context.IsInTerminalState() {
			s.context.ExecuteCurrentState()
		}
		s.log.Debugf("BeaconSender worker stopped")
	}()
}

// WaitForInit blocks until initialization finished. Returns false when
// initialization failed or shutdown preempted it.
func (s *BeaconSender) WaitForInit() bool {
	return s.context.WaitForInit()
}

// WaitForInitTimeout is WaitForInit with a deadline in milliseconds.
func (s *BeaconSender) WaitForInitTimeout(timeoutMillis int64) bool {
	return s.context.WaitForInitTimeout(timeoutMillis)
}

// IsInitialized reports whether initialization completed successfully.
func (s *BeaconSender) IsInitialized() bool {
	return s.context.IsInitialized()
}

// Shutdown requests the state machine to flush and terminate, then
// waits for the worker (bounded).
func (s *BeaconSender) Shutdown() {
	s.context.RequestShutdown()
	if !s.started {
		return
	}
	select {
	case <-s.done:
	case <-time.After(senderShutdownTimeout):
		s.log.Warnf("BeaconSender worker did not stop within %v", senderShutdownTimeout)
	}
}

// StartSession registers a new session with the state machine.
func (s *BeaconSender) StartSession(session communication.Session) {
	s.context.StartSession(session)
}

// FinishSession marks a session finished so its data is sent and the
// session released.
func (s *BeaconSender) FinishSession(session communication.Session) {
	s.context.FinishSession(session)
}
