package caching

import (
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// evictorStopTimeout is the default grace period Stop waits for the
// eviction goroutine before giving up on it.
const evictorStopTimeout = 2 * time.Second

// Evictor runs the eviction strategies on a dedicated goroutine. The
// goroutine registers itself as cache observer and sleeps on a condition
// variable until a record is added or a stop is requested.
type Evictor struct {
	log        logging.Logger
	cache      *BeaconCache
	strategies []evictionStrategy

	// startStopMu serializes Start/Stop so concurrent lifecycle calls
	// don't race each other.
	startStopMu sync.Mutex

	mu          sync.Mutex
	cond        *sync.Cond
	recordAdded bool
	stop        bool
	running     bool

	done chan struct{}
}

// NewEvictor creates an evictor with the default time and space
// strategies.
func NewEvictor(log logging.Logger, cache *BeaconCache, cfg *config.BeaconCacheConfiguration, timing providers.TimingProvider) *Evictor {
	e := newEvictor(log, cache)
	e.strategies = []evictionStrategy{
		NewTimeEvictionStrategy(log, cache, cfg, timing),
		NewSpaceEvictionStrategy(log, cache, cfg, e.isStopRequested),
	}
	return e
}

// NewEvictorWithStrategies creates an evictor with explicit strategies.
// Used by tests.
func NewEvictorWithStrategies(log logging.Logger, cache *BeaconCache, strategies ...evictionStrategy) *Evictor {
	e := newEvictor(log, cache)
	e.strategies = strategies
	return e
}

func newEvictor(log logging.Logger, cache *BeaconCache) *Evictor {
	e := &Evictor{log: log, cache: cache}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start spawns the eviction goroutine. It blocks until the goroutine has
// registered itself as cache observer, so no insert happening after
// Start returns can be missed. Returns true iff the goroutine was
// actually started.
func (e *Evictor) Start() bool {
	e.startStopMu.Lock()
	defer e.startStopMu.Unlock()

	if e.IsAlive() {
		e.log.Debugf("Evictor already running")
		return false
	}

	e.mu.Lock()
	e.stop = false
	e.recordAdded = false
	e.mu.Unlock()
	done := make(chan struct{})
	e.done = done

	registered := make(chan struct{})
	go e.run(registered, done)
	<-registered

	e.log.Debugf("Evictor started")
	return true
}

// Stop signals the eviction goroutine and waits up to the default
// timeout for it to terminate. Returns false when the goroutine did not
// stop in time; it is then left to exit on its own.
func (e *Evictor) Stop() bool {
	return e.StopWithTimeout(evictorStopTimeout)
}

// StopWithTimeout is Stop with an explicit grace period.
func (e *Evictor) StopWithTimeout(timeout time.Duration) bool {
	e.startStopMu.Lock()
	defer e.startStopMu.Unlock()

	if !e.IsAlive() {
		return false
	}

	e.signalStop()

	select {
	case <-e.done:
		return true
	case <-time.After(timeout):
		e.log.Warnf("Evictor did not stop within %v", timeout)
		return false
	}
}

// StopAndJoin stops the eviction goroutine and waits without timeout.
// Test-only variant of Stop.
func (e *Evictor) StopAndJoin() bool {
	e.startStopMu.Lock()
	defer e.startStopMu.Unlock()

	if !e.IsAlive() {
		return false
	}

	e.signalStop()
	<-e.done
	return true
}

// IsAlive reports whether the eviction goroutine is running.
func (e *Evictor) IsAlive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Update implements Observer; the cache calls it on every insert.
func (e *Evictor) Update() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordAdded = true
	e.cond.Broadcast()
}

func (e *Evictor) signalStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stop = true
	e.cond.Broadcast()
}

func (e *Evictor) isStopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

func (e *Evictor) run(registered, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("Evictor panicked: %v", r)
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
		}
	}()

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	e.cache.AddObserver(e)
	close(registered)

	e.mu.Lock()
	for {
		for !e.recordAdded && !e.stop {
			e.cond.Wait()
		}
		if e.stop {
			break
		}
		e.recordAdded = false

		// Run the strategies without holding the flag mutex; they take
		// the cache's own locks and may loop for a while.
		e.mu.Unlock()
		for _, s := range e.strategies {
			s.Execute()
		}
		e.mu.Lock()
	}
	e.running = false
	e.mu.Unlock()
}
