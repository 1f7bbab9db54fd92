package pulsekit

import (
	"sync"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/caching"
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/core"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// kit is the OpenKit implementation: it wires providers, configuration,
// cache, evictor, and sender together and tracks its own shutdown.
type kit struct {
	log      logging.Logger
	cfg      *config.Configuration
	timing   providers.TimingProvider
	threadID providers.ThreadIDProvider
	prng     providers.PRNGenerator

	cache   *caching.BeaconCache
	evictor *caching.Evictor
	sender  *core.BeaconSender

	shutdown   atomic.Bool
	globalInit *globalInitGuard
}

func newKit(
	log logging.Logger,
	cfg *config.Configuration,
	timing providers.TimingProvider,
	threadID providers.ThreadIDProvider,
	prng providers.PRNGenerator,
	clientProvider protocol.ClientProvider,
) *kit {
	cache := caching.NewBeaconCache(log)
	k := &kit{
		log:        log,
		cfg:        cfg,
		timing:     timing,
		threadID:   threadID,
		prng:       prng,
		cache:      cache,
		evictor:    caching.NewEvictor(log, cache, cfg.CacheConfiguration(), timing),
		sender:     core.NewBeaconSender(log, cfg, clientProvider, timing),
		globalInit: acquireGlobalInit(log),
	}
	k.evictor.Start()
	k.sender.Initialize()
	return k
}

func (k *kit) CreateSession(clientIPAddress string) Session {
	if k.shutdown.Load() {
		return core.NullSession
	}
	beacon := protocol.NewBeacon(k.log, k.cache, k.cfg, clientIPAddress, k.threadID, k.timing, k.prng)
	return core.NewSession(k.log, k.sender, beacon)
}

func (k *kit) WaitForInitCompletion() bool {
	return k.sender.WaitForInit()
}

func (k *kit) WaitForInitCompletionTimeout(timeoutMillis int64) bool {
	return k.sender.WaitForInitTimeout(timeoutMillis)
}

func (k *kit) IsInitialized() bool {
	return k.sender.IsInitialized()
}

func (k *kit) Shutdown() {
	if !k.shutdown.CompareAndSwap(false, true) {
		return
	}
	k.log.Debugf("OpenKit shutdown requested")

	// The sender's flush state ends every open session and drains what
	// privacy allows; the evictor just stops.
	k.sender.Shutdown()
	k.evictor.Stop()
	k.globalInit.release()
}

// globalInitGuard ties process-global transport state to the lifetime
// of the first-to-last SDK instance. Transport libraries with global
// init/teardown hook in here; the reference count guarantees the hooks
// run exactly once per generation even when hosts run several instances.
type globalInitGuard struct {
	log logging.Logger
}

var (
	globalInitMu    sync.Mutex
	globalInitCount int
)

func acquireGlobalInit(log logging.Logger) *globalInitGuard {
	globalInitMu.Lock()
	defer globalInitMu.Unlock()
	globalInitCount++
	if globalInitCount == 1 {
		log.Debugf("global transport state initialized")
	}
	return &globalInitGuard{log: log}
}

func (g *globalInitGuard) release() {
	globalInitMu.Lock()
	defer globalInitMu.Unlock()
	globalInitCount--
	if globalInitCount == 0 {
		g.log.Debugf("global transport state released")
	}
}
