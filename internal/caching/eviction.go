package caching

import (
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// evictionStrategy is one cache-trimming policy. The evictor executes
// all strategies in order on every wake-up.
type evictionStrategy interface {
	Execute()
}

// TimeEvictionStrategy removes records whose age exceeds the configured
// maximum. It runs at most once per MaxRecordAge interval.
type TimeEvictionStrategy struct {
	log    logging.Logger
	cache  *BeaconCache
	cfg    *config.BeaconCacheConfiguration
	timing providers.TimingProvider

	lastRunTimestamp int64
	disabledLogged   bool
}

// NewTimeEvictionStrategy creates the age-based eviction strategy.
func NewTimeEvictionStrategy(log logging.Logger, cache *BeaconCache, cfg *config.BeaconCacheConfiguration, timing providers.TimingProvider) *TimeEvictionStrategy {
	return &TimeEvictionStrategy{
		log:              log,
		cache:            cache,
		cfg:              cfg,
		timing:           timing,
		lastRunTimestamp: -1,
	}
}

// Execute runs the strategy if it is enabled and due.
func (s *TimeEvictionStrategy) Execute() {
	if s.isDisabled() {
		if !s.disabledLogged {
			s.log.Infof("TimeEvictionStrategy is disabled (maxRecordAge=%d)", s.cfg.MaxRecordAge)
			s.disabledLogged = true
		}
		return
	}
	if s.lastRunTimestamp < 0 {
		s.lastRunTimestamp = s.timing.ProvideTimestampInMilliseconds()
	}
	if s.shouldRun() {
		s.doExecute()
	}
}

func (s *TimeEvictionStrategy) isDisabled() bool {
	return s.cfg.MaxRecordAge <= 0
}

func (s *TimeEvictionStrategy) shouldRun() bool {
	now := s.timing.ProvideTimestampInMilliseconds()
	return now-s.lastRunTimestamp >= s.cfg.MaxRecordAge
}

func (s *TimeEvictionStrategy) doExecute() {
	now := s.timing.ProvideTimestampInMilliseconds()
	smallestAllowedTimestamp := now - s.cfg.MaxRecordAge

	var evicted int
	for _, id := range s.cache.BeaconIDs() {
		evicted += s.cache.EvictRecordsByAge(id, smallestAllowedTimestamp)
	}
	if evicted > 0 && s.log.DebugEnabled() {
		s.log.Debugf("TimeEvictionStrategy evicted %d records", evicted)
	}

	s.lastRunTimestamp = now
}

// SpaceEvictionStrategy trims the cache once its total size crossed the
// upper bound, removing one record per session round-robin until the
// size is back at the lower bound.
type SpaceEvictionStrategy struct {
	log   logging.Logger
	cache *BeaconCache
	cfg   *config.BeaconCacheConfiguration

	// stopRequested lets the evictor abort a long trimming loop during
	// shutdown; it is checked between sessions.
	stopRequested func() bool

	disabledLogged bool
}

// NewSpaceEvictionStrategy creates the size-based eviction strategy.
func NewSpaceEvictionStrategy(log logging.Logger, cache *BeaconCache, cfg *config.BeaconCacheConfiguration, stopRequested func() bool) *SpaceEvictionStrategy {
	return &SpaceEvictionStrategy{
		log:           log,
		cache:         cache,
		cfg:           cfg,
		stopRequested: stopRequested,
	}
}

// Execute runs the strategy if it is enabled and the cache outgrew the
// upper bound.
func (s *SpaceEvictionStrategy) Execute() {
	if s.isDisabled() {
		if !s.disabledLogged {
			s.log.Infof("SpaceEvictionStrategy is disabled (lowerBound=%d, upperBound=%d)",
				s.cfg.CacheSizeLowerBound, s.cfg.CacheSizeUpperBound)
			s.disabledLogged = true
		}
		return
	}
	if s.shouldRun() {
		s.doExecute()
	}
}

func (s *SpaceEvictionStrategy) isDisabled() bool {
	return s.cfg.CacheSizeLowerBound <= 0 ||
		s.cfg.CacheSizeUpperBound <= 0 ||
		s.cfg.CacheSizeUpperBound <= s.cfg.CacheSizeLowerBound
}

func (s *SpaceEvictionStrategy) shouldRun() bool {
	return s.cache.NumBytesInCache() > s.cfg.CacheSizeUpperBound
}

func (s *SpaceEvictionStrategy) doExecute() {
	for !s.stopRequested() && s.cache.NumBytesInCache() > s.cfg.CacheSizeLowerBound {
		for _, id := range s.cache.BeaconIDs() {
			if s.stopRequested() || s.cache.NumBytesInCache() <= s.cfg.CacheSizeLowerBound {
				return
			}
			evicted := s.cache.EvictRecordsByNumber(id, 1)
			if evicted > 0 && s.log.DebugEnabled() {
				s.log.Debugf("SpaceEvictionStrategy evicted %d record(s) from session %d", evicted, id)
			}
		}
	}
}
