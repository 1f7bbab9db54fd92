package config

import "time"

// Beacon cache defaults.
const (
	DefaultMaxRecordAge        = int64(105 * time.Minute / time.Millisecond)
	DefaultCacheLowerBoundSize = int64(80 * 1024 * 1024)
	DefaultCacheUpperBoundSize = int64(100 * 1024 * 1024)
)

// BeaconCacheConfiguration bounds the in-memory beacon cache. A
// non-positive MaxRecordAge disables time eviction; non-positive bounds
// (or upper <= lower) disable space eviction.
type BeaconCacheConfiguration struct {
	// MaxRecordAge is the maximum age of a cached record in milliseconds.
	MaxRecordAge int64

	// CacheSizeLowerBound is the size in bytes space eviction shrinks the
	// cache down to once it triggered.
	CacheSizeLowerBound int64

	// CacheSizeUpperBound is the size in bytes beyond which space
	// eviction starts.
	CacheSizeUpperBound int64
}

// NewBeaconCacheConfiguration creates a cache configuration with explicit
// bounds.
func NewBeaconCacheConfiguration(maxRecordAge, lowerBound, upperBound int64) *BeaconCacheConfiguration {
	return &BeaconCacheConfiguration{
		MaxRecordAge:        maxRecordAge,
		CacheSizeLowerBound: lowerBound,
		CacheSizeUpperBound: upperBound,
	}
}

// DefaultBeaconCacheConfiguration returns the default bounds.
func DefaultBeaconCacheConfiguration() *BeaconCacheConfiguration {
	return NewBeaconCacheConfiguration(DefaultMaxRecordAge, DefaultCacheLowerBoundSize, DefaultCacheUpperBoundSize)
}
