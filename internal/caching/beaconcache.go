package caching

import (
	"sync"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/logging"
)

// Observer is notified whenever the cache content grows. The evictor
// registers itself here to wake on inserts.
type Observer interface {
	Update()
}

// BeaconCache is the process-scope buffer mapping session numbers to
// their queued records. Map access goes through a readers-writer lock;
// record queues are protected per entry, so host threads inserting into
// different sessions never contend.
type BeaconCache struct {
	log logging.Logger

	mu      sync.RWMutex
	entries map[int32]*cacheEntry

	totalBytes atomic.Int64

	obsMu     sync.Mutex
	observers []Observer
}

// NewBeaconCache creates an empty cache.
func NewBeaconCache(log logging.Logger) *BeaconCache {
	return &BeaconCache{
		log:     log,
		entries: make(map[int32]*cacheEntry),
	}
}

// AddObserver registers an observer for data-added notifications.
func (c *BeaconCache) AddObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// AddEventData appends a serialized event record to the session's live
// queue.
func (c *BeaconCache) AddEventData(beaconID int32, timestamp int64, data string) {
	if c.log.DebugEnabled() {
		c.log.Debugf("BeaconCache AddEventData(sn=%d, timestamp=%d, data=%q)", beaconID, timestamp, data)
	}
	c.addRecord(beaconID, &record{timestamp: timestamp, data: data})
}

// AddActionData appends a serialized action record to the session's live
// queue.
func (c *BeaconCache) AddActionData(beaconID int32, timestamp int64, data string) {
	if c.log.DebugEnabled() {
		c.log.Debugf("BeaconCache AddActionData(sn=%d, timestamp=%d, data=%q)", beaconID, timestamp, data)
	}
	c.addRecord(beaconID, &record{timestamp: timestamp, data: data})
}

func (c *BeaconCache) addRecord(beaconID int32, r *record) {
	entry := c.getOrCreateEntry(beaconID)

	entry.mu.Lock()
	delta := entry.addRecord(r)
	c.totalBytes.Add(delta)
	entry.mu.Unlock()

	c.onDataAdded()
}

// GetNextBeaconChunk drains the next chunk for transmission. On the
// first call of a send attempt the session's live queue moves into the
// send queue; subsequent calls continue from where the previous chunk
// stopped. Returns the empty string when there is nothing (more) to
// send.
func (c *BeaconCache) GetNextBeaconChunk(beaconID int32, chunkPrefix string, maxSize int64, delimiter string) string {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return ""
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.needsDataCopyBeforeSending() {
		entry.copyDataForSending()
	}
	return entry.getChunk(chunkPrefix, maxSize, delimiter)
}

// RemoveChunkedData commits the chunk currently in flight: the records
// it contained are discarded.
func (c *BeaconCache) RemoveChunkedData(beaconID int32) {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	delta := entry.removeDataMarkedForSending()
	c.totalBytes.Add(delta)
	entry.mu.Unlock()
}

// ResetChunkedData rolls the chunk currently in flight back: all
// send-queue records return to the head of the live queue in their
// original order. Observers are notified since the live queue grew.
func (c *BeaconCache) ResetChunkedData(beaconID int32) {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	entry.resetDataMarkedForSending()
	entry.mu.Unlock()

	c.onDataAdded()
}

// EvictRecordsByAge removes from the session's live queue every record
// older than minTimestamp. Returns the number of evicted records.
func (c *BeaconCache) EvictRecordsByAge(beaconID int32, minTimestamp int64) int {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return 0
	}

	entry.mu.Lock()
	removed, delta := entry.removeRecordsOlderThan(minTimestamp)
	c.totalBytes.Add(delta)
	entry.mu.Unlock()

	if removed > 0 && c.log.DebugEnabled() {
		c.log.Debugf("BeaconCache EvictRecordsByAge(sn=%d) evicted %d records", beaconID, removed)
	}
	return removed
}

// EvictRecordsByNumber removes the n oldest records from the session's
// live queue. Returns the number actually removed.
func (c *BeaconCache) EvictRecordsByNumber(beaconID int32, n int) int {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return 0
	}

	entry.mu.Lock()
	removed, delta := entry.removeOldestRecords(n)
	c.totalBytes.Add(delta)
	entry.mu.Unlock()

	if removed > 0 && c.log.DebugEnabled() {
		c.log.Debugf("BeaconCache EvictRecordsByNumber(sn=%d) evicted %d records", beaconID, removed)
	}
	return removed
}

// DeleteCacheEntry removes the session's entry when both of its queues
// are empty. Entries with pending data stay.
func (c *BeaconCache) DeleteCacheEntry(beaconID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[beaconID]
	if entry == nil {
		return
	}
	entry.mu.Lock()
	empty := entry.isEmpty()
	entry.mu.Unlock()
	if empty {
		delete(c.entries, beaconID)
	}
}

// PurgeCacheEntry unconditionally drops the session's entry together
// with all of its records. Used when a session's captured data is
// cleared without being sent.
func (c *BeaconCache) PurgeCacheEntry(beaconID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[beaconID]
	if entry == nil {
		return
	}
	entry.mu.Lock()
	c.totalBytes.Add(-entry.totalBytes())
	entry.live = nil
	entry.sending = nil
	entry.mu.Unlock()
	delete(c.entries, beaconID)
}

// IsEmpty reports whether the session has no queued records.
func (c *BeaconCache) IsEmpty(beaconID int32) bool {
	entry := c.getEntry(beaconID)
	if entry == nil {
		return true
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.isEmpty()
}

// NumBytesInCache returns the total size of all queued records.
func (c *BeaconCache) NumBytesInCache() int64 {
	return c.totalBytes.Load()
}

// BeaconIDs returns the session numbers with a cache entry, in
// unspecified order.
func (c *BeaconCache) BeaconIDs() []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int32, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

func (c *BeaconCache) getEntry(beaconID int32) *cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[beaconID]
}

func (c *BeaconCache) getOrCreateEntry(beaconID int32) *cacheEntry {
	c.mu.RLock()
	entry := c.entries[beaconID]
	c.mu.RUnlock()
	if entry != nil {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry := c.entries[beaconID]; entry != nil {
		return entry
	}
	entry = &cacheEntry{}
	c.entries[beaconID] = entry
	return entry
}

func (c *BeaconCache) onDataAdded() {
	c.obsMu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.Unlock()

	for _, o := range observers {
		o.Update()
	}
}
