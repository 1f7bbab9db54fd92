package caching

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pulsekit/pulsekit/internal/logging"
)

func TestCacheAddAndAccounting(t *testing.T) {
	c := NewBeaconCache(logging.Discard())

	c.AddEventData(1, 1000, "abcd")
	c.AddActionData(1, 1001, "efgh")
	c.AddEventData(2, 1002, "ij")

	want := int64(4+recordOverheadBytes) + int64(4+recordOverheadBytes) + int64(2+recordOverheadBytes)
	if got := c.NumBytesInCache(); got != want {
		t.Errorf("NumBytesInCache = %d, want %d", got, want)
	}

	ids := c.BeaconIDs()
	if len(ids) != 2 {
		t.Errorf("BeaconIDs = %v, want two entries", ids)
	}
}

func TestCacheChunkPreservesInsertionOrder(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	for i := 0; i < 5; i++ {
		c.AddEventData(1, int64(1000+i), fmt.Sprintf("r%d", i))
	}

	chunk := c.GetNextBeaconChunk(1, "prefix", 1<<20, "&")
	if chunk != "prefix&r0&r1&r2&r3&r4" {
		t.Errorf("chunk = %q", chunk)
	}
}

func TestCacheChunkRespectsMaxSize(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, strings.Repeat("a", 10))
	c.AddEventData(1, 1001, strings.Repeat("b", 10))
	c.AddEventData(1, 1002, strings.Repeat("c", 10))

	// prefix(2) + &(1) + 10 + &(1) + 10 = 24; a third record would need 35.
	chunk := c.GetNextBeaconChunk(1, "p=", 24, "&")
	if chunk != "p="+"&"+strings.Repeat("a", 10)+"&"+strings.Repeat("b", 10) {
		t.Errorf("chunk = %q", chunk)
	}

	// The rest arrives with the next chunk.
	chunk = c.GetNextBeaconChunk(1, "p=", 24, "&")
	if chunk != "p="+"&"+strings.Repeat("c", 10) {
		t.Errorf("second chunk = %q", chunk)
	}
}

func TestCacheChunkPrefixTooLarge(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "data")

	if chunk := c.GetNextBeaconChunk(1, "longprefix", 5, "&"); chunk != "" {
		t.Errorf("chunk = %q, want empty when prefix alone exceeds maxSize", chunk)
	}
}

func TestCacheChunkUnknownSession(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	if chunk := c.GetNextBeaconChunk(99, "p", 100, "&"); chunk != "" {
		t.Errorf("chunk = %q, want empty for unknown session", chunk)
	}
}

func TestCacheRemoveChunkedDataCommits(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "one")
	c.AddEventData(1, 1001, "two")

	c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	c.RemoveChunkedData(1)

	if !c.IsEmpty(1) {
		t.Error("commit must drop the chunked records")
	}
	if got := c.NumBytesInCache(); got != 0 {
		t.Errorf("NumBytesInCache = %d after commit, want 0", got)
	}
}

func TestCacheResetChunkedDataIsANoOpOnTheRecordSet(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	for i := 0; i < 4; i++ {
		c.AddEventData(1, int64(1000+i), fmt.Sprintf("r%d", i))
	}
	bytesBefore := c.NumBytesInCache()

	// Drain a partial chunk, then roll back.
	c.GetNextBeaconChunk(1, "p", 14, "&")
	c.ResetChunkedData(1)

	if got := c.NumBytesInCache(); got != bytesBefore {
		t.Errorf("NumBytesInCache = %d after reset, want %d", got, bytesBefore)
	}
	chunk := c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	if chunk != "p&r0&r1&r2&r3" {
		t.Errorf("records lost their order across reset: %q", chunk)
	}
}

func TestCacheResetInterleavedWithNewRecords(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "old1")
	c.AddEventData(1, 1001, "old2")

	c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	// New records arrive while the chunk is in flight.
	c.AddEventData(1, 1002, "new1")
	c.ResetChunkedData(1)

	chunk := c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	if chunk != "p&old1&old2&new1" {
		t.Errorf("rolled-back records must precede newer ones: %q", chunk)
	}
}

func TestCacheEvictRecordsByAge(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "a")
	c.AddEventData(1, 2000, "b")
	c.AddEventData(1, 3000, "c")

	if got := c.EvictRecordsByAge(1, 2001); got != 2 {
		t.Errorf("evicted %d records, want 2", got)
	}
	chunk := c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	if chunk != "p&c" {
		t.Errorf("chunk = %q", chunk)
	}

	if got := c.EvictRecordsByAge(99, 0); got != 0 {
		t.Errorf("unknown session evicted %d", got)
	}
}

func TestCacheEvictRecordsByNumber(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "a")
	c.AddEventData(1, 2000, "b")
	c.AddEventData(1, 3000, "c")

	if got := c.EvictRecordsByNumber(1, 2); got != 2 {
		t.Errorf("evicted %d records, want 2", got)
	}
	if got := c.EvictRecordsByNumber(1, 5); got != 1 {
		t.Errorf("evicted %d records, want the 1 remaining", got)
	}
	if got := c.NumBytesInCache(); got != 0 {
		t.Errorf("NumBytesInCache = %d, want 0", got)
	}
}

func TestCacheDeleteCacheEntryOnlyWhenEmpty(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "a")

	c.DeleteCacheEntry(1)
	if len(c.BeaconIDs()) != 1 {
		t.Error("entry with pending data must survive DeleteCacheEntry")
	}

	c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	c.RemoveChunkedData(1)
	c.DeleteCacheEntry(1)
	if len(c.BeaconIDs()) != 0 {
		t.Error("empty entry must be deleted")
	}
}

func TestCachePurgeCacheEntry(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	c.AddEventData(1, 1000, "a")
	c.AddEventData(1, 1001, "b")
	c.GetNextBeaconChunk(1, "p", 1<<20, "&") // move into the send queue

	c.PurgeCacheEntry(1)

	if len(c.BeaconIDs()) != 0 {
		t.Error("purged entry must be gone")
	}
	if got := c.NumBytesInCache(); got != 0 {
		t.Errorf("NumBytesInCache = %d after purge, want 0", got)
	}
}

type countingObserver struct {
	mu    sync.Mutex
	count int
}

func (o *countingObserver) Update() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.count++
}

func (o *countingObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

func TestCacheNotifiesObservers(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	obs := &countingObserver{}
	c.AddObserver(obs)

	c.AddEventData(1, 1000, "a")
	c.AddActionData(1, 1001, "b")
	if got := obs.Count(); got != 2 {
		t.Errorf("observer saw %d updates, want 2", got)
	}

	// Rollback refills the live queue and must notify as well.
	c.GetNextBeaconChunk(1, "p", 1<<20, "&")
	c.ResetChunkedData(1)
	if got := obs.Count(); got != 3 {
		t.Errorf("observer saw %d updates, want 3 after reset", got)
	}
}

func TestCacheConcurrentInsertsKeepAccounting(t *testing.T) {
	c := NewBeaconCache(logging.Discard())
	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.AddEventData(int32(g%3), int64(i), "0123456789")
			}
		}(g)
	}
	wg.Wait()

	want := int64(goroutines * perGoroutine * (10 + recordOverheadBytes))
	if got := c.NumBytesInCache(); got != want {
		t.Errorf("NumBytesInCache = %d, want %d", got, want)
	}
}
