package caching

import "sync"

// cacheEntry buffers the records of one session. Records live in two
// queues: the live queue receives new records, the send queue holds
// records handed off to a transmission attempt. Records stay in the send
// queue until the HTTP send acknowledges success so a failed send can
// roll them back.
//
// All methods require e.mu to be held by the caller. Mutating methods
// return the byte delta they caused so the cache can keep its global
// counter in sync under the same critical section.
type cacheEntry struct {
	mu sync.Mutex

	live    []*record
	sending []*record
}

// addRecord appends a record to the live queue.
func (e *cacheEntry) addRecord(r *record) int64 {
	e.live = append(e.live, r)
	return r.size()
}

// needsDataCopyBeforeSending reports whether the send queue has been
// fully drained, i.e. a new send attempt must move the live queue over
// first.
func (e *cacheEntry) needsDataCopyBeforeSending() bool {
	return len(e.sending) == 0
}

// copyDataForSending atomically moves the live queue into the send queue.
func (e *cacheEntry) copyDataForSending() {
	e.sending = e.live
	e.live = nil
}

// getChunk assembles the next transmission chunk: prefix, then records
// from the send queue joined by delimiter, stopping just before the
// total byte size would exceed maxSize. Included records are marked so a
// later commit or rollback knows which ones were in flight. Returns the
// empty string when the prefix alone exceeds maxSize or no record is
// left to send.
func (e *cacheEntry) getChunk(prefix string, maxSize int64, delimiter string) string {
	if int64(len(prefix)) > maxSize {
		return ""
	}

	var sb []byte
	for _, r := range e.sending {
		if r.markedForSending {
			continue
		}
		// The first record is admitted even when it blows the limit;
		// otherwise a single oversized record (a crash with a large
		// stacktrace) would wedge the queue forever.
		if len(sb) > 0 && int64(len(prefix)+len(sb)+len(delimiter)+len(r.data)) > maxSize {
			break
		}
		sb = append(sb, delimiter...)
		sb = append(sb, r.data...)
		r.markedForSending = true
	}
	if len(sb) == 0 {
		return ""
	}
	return prefix + string(sb)
}

// removeDataMarkedForSending commits the in-flight chunk by discarding
// every marked record.
func (e *cacheEntry) removeDataMarkedForSending() int64 {
	var freed int64
	kept := e.sending[:0]
	for _, r := range e.sending {
		if r.markedForSending {
			freed += r.size()
			continue
		}
		kept = append(kept, r)
	}
	e.sending = kept
	return -freed
}

// resetDataMarkedForSending rolls the send queue back: marks are cleared
// and all send-queue records return to the head of the live queue in
// their original order.
func (e *cacheEntry) resetDataMarkedForSending() {
	if len(e.sending) == 0 {
		return
	}
	for _, r := range e.sending {
		r.markedForSending = false
	}
	e.live = append(e.sending, e.live...)
	e.sending = nil
}

// removeRecordsOlderThan removes live records with a timestamp strictly
// before minTimestamp. Returns the number removed and the byte delta.
func (e *cacheEntry) removeRecordsOlderThan(minTimestamp int64) (int, int64) {
	var removed int
	var freed int64
	kept := e.live[:0]
	for _, r := range e.live {
		if r.timestamp < minTimestamp {
			removed++
			freed += r.size()
			continue
		}
		kept = append(kept, r)
	}
	e.live = kept
	return removed, -freed
}

// removeOldestRecords removes up to n records from the head of the live
// queue. Returns the number removed and the byte delta.
func (e *cacheEntry) removeOldestRecords(n int) (int, int64) {
	if n > len(e.live) {
		n = len(e.live)
	}
	var freed int64
	for _, r := range e.live[:n] {
		freed += r.size()
	}
	e.live = e.live[n:]
	return n, -freed
}

// isEmpty reports whether both queues are drained.
func (e *cacheEntry) isEmpty() bool {
	return len(e.live) == 0 && len(e.sending) == 0
}

// totalBytes sums both queues. Used when purging an entry wholesale.
func (e *cacheEntry) totalBytes() int64 {
	var total int64
	for _, r := range e.live {
		total += r.size()
	}
	for _, r := range e.sending {
		total += r.size()
	}
	return total
}
