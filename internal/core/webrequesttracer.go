package core

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
)

// unknownURL is stored when the traced URL has no valid scheme.
const unknownURL = "<unknown>"

// schemePattern accepts RFC 3986 scheme syntax followed by ://.
var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+\-.]*://.+`)

// webRequestTracer times one outbound web request. All counters default
// to -1 ("not set"); Stop seals the tracer exactly once, after which
// every mutator is a no-op.
type webRequestTracer struct {
	log    logging.Logger
	beacon *protocol.Beacon

	parentID        int32
	url             string
	tag             string
	startSequenceNo int32

	startTime     atomic.Int64
	endTime       atomic.Int64
	endSequenceNo atomic.Int32
	responseCode  atomic.Int32
	bytesSent     atomic.Int32
	bytesReceived atomic.Int32
}

func newWebRequestTracer(log logging.Logger, beacon *protocol.Beacon, parentActionID int32, url string) *webRequestTracer {
	t := &webRequestTracer{
		log:      log,
		beacon:   beacon,
		parentID: parentActionID,
		url:      unknownURL,
	}
	if isValidURLScheme(url) {
		t.url = stripQuery(url)
	} else {
		log.Warnf("WebRequestTracer: url %q has no valid scheme", url)
	}

	t.startSequenceNo = beacon.CreateSequenceNumber()
	// The tag must exist before the host issues the request.
	t.tag = beacon.CreateTag(parentActionID, t.startSequenceNo)

	t.startTime.Store(beacon.CurrentTimestamp())
	t.endTime.Store(-1)
	t.endSequenceNo.Store(-1)
	t.responseCode.Store(-1)
	t.bytesSent.Store(-1)
	t.bytesReceived.Store(-1)
	return t
}

func (t *webRequestTracer) Tag() string {
	return t.tag
}

func (t *webRequestTracer) Start() WebRequestTracer {
	if !t.isStopped() {
		t.startTime.Store(t.beacon.CurrentTimestamp())
	}
	return t
}

func (t *webRequestTracer) SetBytesSent(bytes int32) WebRequestTracer {
	if !t.isStopped() {
		t.bytesSent.Store(bytes)
	}
	return t
}

func (t *webRequestTracer) SetBytesReceived(bytes int32) WebRequestTracer {
	if !t.isStopped() {
		t.bytesReceived.Store(bytes)
	}
	return t
}

func (t *webRequestTracer) Stop(responseCode int32) {
	if !t.endTime.CompareAndSwap(-1, t.beacon.CurrentTimestamp()) {
		return
	}
	t.endSequenceNo.Store(t.beacon.CreateSequenceNumber())
	t.responseCode.Store(responseCode)
	t.beacon.AddWebRequest(t.parentID, t)
}

func (t *webRequestTracer) isStopped() bool {
	return t.endTime.Load() != -1
}

// The protocol.WebRequestData view.

func (t *webRequestTracer) URL() string            { return t.url }
func (t *webRequestTracer) StartTime() int64       { return t.startTime.Load() }
func (t *webRequestTracer) EndTime() int64         { return t.endTime.Load() }
func (t *webRequestTracer) StartSequenceNo() int32 { return t.startSequenceNo }
func (t *webRequestTracer) EndSequenceNo() int32   { return t.endSequenceNo.Load() }
func (t *webRequestTracer) ResponseCode() int32    { return t.responseCode.Load() }
func (t *webRequestTracer) BytesSent() int32       { return t.bytesSent.Load() }
func (t *webRequestTracer) BytesReceived() int32   { return t.bytesReceived.Load() }

func isValidURLScheme(url string) bool {
	return schemePattern.MatchString(url)
}

// stripQuery drops the query component; only the plain resource URL is
// reported.
func stripQuery(url string) string {
	base, _, _ := strings.Cut(url, "?")
	return strings.TrimSpace(base)
}
