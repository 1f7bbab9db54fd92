package protocol

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pulsekit/pulsekit/internal/caching"
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// Deterministic provider fakes.

type testTiming struct{ now int64 }

func (t *testTiming) ProvideTimestampInMilliseconds() int64 { return t.now }
func (t *testTiming) Sleep(time.Duration)                   {}

type testThreadID struct{ id int32 }

func (t testThreadID) ThreadID() int32 { return t.id }

type testPRNG struct{ value int64 }

func (p testPRNG) NextPositiveInt64() int64   { return p.value }
func (p testPRNG) NextPercentageValue() int32 { return 0 }

type stubClient struct {
	beaconResponses []*StatusResponse
	requests        []string
}

func (c *stubClient) SendStatusRequest() *StatusResponse     { return nil }
func (c *stubClient) SendNewSessionRequest() *StatusResponse { return nil }

func (c *stubClient) SendBeaconRequest(_ string, data []byte) *StatusResponse {
	c.requests = append(c.requests, string(data))
	if len(c.beaconResponses) == 0 {
		return nil
	}
	resp := c.beaconResponses[0]
	c.beaconResponses = c.beaconResponses[1:]
	return resp
}

type stubClientProvider struct{ client Client }

func (p stubClientProvider) CreateClient(*config.HTTPClientConfiguration) Client { return p.client }

func newTestConfiguration(dcl config.DataCollectionLevel, crl config.CrashReportingLevel) *config.Configuration {
	return config.NewConfiguration(
		config.NewDevice("testOS", "testManufacturer", "testModel"),
		"AppName",
		"appID",
		"1.0",
		"https://collector.example.com/mbeacon",
		42,
		"42",
		providers.NewSessionIDProviderWithInitialValue(16),
		config.NewPrivacyConfiguration(dcl, crl),
		config.DefaultBeaconCacheConfiguration(),
		false,
		PercentEncode,
	)
}

func newTestBeacon(cfg *config.Configuration, cache *caching.BeaconCache, timing *testTiming) *Beacon {
	return NewBeacon(logging.Discard(), cache, cfg, "127.0.0.1", testThreadID{id: 3}, timing, testPRNG{value: 12345})
}

func drainChunk(t *testing.T, cache *caching.BeaconCache, sn int32) string {
	t.Helper()
	return cache.GetNextBeaconChunk(sn, "p", 1<<20, "&")
}

func TestBeaconStartSessionRecord(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	b.StartSession()

	want := "p&et=18&it=3&pa=0&s0=1&t0=0"
	if got := drainChunk(t, cache, b.SessionNumber()); got != want {
		t.Errorf("chunk = %q, want %q", got, want)
	}
}

func TestBeaconDeviceIDPolicy(t *testing.T) {
	cache := caching.NewBeaconCache(logging.Discard())
	timing := &testTiming{now: 1000}

	// userBehavior keeps the configured id.
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	if got := newTestBeacon(cfg, cache, timing).DeviceID(); got != 42 {
		t.Errorf("userBehavior device id = %d, want configured 42", got)
	}

	// Lower levels re-randomize per beacon.
	cfg = newTestConfiguration(config.DataCollectionPerformance, config.CrashReportingOptIn)
	if got := newTestBeacon(cfg, cache, timing).DeviceID(); got != 12345 {
		t.Errorf("performance device id = %d, want randomized 12345", got)
	}

	cfg = newTestConfiguration(config.DataCollectionOff, config.CrashReportingOff)
	if got := newTestBeacon(cfg, cache, timing).DeviceID(); got != 12345 {
		t.Errorf("off device id = %d, want randomized 12345", got)
	}
}

func TestBeaconImmutablePrefixContainsIdentity(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.StartSession()

	client := &stubClient{beaconResponses: []*StatusResponse{ParseStatusResponse("", 200, nil)}}
	b.Send(stubClientProvider{client: client})

	if len(client.requests) != 1 {
		t.Fatalf("expected 1 beacon request, got %d", len(client.requests))
	}
	payload := client.requests[0]
	for _, want := range []string{
		"vv=3", "ap=appID", "an=AppName", "vn=1.0", "pt=1", "tt=okgo",
		"vi=42", fmt.Sprintf("sn=%d", b.SessionNumber()), "ip=127.0.0.1",
		"os=testOS", "mf=testManufacturer", "md=testModel", "dl=2", "cl=2",
		"mp=1", "tv=1000",
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload misses %q: %s", want, payload)
		}
	}
}

func TestBeaconCaptureDisabledProducesNothing(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cfg.DisableCapture()
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	b.StartSession()
	b.ReportEvent(1, "event")
	b.ReportIntValue(1, "value", 42)
	b.ReportError(1, "error", 13, "reason")
	b.ReportCrash("crash", "reason", "stack")
	b.IdentifyUser("user")

	if got := cache.NumBytesInCache(); got != 0 {
		t.Errorf("cache holds %d bytes, want 0", got)
	}
}

func TestBeaconPrivacyGating(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionOff, config.CrashReportingOff)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	b.StartSession()
	b.ReportEvent(1, "event")
	b.ReportIntValue(1, "value", 42)
	b.ReportStringValue(1, "value", "v")
	b.ReportError(1, "error", 13, "reason")
	b.ReportCrash("crash", "reason", "stack")
	b.IdentifyUser("user")

	chunk := drainChunk(t, cache, b.SessionNumber())
	if !strings.Contains(chunk, "et=18") {
		t.Errorf("sessionStart missing at level off: %q", chunk)
	}
	if strings.Count(chunk, "et=") != 1 {
		t.Errorf("level off must only produce sessionStart, got %q", chunk)
	}
}

func TestBeaconCrashRequiresOptIn(t *testing.T) {
	cache := caching.NewBeaconCache(logging.Discard())

	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptOut)
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.ReportCrash("crash", "reason", "stack")
	if !b.IsEmpty() {
		t.Error("optOutCrashes must not record crashes")
	}

	cfg = newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	b = newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.ReportCrash("crash", "reason", "stack")
	chunk := drainChunk(t, cache, b.SessionNumber())
	if !strings.Contains(chunk, "et=50") {
		t.Errorf("optInCrashes crash missing: %q", chunk)
	}
	if !strings.Contains(chunk, "st=stack") {
		t.Errorf("stacktrace missing: %q", chunk)
	}
}

func TestBeaconNameTruncation(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	b.ReportEvent(1, strings.Repeat("x", 300))

	chunk := drainChunk(t, cache, b.SessionNumber())
	if !strings.Contains(chunk, "na="+strings.Repeat("x", 250)) {
		t.Fatalf("expected truncated name in %q", chunk)
	}
	if strings.Contains(chunk, strings.Repeat("x", 251)) {
		t.Error("name was not truncated to 250 characters")
	}
}

func TestBeaconStacktraceTruncatedAtLineBreak(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	line := strings.Repeat("f", 999) + "\n"
	b.ReportCrash("crash", "reason", strings.Repeat(line, 200)) // 200k chars

	chunk := drainChunk(t, cache, b.SessionNumber())
	idx := strings.Index(chunk, "st=")
	if idx < 0 {
		t.Fatal("no stacktrace in record")
	}
	st := PercentDecode(chunk[idx+3:])
	if len(st) > maxStacktraceLength {
		t.Errorf("stacktrace length %d exceeds limit", len(st))
	}
	if strings.HasSuffix(st, "\n") {
		t.Error("stacktrace should be cut at (not after) the last line break")
	}
}

func TestBeaconCreateTag(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	want := fmt.Sprintf("MT_3_1_42_%d_appID_17_3_9", b.SessionNumber())
	if got := b.CreateTag(17, 9); got != want {
		t.Errorf("CreateTag = %q, want %q", got, want)
	}
}

func TestBeaconCreateTagDisabledByPrivacy(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionOff, config.CrashReportingOff)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	if got := b.CreateTag(17, 9); got != "" {
		t.Errorf("CreateTag = %q, want empty at level off", got)
	}
}

func TestBeaconCountersAreMonotonic(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})

	if id1, id2 := b.CreateID(), b.CreateID(); id1 != 1 || id2 != 2 {
		t.Errorf("CreateID sequence = %d, %d", id1, id2)
	}
	if s1, s2 := b.CreateSequenceNumber(), b.CreateSequenceNumber(); s1 != 1 || s2 != 2 {
		t.Errorf("CreateSequenceNumber sequence = %d, %d", s1, s2)
	}
}

func TestBeaconSendCommitsOnSuccess(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.StartSession()
	b.ReportEvent(1, "event")

	client := &stubClient{beaconResponses: []*StatusResponse{ParseStatusResponse("cp=1", 200, nil)}}
	resp := b.Send(stubClientProvider{client: client})

	if resp == nil || !resp.IsSuccessful() {
		t.Fatal("expected the successful response back")
	}
	if !b.IsEmpty() {
		t.Error("committed data must leave the cache")
	}
	if got := cache.NumBytesInCache(); got != 0 {
		t.Errorf("cache still accounts %d bytes", got)
	}
}

func TestBeaconSendRollsBackOnFailure(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.StartSession()
	bytesBefore := cache.NumBytesInCache()

	client := &stubClient{} // transport failure: returns nil
	if resp := b.Send(stubClientProvider{client: client}); resp != nil {
		t.Errorf("expected nil response, got %+v", resp)
	}

	if b.IsEmpty() {
		t.Error("failed send must keep the records")
	}
	if got := cache.NumBytesInCache(); got != bytesBefore {
		t.Errorf("cache bytes changed across rollback: %d != %d", got, bytesBefore)
	}
}

func TestBeaconSendReturnsThrottleResponse(t *testing.T) {
	cfg := newTestConfiguration(config.DataCollectionUserBehavior, config.CrashReportingOptIn)
	cache := caching.NewBeaconCache(logging.Discard())
	b := newTestBeacon(cfg, cache, &testTiming{now: 1000})
	b.StartSession()

	client := &stubClient{beaconResponses: []*StatusResponse{ParseStatusResponse("", 429, nil)}}
	resp := b.Send(stubClientProvider{client: client})

	if resp == nil || !resp.IsTooManyRequests() {
		t.Fatal("429 must surface to the caller")
	}
	if b.IsEmpty() {
		t.Error("throttled send must keep the records")
	}
}
