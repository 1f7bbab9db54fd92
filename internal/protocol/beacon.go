package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/caching"
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// SessionData is the view of an ended session the beacon serializes.
type SessionData interface {
	EndTime() int64
}

// ActionData is the view of a sealed action the beacon serializes.
type ActionData interface {
	ID() int32
	ParentID() int32
	Name() string
	StartTime() int64
	EndTime() int64
	StartSequenceNo() int32
	EndSequenceNo() int32
}

// WebRequestData is the view of a stopped web request tracer the beacon
// serializes.
type WebRequestData interface {
	URL() string
	StartTime() int64
	EndTime() int64
	StartSequenceNo() int32
	EndSequenceNo() int32
	ResponseCode() int32
	BytesSent() int32
	BytesReceived() int32
}

// Beacon serializes the records of exactly one session and mediates
// every write into the beacon cache. It owns the session's immutable
// prefix, the record id counter, and the sequence number counter.
type Beacon struct {
	log      logging.Logger
	cache    *caching.BeaconCache
	cfg      *config.Configuration
	timing   providers.TimingProvider
	threadID providers.ThreadIDProvider

	sessionNumber    int32
	sessionStartTime int64
	deviceID         int64
	clientIPAddress  string
	immutableData    string

	id         atomic.Int32
	sequenceNo atomic.Int32

	beaconCfg atomic.Pointer[config.BeaconConfiguration]
}

// NewBeacon creates the beacon for a new session. The device id is the
// configured one only when the privacy level permits sending it;
// otherwise a fresh random non-negative id is drawn for this beacon's
// lifetime.
func NewBeacon(
	log logging.Logger,
	cache *caching.BeaconCache,
	cfg *config.Configuration,
	clientIPAddress string,
	threadID providers.ThreadIDProvider,
	timing providers.TimingProvider,
	prng providers.PRNGenerator,
) *Beacon {
	b := &Beacon{
		log:              log,
		cache:            cache,
		cfg:              cfg,
		timing:           timing,
		threadID:         threadID,
		sessionNumber:    cfg.CreateSessionNumber(),
		sessionStartTime: timing.ProvideTimestampInMilliseconds(),
	}

	privacy := cfg.Privacy()
	if privacy.IsDeviceIDSendingAllowed() {
		b.deviceID = cfg.DeviceID()
	} else {
		b.deviceID = prng.NextPositiveInt64()
	}

	if clientIPAddress != "" && net.ParseIP(clientIPAddress) == nil {
		log.Warnf("Beacon: ignoring invalid client IP address %q", clientIPAddress)
		clientIPAddress = ""
	}
	b.clientIPAddress = clientIPAddress

	b.beaconCfg.Store(config.NewBeaconConfiguration(config.DefaultMultiplicity, privacy))
	b.immutableData = b.buildImmutableBeaconData()
	return b
}

// SessionNumber returns this beacon's session number.
func (b *Beacon) SessionNumber() int32 { return b.sessionNumber }

// SessionStartTime returns the timestamp the session was created at.
func (b *Beacon) SessionStartTime() int64 { return b.sessionStartTime }

// DeviceID returns the device id serialized by this beacon.
func (b *Beacon) DeviceID() int64 { return b.deviceID }

// ClientIPAddress returns the (validated) client IP, possibly empty.
func (b *Beacon) ClientIPAddress() string { return b.clientIPAddress }

// SetBeaconConfiguration swaps in a new per-session configuration.
func (b *Beacon) SetBeaconConfiguration(bc *config.BeaconConfiguration) {
	if bc != nil {
		b.beaconCfg.Store(bc)
	}
}

// BeaconConfiguration returns the current per-session configuration.
func (b *Beacon) BeaconConfiguration() *config.BeaconConfiguration {
	return b.beaconCfg.Load()
}

// CreateID allocates the next beacon-unique id (actions).
func (b *Beacon) CreateID() int32 {
	return b.id.Add(1)
}

// CreateSequenceNumber allocates the next beacon-unique sequence number.
func (b *Beacon) CreateSequenceNumber() int32 {
	return b.sequenceNo.Add(1)
}

// CurrentTimestamp returns the current time in milliseconds.
func (b *Beacon) CurrentTimestamp() int64 {
	return b.timing.ProvideTimestampInMilliseconds()
}

// CreateTag builds the value for the web request tag header. Returns the
// empty string when the privacy level forbids web request correlation.
func (b *Beacon) CreateTag(parentActionID, sequenceNo int32) string {
	if !b.cfg.Privacy().IsWebRequestTracingAllowed() {
		return ""
	}
	return fmt.Sprintf("%s_%d_%d_%s_%d_%s_%d_%d_%d",
		webRequestTagPrefix,
		ProtocolVersion,
		b.cfg.ServerID(),
		PercentEncode(strconv.FormatInt(b.deviceID, 10)),
		b.sessionNumber,
		b.cfg.ApplicationIDPercentEncoded(),
		parentActionID,
		b.threadID.ThreadID(),
		sequenceNo)
}

// StartSession adds the sessionStart record. Produced at every privacy
// level.
func (b *Beacon) StartSession() {
	if !b.capturingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeSessionStart, "")
	addKeyValueInt32(&sb, keyParentActionID, 0)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	addKeyValueInt64(&sb, keyTimeZero, 0)

	b.addEventData(b.sessionStartTime, sb.String())
}

// EndSession adds the sessionEnd record for an ended session.
func (b *Beacon) EndSession(session SessionData) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsActionReportingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeSessionEnd, "")
	addKeyValueInt32(&sb, keyParentActionID, 0)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(session.EndTime()))

	b.addEventData(session.EndTime(), sb.String())
}

// AddAction adds the record of a sealed action.
func (b *Beacon) AddAction(action ActionData) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsActionReportingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeAction, action.Name())
	addKeyValueInt32(&sb, keyActionID, action.ID())
	addKeyValueInt32(&sb, keyParentActionID, action.ParentID())
	addKeyValueInt32(&sb, keyStartSequenceNo, action.StartSequenceNo())
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(action.StartTime()))
	addKeyValueInt32(&sb, keyEndSequenceNo, action.EndSequenceNo())
	addKeyValueInt64(&sb, keyTimeOne, action.EndTime()-action.StartTime())

	b.addActionData(action.StartTime(), sb.String())
}

// AddWebRequest adds the record of a stopped web request tracer.
func (b *Beacon) AddWebRequest(parentActionID int32, tracer WebRequestData) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsWebRequestTracingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeWebRequest, tracer.URL())
	addKeyValueInt32(&sb, keyParentActionID, parentActionID)
	addKeyValueInt32(&sb, keyStartSequenceNo, tracer.StartSequenceNo())
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(tracer.StartTime()))
	addKeyValueInt32(&sb, keyEndSequenceNo, tracer.EndSequenceNo())
	addKeyValueInt64(&sb, keyTimeOne, tracer.EndTime()-tracer.StartTime())
	if tracer.BytesSent() >= 0 {
		addKeyValueInt32(&sb, keyBytesSent, tracer.BytesSent())
	}
	if tracer.BytesReceived() >= 0 {
		addKeyValueInt32(&sb, keyBytesReceived, tracer.BytesReceived())
	}
	if tracer.ResponseCode() >= 0 {
		addKeyValueInt32(&sb, keyResponseCode, tracer.ResponseCode())
	}

	b.addEventData(tracer.StartTime(), sb.String())
}

// ReportEvent adds a named event record.
func (b *Beacon) ReportEvent(actionID int32, name string) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsEventReportingAllowed() {
		return
	}
	b.buildEvent(eventTypeNamedEvent, name, actionID, "")
}

// ReportIntValue adds a 32-bit integer value record.
func (b *Beacon) ReportIntValue(actionID int32, name string, value int32) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsValueReportingAllowed() {
		return
	}
	b.buildEvent(eventTypeValueInt, name, actionID, strconv.FormatInt(int64(value), 10))
}

// ReportDoubleValue adds a floating point value record.
func (b *Beacon) ReportDoubleValue(actionID int32, name string, value float64) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsValueReportingAllowed() {
		return
	}
	b.buildEvent(eventTypeValueDouble, name, actionID, strconv.FormatFloat(value, 'f', -1, 64))
}

// ReportStringValue adds a string value record. The value is truncated
// like a name.
func (b *Beacon) ReportStringValue(actionID int32, name string, value string) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsValueReportingAllowed() {
		return
	}
	b.buildEvent(eventTypeValueString, name, actionID, truncate(value, maxNameLength))
}

// ReportError adds an error record.
func (b *Beacon) ReportError(actionID int32, name string, code int32, reason string) {
	if !b.capturingAllowed() || !b.cfg.IsCaptureErrors() || !b.cfg.Privacy().IsErrorReportingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeError, name)
	addKeyValueInt32(&sb, keyParentActionID, actionID)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	now := b.CurrentTimestamp()
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(now))
	addKeyValueInt32(&sb, keyErrorCode, code)
	addKeyValueString(&sb, keyErrorReason, truncate(reason, maxReasonLength))

	b.addEventData(now, sb.String())
}

// ReportCrash adds a crash record. Crashes are session-level; they have
// no parent action.
func (b *Beacon) ReportCrash(name, reason, stacktrace string) {
	if !b.capturingAllowed() || !b.cfg.IsCaptureCrashes() || !b.cfg.Privacy().IsCrashReportingAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeCrash, name)
	addKeyValueInt32(&sb, keyParentActionID, 0)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	now := b.CurrentTimestamp()
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(now))
	addKeyValueString(&sb, keyErrorReason, truncate(reason, maxReasonLength))
	addKeyValueString(&sb, keyErrorStacktrace, truncateStacktrace(stacktrace))

	b.addEventData(now, sb.String())
}

// IdentifyUser adds an identifyUser record.
func (b *Beacon) IdentifyUser(userTag string) {
	if !b.capturingAllowed() || !b.cfg.Privacy().IsUserIdentificationAllowed() {
		return
	}

	var sb strings.Builder
	b.appendBasicEventData(&sb, eventTypeIdentifyUser, userTag)
	addKeyValueInt32(&sb, keyParentActionID, 0)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	now := b.CurrentTimestamp()
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(now))

	b.addEventData(now, sb.String())
}

// Send drains this session's cached records chunk by chunk and posts
// them. Committed chunks are removed from the cache; a failed post rolls
// the current chunk back for the next cycle. Returns the last successful
// response, or the throttling response when the server answered 429, or
// nil when every attempt failed.
func (b *Beacon) Send(provider ClientProvider) *StatusResponse {
	client := provider.CreateClient(b.cfg.HTTPClientConfiguration())

	var lastResponse *StatusResponse
	prefix := b.immutableData + beaconDataDelimiter + b.buildMutableBeaconData()
	for {
		chunk := b.cache.GetNextBeaconChunk(b.sessionNumber, prefix, int64(b.cfg.MaxBeaconSize()), beaconDataDelimiter)
		if chunk == "" {
			return lastResponse
		}

		resp := client.SendBeaconRequest(b.clientIPAddress, []byte(chunk))
		switch {
		case resp == nil:
			b.cache.ResetChunkedData(b.sessionNumber)
			return lastResponse
		case resp.IsTooManyRequests():
			b.cache.ResetChunkedData(b.sessionNumber)
			return resp
		case resp.IsErroneous():
			b.cache.ResetChunkedData(b.sessionNumber)
			return lastResponse
		}

		b.cache.RemoveChunkedData(b.sessionNumber)
		lastResponse = resp
	}
}

// IsEmpty reports whether this session has no cached data.
func (b *Beacon) IsEmpty() bool {
	return b.cache.IsEmpty(b.sessionNumber)
}

// ClearData drops every record this session has accumulated.
func (b *Beacon) ClearData() {
	b.cache.PurgeCacheEntry(b.sessionNumber)
}

// capturingAllowed combines the server-side capture flag with the
// session's multiplicity.
func (b *Beacon) capturingAllowed() bool {
	return b.cfg.IsCapture() && b.beaconCfg.Load().CapturingAllowed()
}

// buildEvent serializes the common event shape (named event and the
// three value kinds) and hands it to the cache.
func (b *Beacon) buildEvent(et eventType, name string, parentActionID int32, value string) {
	var sb strings.Builder
	b.appendBasicEventData(&sb, et, name)
	addKeyValueInt32(&sb, keyParentActionID, parentActionID)
	addKeyValueInt32(&sb, keyStartSequenceNo, b.CreateSequenceNumber())
	now := b.CurrentTimestamp()
	addKeyValueInt64(&sb, keyTimeZero, b.timeSinceSessionStart(now))
	if value != "" || et == eventTypeValueString {
		addKeyValueString(&sb, keyValue, value)
	}

	b.addEventData(now, sb.String())
}

// appendBasicEventData starts a record with its type, truncated name
// (when present), and the reporting thread id.
func (b *Beacon) appendBasicEventData(sb *strings.Builder, et eventType, name string) {
	addKeyValueInt32(sb, keyEventType, int32(et))
	if name != "" {
		addKeyValueString(sb, keyName, truncate(name, maxNameLength))
	}
	addKeyValueInt32(sb, keyThreadID, b.threadID.ThreadID())
}

// buildImmutableBeaconData serializes the per-session prefix.
func (b *Beacon) buildImmutableBeaconData() string {
	var sb strings.Builder
	privacy := b.cfg.Privacy()
	device := b.cfg.Device()

	addKeyValueInt32(&sb, keyProtocolVersion, ProtocolVersion)
	addKeyValueString(&sb, keyAgentVersion, AgentVersion)
	addKeyValueString(&sb, keyApplicationID, b.cfg.ApplicationID())
	addKeyValueString(&sb, keyApplicationName, b.cfg.ApplicationName())
	if v := b.cfg.ApplicationVersion(); v != "" {
		addKeyValueString(&sb, keyApplicationVersion, v)
	}
	addKeyValueInt32(&sb, keyPlatformType, PlatformType)
	addKeyValueString(&sb, keyAgentTechnologyType, AgentTechnologyType)
	addKeyValueInt64(&sb, keyVisitorID, b.deviceID)
	addKeyValueInt32(&sb, keySessionNumber, b.sessionNumber)
	if b.clientIPAddress != "" {
		addKeyValueString(&sb, keyClientIPAddress, b.clientIPAddress)
	}
	addKeyValueString(&sb, keyDeviceOS, device.OperatingSystem())
	addKeyValueString(&sb, keyDeviceManufacturer, device.Manufacturer())
	addKeyValueString(&sb, keyDeviceModel, device.ModelID())
	addKeyValueInt32(&sb, keyDataCollectionLevel, int32(privacy.DataCollectionLevel()))
	addKeyValueInt32(&sb, keyCrashReportingLevel, int32(privacy.CrashReportingLevel()))

	// The prefix is the start of the payload; drop the leading '&'.
	return strings.TrimPrefix(sb.String(), beaconDataDelimiter)
}

// buildMutableBeaconData serializes the per-send block: multiplicity,
// session start time, and transmission time.
func (b *Beacon) buildMutableBeaconData() string {
	var sb strings.Builder
	addKeyValueInt32(&sb, keyMultiplicity, b.beaconCfg.Load().Multiplicity())
	addKeyValueInt64(&sb, keySessionStartTime, b.sessionStartTime)
	addKeyValueInt64(&sb, keyTransmissionTime, b.CurrentTimestamp())
	return strings.TrimPrefix(sb.String(), beaconDataDelimiter)
}

func (b *Beacon) timeSinceSessionStart(timestamp int64) int64 {
	return timestamp - b.sessionStartTime
}

// The cache joins records with the delimiter itself, so records are
// stored without their leading '&'.
func (b *Beacon) addEventData(timestamp int64, data string) {
	b.cache.AddEventData(b.sessionNumber, timestamp, strings.TrimPrefix(data, beaconDataDelimiter))
}

func (b *Beacon) addActionData(timestamp int64, data string) {
	b.cache.AddActionData(b.sessionNumber, timestamp, strings.TrimPrefix(data, beaconDataDelimiter))
}

// Serialization helpers. Every pair is emitted as &key=value with the
// value percent-encoded.

func addKeyValueString(sb *strings.Builder, key, value string) {
	appendKey(sb, key)
	sb.WriteString(PercentEncode(value))
}

func addKeyValueInt32(sb *strings.Builder, key string, value int32) {
	appendKey(sb, key)
	sb.WriteString(strconv.FormatInt(int64(value), 10))
}

func addKeyValueInt64(sb *strings.Builder, key string, value int64) {
	appendKey(sb, key)
	sb.WriteString(strconv.FormatInt(value, 10))
}

func appendKey(sb *strings.Builder, key string) {
	sb.WriteString(beaconDataDelimiter)
	sb.WriteString(key)
	sb.WriteString("=")
}

// truncate cuts s to at most max characters, counting UTF-8 runes, not
// bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// truncateStacktrace cuts overlong stacktraces at the last line break
// before the limit so no frame is emitted half.
func truncateStacktrace(st string) string {
	if len(st) <= maxStacktraceLength {
		return st
	}
	cut := st[:maxStacktraceLength]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
