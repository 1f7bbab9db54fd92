// Package protocol implements the beacon wire protocol: the line
// oriented key=value serialization, the status response parsing, and the
// HTTP client the send worker drives.
package protocol

// Protocol identity constants, serialized into every beacon and into
// the request query string.
const (
	// ProtocolVersion is the beacon protocol version.
	ProtocolVersion = 3

	// AgentVersion identifies this SDK build towards the server.
	AgentVersion = "1.4.0"

	// PlatformType tags the producing platform.
	PlatformType = 1

	// AgentTechnologyType tags the agent implementation.
	AgentTechnologyType = "okgo"
)

// eventType is the numeric record kind in the et beacon key.
type eventType int32

const (
	eventTypeAction       eventType = 1
	eventTypeNamedEvent   eventType = 10
	eventTypeValueString  eventType = 11
	eventTypeValueInt     eventType = 12
	eventTypeValueDouble  eventType = 13
	eventTypeSessionStart eventType = 18
	eventTypeSessionEnd   eventType = 19
	eventTypeWebRequest   eventType = 30
	eventTypeError        eventType = 40
	eventTypeCrash        eventType = 50
	eventTypeIdentifyUser eventType = 60
)

// Beacon key names. The short forms are fixed by the server-side parser.
const (
	keyProtocolVersion     = "vv"
	keyAgentVersion        = "va"
	keyApplicationID       = "ap"
	keyApplicationName     = "an"
	keyApplicationVersion  = "vn"
	keyPlatformType        = "pt"
	keyAgentTechnologyType = "tt"
	keyVisitorID           = "vi"
	keySessionNumber       = "sn"
	keyClientIPAddress     = "ip"
	keyDeviceOS            = "os"
	keyDeviceManufacturer  = "mf"
	keyDeviceModel         = "md"
	keyDataCollectionLevel = "dl"
	keyCrashReportingLevel = "cl"

	keyMultiplicity     = "mp"
	keySessionStartTime = "tv"
	keyTransmissionTime = "tx"

	keyEventType       = "et"
	keyName            = "na"
	keyThreadID        = "it"
	keyActionID        = "ca"
	keyParentActionID  = "pa"
	keyStartSequenceNo = "s0"
	keyTimeZero        = "t0"
	keyEndSequenceNo   = "s1"
	keyTimeOne         = "t1"
	keyValue           = "vl"
	keyErrorCode       = "ev"
	keyErrorReason     = "rs"
	keyErrorStacktrace = "st"
	keyBytesSent       = "bs"
	keyBytesReceived   = "br"
	keyResponseCode    = "rc"
)

// Truncation bounds for host-supplied strings entering the protocol.
const (
	maxNameLength       = 250
	maxReasonLength     = 1000
	maxStacktraceLength = 128_000
)

// beaconDataDelimiter separates records within one beacon chunk.
const beaconDataDelimiter = "&"

// webRequestTagPrefix starts every web request tag.
const webRequestTagPrefix = "MT"
