package config

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pulsekit/pulsekit/internal/providers"
)

// Runtime setting defaults, used until the first status response arrives.
const (
	DefaultSendInterval  int64 = 120_000 // ms
	DefaultMaxBeaconSize int32 = 30_720  // bytes
	DefaultServerID      int32 = 1

	// MaxDeviceIDLength is the maximum length of a configured device id
	// string before it is parsed or hashed.
	MaxDeviceIDLength = 250
)

// StatusSource is the view of a parsed status response the configuration
// consumes. Boolean getters return ok=false when the key was absent;
// numeric getters return -1 when absent. Absent means unchanged.
type StatusSource interface {
	CaptureEnabled() (value, ok bool)
	CaptureErrors() (value, ok bool)
	CaptureCrashes() (value, ok bool)
	SendIntervalMillis() int64
	MaxBeaconSizeBytes() int32
	Multiplicity() int32
	ServerID() int32
}

// Configuration combines the static identity of one SDK instance with the
// runtime settings the server mutates through status responses. Runtime
// fields are atomics so beacon-send passes read consistent snapshots
// without taking the update mutex.
type Configuration struct {
	device              *Device
	applicationName     string
	applicationID       string
	applicationIDPctEnc string
	applicationVersion  string
	endpointURL         string
	deviceID            int64
	origDeviceID        string
	sessionIDProvider   providers.SessionIDProvider
	privacy             *PrivacyConfiguration
	cacheConfig         *BeaconCacheConfiguration
	trustAll            bool

	// mu serializes compound updates from status responses. Individual
	// field reads go through the atomics and never block writers.
	mu             sync.Mutex
	capture        atomic.Bool
	sendInterval   atomic.Int64
	maxBeaconSize  atomic.Int32
	captureErrors  atomic.Bool
	captureCrashes atomic.Bool
	multiplicity   atomic.Int32
	serverID       atomic.Int32
}

// NewConfiguration assembles a configuration from the builder inputs.
// percentEncode is the protocol's percent encoder; it is passed in to
// keep this package below the protocol package in the dependency order.
func NewConfiguration(
	device *Device,
	applicationName string,
	applicationID string,
	applicationVersion string,
	endpointURL string,
	deviceID int64,
	origDeviceID string,
	sessionIDProvider providers.SessionIDProvider,
	privacy *PrivacyConfiguration,
	cacheConfig *BeaconCacheConfiguration,
	trustAll bool,
	percentEncode func(string) string,
) *Configuration {
	c := &Configuration{
		device:              device,
		applicationName:     applicationName,
		applicationID:       applicationID,
		applicationIDPctEnc: percentEncode(applicationID),
		applicationVersion:  applicationVersion,
		endpointURL:         endpointURL,
		deviceID:            deviceID,
		origDeviceID:        origDeviceID,
		sessionIDProvider:   sessionIDProvider,
		privacy:             privacy,
		cacheConfig:         cacheConfig,
		trustAll:            trustAll,
	}
	c.capture.Store(true)
	c.sendInterval.Store(DefaultSendInterval)
	c.maxBeaconSize.Store(DefaultMaxBeaconSize)
	c.captureErrors.Store(true)
	c.captureCrashes.Store(true)
	c.multiplicity.Store(DefaultMultiplicity)
	c.serverID.Store(DefaultServerID)
	return c
}

// UpdateSettings applies a successful status response. Keys absent from
// the response leave the corresponding setting unchanged. The whole
// update runs under one mutex so a beacon-send pass never observes a
// half-applied response.
func (c *Configuration) UpdateSettings(resp StatusSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := resp.CaptureEnabled(); ok {
		c.capture.Store(v)
	}
	if v := resp.SendIntervalMillis(); v >= 0 {
		c.sendInterval.Store(v)
	}
	if v := resp.MaxBeaconSizeBytes(); v >= 0 {
		c.maxBeaconSize.Store(v)
	}
	if v := resp.Multiplicity(); v >= 0 {
		c.multiplicity.Store(v)
		if v == 0 {
			c.capture.Store(false)
		}
	}
	if v := resp.ServerID(); v >= 0 {
		c.serverID.Store(v)
	}
	if v, ok := resp.CaptureErrors(); ok {
		c.captureErrors.Store(v)
	}
	if v, ok := resp.CaptureCrashes(); ok {
		c.captureCrashes.Store(v)
	}
}

// EnableCapture turns data capture on.
func (c *Configuration) EnableCapture() { c.capture.Store(true) }

// DisableCapture turns data capture off.
func (c *Configuration) DisableCapture() { c.capture.Store(false) }

// IsCapture reports whether data capture is currently enabled.
func (c *Configuration) IsCapture() bool { return c.capture.Load() }

// CreateSessionNumber allocates the next session number.
func (c *Configuration) CreateSessionNumber() int32 { return c.sessionIDProvider.NextSessionID() }

// HTTPClientConfiguration snapshots the current connection settings.
func (c *Configuration) HTTPClientConfiguration() *HTTPClientConfiguration {
	return NewHTTPClientConfiguration(c.endpointURL, c.serverID.Load(), c.applicationIDPctEnc, c.trustAll)
}

func (c *Configuration) Device() *Device                              { return c.device }
func (c *Configuration) ApplicationName() string                     { return c.applicationName }
func (c *Configuration) ApplicationID() string                       { return c.applicationID }
func (c *Configuration) ApplicationIDPercentEncoded() string         { return c.applicationIDPctEnc }
func (c *Configuration) ApplicationVersion() string                  { return c.applicationVersion }
func (c *Configuration) EndpointURL() string                         { return c.endpointURL }
func (c *Configuration) DeviceID() int64                             { return c.deviceID }
func (c *Configuration) OrigDeviceID() string                        { return c.origDeviceID }
func (c *Configuration) Privacy() *PrivacyConfiguration              { return c.privacy }
func (c *Configuration) CacheConfiguration() *BeaconCacheConfiguration { return c.cacheConfig }

func (c *Configuration) SendInterval() int64   { return c.sendInterval.Load() }
func (c *Configuration) MaxBeaconSize() int32  { return c.maxBeaconSize.Load() }
func (c *Configuration) IsCaptureErrors() bool { return c.captureErrors.Load() }
func (c *Configuration) IsCaptureCrashes() bool { return c.captureCrashes.Load() }
func (c *Configuration) Multiplicity() int32   { return c.multiplicity.Load() }
func (c *Configuration) ServerID() int32       { return c.serverID.Load() }

// ParseDeviceID turns the configured device id string into the 64-bit id
// the protocol carries. A decimal integer (optionally signed, surrounded
// by whitespace) is used directly; anything else is hashed. Input longer
// than MaxDeviceIDLength characters is truncated first.
func ParseDeviceID(deviceID string) int64 {
	if len(deviceID) > MaxDeviceIDLength {
		deviceID = deviceID[:MaxDeviceIDLength]
	}
	trimmed := strings.TrimSpace(deviceID)
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return id
	}
	return hashDeviceID(deviceID)
}

// hashDeviceID derives a stable 64-bit id from a non-numeric device id
// string (FNV-1a).
func hashDeviceID(deviceID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(deviceID))
	return int64(h.Sum64())
}
