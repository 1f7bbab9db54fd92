package pulsekit

import (
	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/logging"
	"github.com/pulsekit/pulsekit/internal/protocol"
	"github.com/pulsekit/pulsekit/internal/providers"
)

// Default device description, used when the host supplies nothing.
const (
	DefaultApplicationVersion = Version
	DefaultOperatingSystem    = "PulseKit " + Version
	DefaultManufacturer       = "PulseKit"
	DefaultModelID            = "PulseKitDevice"
)

// DataCollectionLevel controls which record kinds the SDK may produce.
type DataCollectionLevel = config.DataCollectionLevel

// CrashReportingLevel controls crash record production.
type CrashReportingLevel = config.CrashReportingLevel

// DataCollectionLevel values.
const (
	DataCollectionOff          = config.DataCollectionOff
	DataCollectionPerformance  = config.DataCollectionPerformance
	DataCollectionUserBehavior = config.DataCollectionUserBehavior
)

// CrashReportingLevel values.
const (
	CrashReportingOff    = config.CrashReportingOff
	CrashReportingOptOut = config.CrashReportingOptOut
	CrashReportingOptIn  = config.CrashReportingOptIn
)

// Builder assembles an OpenKit instance. Endpoint URL, application id,
// and device id are mandatory; everything else has a sensible default.
// The builder is not safe for concurrent use; Build may be called once.
type Builder struct {
	endpointURL   string
	applicationID string
	deviceID      string

	applicationName    string
	applicationVersion string
	operatingSystem    string
	manufacturer       string
	modelID            string

	logger  Logger
	verbose bool

	dataCollectionLevel DataCollectionLevel
	crashReportingLevel CrashReportingLevel

	maxRecordAge     int64
	lowerMemoryBytes int64
	upperMemoryBytes int64

	trustAllCertificates bool
}

// NewBuilder creates a builder for the given analytics endpoint,
// application id, and device id.
func NewBuilder(endpointURL, applicationID, deviceID string) *Builder {
	return &Builder{
		endpointURL:         endpointURL,
		applicationID:       applicationID,
		deviceID:            deviceID,
		applicationVersion:  DefaultApplicationVersion,
		operatingSystem:     DefaultOperatingSystem,
		manufacturer:        DefaultManufacturer,
		modelID:             DefaultModelID,
		dataCollectionLevel: config.DataCollectionUserBehavior,
		crashReportingLevel: config.CrashReportingOptIn,
		maxRecordAge:        config.DefaultMaxRecordAge,
		lowerMemoryBytes:    config.DefaultCacheLowerBoundSize,
		upperMemoryBytes:    config.DefaultCacheUpperBoundSize,
	}
}

// WithApplicationName sets the application name shown by the cluster.
func (b *Builder) WithApplicationName(name string) *Builder {
	b.applicationName = name
	return b
}

// WithApplicationVersion overrides the default application version.
func (b *Builder) WithApplicationVersion(version string) *Builder {
	if version != "" {
		b.applicationVersion = version
	}
	return b
}

// WithOperatingSystem sets the reported operating system.
func (b *Builder) WithOperatingSystem(operatingSystem string) *Builder {
	if operatingSystem != "" {
		b.operatingSystem = operatingSystem
	}
	return b
}

// WithManufacturer sets the reported device manufacturer.
func (b *Builder) WithManufacturer(manufacturer string) *Builder {
	if manufacturer != "" {
		b.manufacturer = manufacturer
	}
	return b
}

// WithModelID sets the reported device model.
func (b *Builder) WithModelID(modelID string) *Builder {
	if modelID != "" {
		b.modelID = modelID
	}
	return b
}

// WithLogger routes SDK logging into the given logger.
func (b *Builder) WithLogger(logger Logger) *Builder {
	b.logger = logger
	return b
}

// WithVerboseLogging enables debug output on the default logger. It has
// no effect when a custom logger is supplied.
func (b *Builder) WithVerboseLogging() *Builder {
	b.verbose = true
	return b
}

// WithDataCollectionLevel sets the privacy data collection level.
func (b *Builder) WithDataCollectionLevel(level DataCollectionLevel) *Builder {
	b.dataCollectionLevel = level
	return b
}

// WithCrashReportingLevel sets the privacy crash reporting level.
func (b *Builder) WithCrashReportingLevel(level CrashReportingLevel) *Builder {
	b.crashReportingLevel = level
	return b
}

// WithBeaconCacheMaxRecordAge bounds the age of cached records in
// milliseconds. Non-positive disables time eviction.
func (b *Builder) WithBeaconCacheMaxRecordAge(maxRecordAgeMillis int64) *Builder {
	b.maxRecordAge = maxRecordAgeMillis
	return b
}

// WithBeaconCacheMemoryBounds sets the space eviction bounds in bytes:
// eviction starts above upper and trims down to lower.
func (b *Builder) WithBeaconCacheMemoryBounds(lowerBytes, upperBytes int64) *Builder {
	b.lowerMemoryBytes = lowerBytes
	b.upperMemoryBytes = upperBytes
	return b
}

// WithTrustAllCertificates disables certificate verification on the
// transport. For development setups only.
func (b *Builder) WithTrustAllCertificates() *Builder {
	b.trustAllCertificates = true
	return b
}

// Build assembles the OpenKit instance and starts its background
// workers. The instance begins its server handshake immediately.
func (b *Builder) Build() OpenKit {
	log := b.logger
	if log == nil {
		log = logging.NewDefault(b.verbose)
	}

	device := config.NewDevice(b.operatingSystem, b.manufacturer, b.modelID)
	privacy := config.NewPrivacyConfiguration(b.dataCollectionLevel, b.crashReportingLevel)
	cacheConfig := config.NewBeaconCacheConfiguration(b.maxRecordAge, b.lowerMemoryBytes, b.upperMemoryBytes)

	cfg := config.NewConfiguration(
		device,
		b.applicationName,
		b.applicationID,
		b.applicationVersion,
		b.endpointURL,
		config.ParseDeviceID(b.deviceID),
		b.deviceID,
		providers.NewSessionIDProvider(),
		privacy,
		cacheConfig,
		b.trustAllCertificates,
		protocol.PercentEncode,
	)

	return newKit(
		log,
		cfg,
		providers.NewTimingProvider(),
		providers.NewThreadIDProvider(),
		providers.NewPRNGenerator(),
		protocol.NewDefaultClientProvider(log),
	)
}
