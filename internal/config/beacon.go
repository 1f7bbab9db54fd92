package config

// DefaultMultiplicity is the multiplicity assigned when the server did
// not supply one. 1 means "send every beacon".
const DefaultMultiplicity int32 = 1

// BeaconConfiguration carries the per-session settings the send state
// machine assigns once the server acknowledged the session: the
// multiplicity sampling factor plus the privacy levels. Instances are
// immutable; updates swap in a new value.
type BeaconConfiguration struct {
	multiplicity int32
	privacy      *PrivacyConfiguration
}

// NewBeaconConfiguration creates a beacon configuration.
func NewBeaconConfiguration(multiplicity int32, privacy *PrivacyConfiguration) *BeaconConfiguration {
	return &BeaconConfiguration{multiplicity: multiplicity, privacy: privacy}
}

func (b *BeaconConfiguration) Multiplicity() int32            { return b.multiplicity }
func (b *BeaconConfiguration) Privacy() *PrivacyConfiguration { return b.privacy }

// CapturingAllowed reports whether this session may emit data at all. A
// multiplicity of 0 disables the session.
func (b *BeaconConfiguration) CapturingAllowed() bool { return b.multiplicity > 0 }

// WithMultiplicity returns a copy with the multiplicity replaced.
func (b *BeaconConfiguration) WithMultiplicity(multiplicity int32) *BeaconConfiguration {
	return &BeaconConfiguration{multiplicity: multiplicity, privacy: b.privacy}
}
