package config

import (
	"strings"
	"testing"

	"github.com/pulsekit/pulsekit/internal/providers"
)

// stubStatus is a minimal StatusSource with explicit presence flags.
type stubStatus struct {
	capture, captureOK        bool
	captureErrs, captureEOK   bool
	captureCrash, captureCOK  bool
	sendInterval              int64
	maxBeaconSize             int32
	multiplicity              int32
	serverID                  int32
}

func (s stubStatus) CaptureEnabled() (bool, bool) { return s.capture, s.captureOK }
func (s stubStatus) CaptureErrors() (bool, bool)  { return s.captureErrs, s.captureEOK }
func (s stubStatus) CaptureCrashes() (bool, bool) { return s.captureCrash, s.captureCOK }
func (s stubStatus) SendIntervalMillis() int64    { return s.sendInterval }
func (s stubStatus) MaxBeaconSizeBytes() int32    { return s.maxBeaconSize }
func (s stubStatus) Multiplicity() int32          { return s.multiplicity }
func (s stubStatus) ServerID() int32              { return s.serverID }

func emptyStatus() stubStatus {
	return stubStatus{sendInterval: -1, maxBeaconSize: -1, multiplicity: -1, serverID: -1}
}

func newConfiguration(t *testing.T) *Configuration {
	t.Helper()
	return NewConfiguration(
		NewDevice("os", "mf", "md"),
		"AppName",
		"app&id",
		"2.0",
		"https://collector.example.com/mbeacon",
		99,
		"99",
		providers.NewSessionIDProviderWithInitialValue(0),
		NewPrivacyConfiguration(DataCollectionUserBehavior, CrashReportingOptIn),
		DefaultBeaconCacheConfiguration(),
		false,
		func(s string) string { return strings.ReplaceAll(s, "&", "%26") },
	)
}

func TestConfigurationDefaults(t *testing.T) {
	c := newConfiguration(t)

	if !c.IsCapture() {
		t.Error("capture should default to enabled")
	}
	if got := c.SendInterval(); got != DefaultSendInterval {
		t.Errorf("SendInterval = %d, want %d", got, DefaultSendInterval)
	}
	if got := c.MaxBeaconSize(); got != DefaultMaxBeaconSize {
		t.Errorf("MaxBeaconSize = %d, want %d", got, DefaultMaxBeaconSize)
	}
	if !c.IsCaptureErrors() || !c.IsCaptureCrashes() {
		t.Error("error/crash capture should default to enabled")
	}
	if got := c.Multiplicity(); got != DefaultMultiplicity {
		t.Errorf("Multiplicity = %d, want %d", got, DefaultMultiplicity)
	}
	if got := c.ServerID(); got != DefaultServerID {
		t.Errorf("ServerID = %d, want %d", got, DefaultServerID)
	}
	if got := c.ApplicationIDPercentEncoded(); got != "app%26id" {
		t.Errorf("ApplicationIDPercentEncoded = %q", got)
	}
}

func TestConfigurationUpdateSettings(t *testing.T) {
	c := newConfiguration(t)

	upd := emptyStatus()
	upd.capture, upd.captureOK = false, true
	upd.sendInterval = 60_000
	upd.maxBeaconSize = 10_240
	upd.multiplicity = 3
	upd.serverID = 5
	upd.captureErrs, upd.captureEOK = false, true
	upd.captureCrash, upd.captureCOK = false, true
	c.UpdateSettings(upd)

	if c.IsCapture() {
		t.Error("capture should be off")
	}
	if got := c.SendInterval(); got != 60_000 {
		t.Errorf("SendInterval = %d", got)
	}
	if got := c.MaxBeaconSize(); got != 10_240 {
		t.Errorf("MaxBeaconSize = %d", got)
	}
	if got := c.Multiplicity(); got != 3 {
		t.Errorf("Multiplicity = %d", got)
	}
	if got := c.ServerID(); got != 5 {
		t.Errorf("ServerID = %d", got)
	}
	if c.IsCaptureErrors() || c.IsCaptureCrashes() {
		t.Error("error/crash capture should be off")
	}
}

func TestConfigurationUpdateSettingsAbsentKeysUnchanged(t *testing.T) {
	c := newConfiguration(t)
	c.DisableCapture()

	c.UpdateSettings(emptyStatus())

	if c.IsCapture() {
		t.Error("absent cp must not re-enable capture")
	}
	if got := c.SendInterval(); got != DefaultSendInterval {
		t.Errorf("absent si changed SendInterval to %d", got)
	}
	if got := c.ServerID(); got != DefaultServerID {
		t.Errorf("absent id changed ServerID to %d", got)
	}
}

func TestConfigurationMultiplicityZeroDisablesCapture(t *testing.T) {
	c := newConfiguration(t)

	upd := emptyStatus()
	upd.capture, upd.captureOK = true, true
	upd.multiplicity = 0
	c.UpdateSettings(upd)

	if c.IsCapture() {
		t.Error("multiplicity 0 must disable capture")
	}
}

func TestConfigurationSessionNumbers(t *testing.T) {
	c := newConfiguration(t)
	if n1, n2 := c.CreateSessionNumber(), c.CreateSessionNumber(); n1 != 1 || n2 != 2 {
		t.Errorf("session numbers = %d, %d", n1, n2)
	}
}

func TestConfigurationHTTPClientConfigurationSnapshot(t *testing.T) {
	c := newConfiguration(t)
	upd := emptyStatus()
	upd.serverID = 9
	c.UpdateSettings(upd)

	snap := c.HTTPClientConfiguration()
	if snap.ServerID != 9 {
		t.Errorf("snapshot ServerID = %d, want 9", snap.ServerID)
	}
	if snap.BaseURL != "https://collector.example.com/mbeacon" {
		t.Errorf("snapshot BaseURL = %q", snap.BaseURL)
	}
	if snap.ApplicationID != "app%26id" {
		t.Errorf("snapshot ApplicationID = %q, want the percent-encoded form", snap.ApplicationID)
	}
}

func TestParseDeviceID(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"12345", 12345},
		{"  42\t", 42},
		{"-7", -7},
	}
	for _, tc := range cases {
		if got := ParseDeviceID(tc.in); got != tc.want {
			t.Errorf("ParseDeviceID(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	// Non-numeric ids hash deterministically.
	h1 := ParseDeviceID("device-abc")
	h2 := ParseDeviceID("device-abc")
	h3 := ParseDeviceID("device-xyz")
	if h1 != h2 {
		t.Error("hashing must be deterministic")
	}
	if h1 == h3 {
		t.Error("different ids should hash differently")
	}

	// Overlong input is truncated before hashing.
	long := strings.Repeat("a", 300)
	if ParseDeviceID(long) != ParseDeviceID(long[:MaxDeviceIDLength]) {
		t.Error("device id must be truncated to 250 characters")
	}
}

func TestPrivacyConfigurationTable(t *testing.T) {
	off := NewPrivacyConfiguration(DataCollectionOff, CrashReportingOff)
	perf := NewPrivacyConfiguration(DataCollectionPerformance, CrashReportingOptOut)
	user := NewPrivacyConfiguration(DataCollectionUserBehavior, CrashReportingOptIn)

	if !off.IsSessionReportingAllowed() || !perf.IsSessionReportingAllowed() || !user.IsSessionReportingAllowed() {
		t.Error("sessionStart is permitted at all levels")
	}
	if off.IsActionReportingAllowed() || !perf.IsActionReportingAllowed() || !user.IsActionReportingAllowed() {
		t.Error("actions are permitted at performance and above")
	}
	if off.IsWebRequestTracingAllowed() || !perf.IsWebRequestTracingAllowed() || !user.IsWebRequestTracingAllowed() {
		t.Error("web requests are permitted at performance and above")
	}
	if off.IsEventReportingAllowed() || perf.IsEventReportingAllowed() || !user.IsEventReportingAllowed() {
		t.Error("events are userBehavior only")
	}
	if off.IsValueReportingAllowed() || perf.IsValueReportingAllowed() || !user.IsValueReportingAllowed() {
		t.Error("values are userBehavior only")
	}
	if off.IsErrorReportingAllowed() || perf.IsErrorReportingAllowed() || !user.IsErrorReportingAllowed() {
		t.Error("errors are userBehavior only")
	}
	if off.IsUserIdentificationAllowed() || perf.IsUserIdentificationAllowed() || !user.IsUserIdentificationAllowed() {
		t.Error("identifyUser is userBehavior only")
	}
	if off.IsCrashReportingAllowed() || perf.IsCrashReportingAllowed() || !user.IsCrashReportingAllowed() {
		t.Error("crashes are optInCrashes only")
	}
	if off.IsDeviceIDSendingAllowed() || perf.IsDeviceIDSendingAllowed() || !user.IsDeviceIDSendingAllowed() {
		t.Error("the configured device id is userBehavior only")
	}
}
