package protocol

import (
	"net/http"
	"strconv"
	"strings"
)

// Status response body keys.
const (
	respKeyCapture        = "cp"
	respKeySendInterval   = "si"
	respKeyMaxBeaconSize  = "bl"
	respKeyMonitorName    = "bn"
	respKeyServerID       = "id"
	respKeyMultiplicity   = "mp"
	respKeyCaptureErrors  = "er"
	respKeyCaptureCrashes = "cr"
)

// defaultRetryAfterMillis is used when a 429 response carries no (or an
// unparsable) Retry-After header.
const defaultRetryAfterMillis int64 = 10_000

// StatusResponse is a parsed server response: the key=value body plus
// the HTTP status code and headers. Absent keys keep their sentinel so
// configuration updates can leave the corresponding setting unchanged.
type StatusResponse struct {
	responseCode int
	headers      http.Header

	capture           bool
	captureSet        bool
	sendInterval      int64 // ms, -1 when absent
	maxBeaconSize     int32 // bytes, -1 when absent
	monitorName       string
	serverID          int32 // -1 when absent
	multiplicity      int32 // -1 when absent
	captureErrors     bool
	captureErrorsSet  bool
	captureCrashes    bool
	captureCrashesSet bool
}

// ParseStatusResponse parses a key=value&key=value body together with
// the transport-level status code and headers. Unknown keys and
// malformed values are skipped.
func ParseStatusResponse(body string, responseCode int, headers http.Header) *StatusResponse {
	r := &StatusResponse{
		responseCode:  responseCode,
		headers:       headers,
		sendInterval:  -1,
		maxBeaconSize: -1,
		serverID:      -1,
		multiplicity:  -1,
	}
	for _, token := range strings.Split(body, "&") {
		key, value, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		r.applyKeyValue(key, value)
	}
	return r
}

func (r *StatusResponse) applyKeyValue(key, value string) {
	switch key {
	case respKeyCapture:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil {
			r.capture = v == 1
			r.captureSet = true
		}
	case respKeySendInterval:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
			r.sendInterval = v * 1000 // seconds on the wire
		}
	case respKeyMaxBeaconSize:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil && v >= 0 {
			r.maxBeaconSize = int32(v) * 1024 // KiB on the wire
		}
	case respKeyMonitorName:
		r.monitorName = value
	case respKeyServerID:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil && v >= 0 {
			r.serverID = int32(v)
		}
	case respKeyMultiplicity:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil && v >= 0 {
			r.multiplicity = int32(v)
		}
	case respKeyCaptureErrors:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil {
			r.captureErrors = v == 1
			r.captureErrorsSet = true
		}
	case respKeyCaptureCrashes:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil {
			r.captureCrashes = v == 1
			r.captureCrashesSet = true
		}
	}
}

// ResponseCode returns the HTTP status code.
func (r *StatusResponse) ResponseCode() int { return r.responseCode }

// Headers returns the HTTP response headers.
func (r *StatusResponse) Headers() http.Header { return r.headers }

// MonitorName returns the informational monitor name (bn key).
func (r *StatusResponse) MonitorName() string { return r.monitorName }

// IsSuccessful reports a 2xx response.
func (r *StatusResponse) IsSuccessful() bool {
	return r.responseCode >= 200 && r.responseCode <= 299
}

// IsTooManyRequests reports server throttling.
func (r *StatusResponse) IsTooManyRequests() bool {
	return r.responseCode == http.StatusTooManyRequests
}

// IsErroneous reports any non-2xx response.
func (r *StatusResponse) IsErroneous() bool {
	return !r.IsSuccessful()
}

// RetryAfterMillis parses the Retry-After header of a throttled response
// as delay seconds. Missing or invalid values yield the default of 10
// seconds.
func (r *StatusResponse) RetryAfterMillis() int64 {
	if r.headers == nil {
		return defaultRetryAfterMillis
	}
	value := strings.TrimSpace(r.headers.Get("Retry-After"))
	if value == "" {
		return defaultRetryAfterMillis
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds < 0 {
		return defaultRetryAfterMillis
	}
	return seconds * 1000
}

// The config.StatusSource view.

// CaptureEnabled returns the cp flag; ok is false when absent.
func (r *StatusResponse) CaptureEnabled() (value, ok bool) { return r.capture, r.captureSet }

// CaptureErrors returns the er flag; ok is false when absent.
func (r *StatusResponse) CaptureErrors() (value, ok bool) { return r.captureErrors, r.captureErrorsSet }

// CaptureCrashes returns the cr flag; ok is false when absent.
func (r *StatusResponse) CaptureCrashes() (value, ok bool) {
	return r.captureCrashes, r.captureCrashesSet
}

// SendIntervalMillis returns the send interval in milliseconds, -1 when
// absent.
func (r *StatusResponse) SendIntervalMillis() int64 { return r.sendInterval }

// MaxBeaconSizeBytes returns the maximum beacon size in bytes, -1 when
// absent.
func (r *StatusResponse) MaxBeaconSizeBytes() int32 { return r.maxBeaconSize }

// Multiplicity returns the multiplicity, -1 when absent.
func (r *StatusResponse) Multiplicity() int32 { return r.multiplicity }

// ServerID returns the server id, -1 when absent.
func (r *StatusResponse) ServerID() int32 { return r.serverID }
