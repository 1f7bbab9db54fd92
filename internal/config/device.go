package config

// Device describes the host device. Purely informational; the values are
// serialized into the immutable beacon prefix.
type Device struct {
	operatingSystem string
	manufacturer    string
	modelID         string
}

// NewDevice creates a device description.
func NewDevice(operatingSystem, manufacturer, modelID string) *Device {
	return &Device{
		operatingSystem: operatingSystem,
		manufacturer:    manufacturer,
		modelID:         modelID,
	}
}

func (d *Device) OperatingSystem() string { return d.operatingSystem }
func (d *Device) Manufacturer() string    { return d.manufacturer }
func (d *Device) ModelID() string         { return d.modelID }
