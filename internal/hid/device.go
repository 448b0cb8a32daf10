// Package hid provides abstractions for interacting with the Ocypus cooler's
// HID interfaces: candidate discovery, session ownership and report delivery.
package hid

//go:generate mockgen -source=device.go -destination=mocks/device_mock.go -package=mocks

// DeviceInfo describes one candidate HID interface on the cooler.
type DeviceInfo struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Product   string
	UsagePage uint16
	Interface int
}

// Device represents an interface for HID device operations.
// This interface allows for mocking in tests.
type Device interface {
	// Write sends an output report to the device.
	// The first byte is the report ID.
	Write(data []byte) (int, error)

	// SendFeatureReport writes a feature report to the device.
	// The first byte is the report ID.
	SendFeatureReport(data []byte) (int, error)

	// Close closes the device handle.
	Close() error

	// Info returns information about the device.
	Info() DeviceInfo
}

// DeviceOpener is a function type that opens the interface described by a
// DeviceInfo.
type DeviceOpener func(info DeviceInfo) (Device, error)

// DeviceEnumerator is a function type that enumerates HID interfaces.
type DeviceEnumerator func(vendorID, productID uint16) ([]DeviceInfo, error)
