package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device // karalabe/hid.Device is an interface
	info   DeviceInfo
}

// Verify HIDAPIDevice implements Device interface.
var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// Write sends an output report to the device.
func (d *HIDAPIDevice) Write(data []byte) (int, error) {
	return d.device.Write(data)
}

// SendFeatureReport writes a feature report to the device.
func (d *HIDAPIDevice) SendFeatureReport(data []byte) (int, error) {
	return d.device.SendFeatureReport(data)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// EnumerateCoolers returns every HID interface exposed by the given
// vendor/product pair, in enumeration order.
// Returns an error if device enumeration fails.
func EnumerateCoolers(vendorID, productID uint16) ([]DeviceInfo, error) {
	devices, err := karalabehid.Enumerate(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, DeviceInfo{
			Path:      device.Path,
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
			Product:   device.Product,
			UsagePage: device.UsagePage,
			Interface: device.Interface,
		})
	}

	return infos, nil
}

// OpenCandidate opens the interface described by info, matching its platform
// path against a fresh enumeration. The interface can vanish between the
// enumeration that produced info and the open; that surfaces as an error.
func OpenCandidate(info DeviceInfo) (Device, error) {
	devices, err := karalabehid.Enumerate(info.VendorID, info.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, deviceInfo := range devices {
		if deviceInfo.Path != info.Path {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			return nil, err
		}

		return NewHIDAPIDevice(device, info), nil
	}

	return nil, fmt.Errorf("interface %s disappeared before open", info.Path)
}
