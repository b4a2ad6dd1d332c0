package usb

import (
	"os/exec"
	"strconv"

	"github.com/google/gousb"
)

type DeviceType int

const (
	Unknown DeviceType = iota
	// Modems
	ModemSIM7600
	ModemSIM7070
	// Cameras
	CameraUVC
)

var (
	SupportedDevices = DeviceMap{
		ModemSIM7600: {
			VendorID:  0x1e0e,
			ProductID: 0x9001,
			Name:      "Simtech SIM7[5|6]00",
		},
		ModemSIM7070: {
			VendorID:  0x1e0e,
			ProductID: 0x9206,
			Name:      "Simtech SIM70[0|8]0",
		},
		CameraUVC: {
			VendorID:  0x046d,
			ProductID: 0x0825,
			Name:      "Logitech C270",
		},
	}
)

type Device struct {
	ResetCMD  *exec.Cmd
	Name      string
	VendorID  gousb.ID
	ProductID gousb.ID
}

type DeviceMap map[DeviceType]*Device

type DeviceTuple struct {
	*Device
	DeviceType
}

func FindSupportedDeviceTuple(vendorID gousb.ID, productID gousb.ID) (DeviceTuple, bool) {
	for k, device := range SupportedDevices {
		if device.VendorID == vendorID && device.ProductID == productID {
			return DeviceTuple{DeviceType: k, Device: device}, true
		}
	}
	return DeviceTuple{}, false
}

func ParseHexUINT16(str string) (uint16, error) {
	val, err := strconv.ParseUint(str, 16, 16)
	if err != nil {
		return 0, err
	}

	return uint16(val), nil
}
