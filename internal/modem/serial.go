package modem

import (
	"go.bug.st/serial"
)

const (
	DefaultDevice   = "/dev/ttyUSB2"
	DefaultBaudRate = 115200
)

// SerialDialer opens the modem management tty with 8-N-1 framing
type SerialDialer struct {
	Device   string
	BaudRate int
}

func NewSerialDialer(device string, baudRate int) *SerialDialer {
	if device == "" {
		device = DefaultDevice
	}
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	return &SerialDialer{Device: device, BaudRate: baudRate}
}

func (d *SerialDialer) Dial() (Transport, error) {
	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.Device, mode)
	if err != nil {
		return nil, err
	}

	// Drop whatever the modem emitted while nobody was listening
	_ = port.ResetInputBuffer()

	return port, nil
}
