package device

import (
	"errors"
	"io"

	"go.bug.st/serial"
)

// Opener opens the byte stream to the device. The returned reader must
// unblock pending reads when closed.
type Opener func(address string, baudRate int) (io.ReadCloser, error)

// SerialOpener opens a serial port in 8N1 mode.
func SerialOpener(address string, baudRate int) (io.ReadCloser, error) {
	port, err := serial.Open(address, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	return port, nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

func describeOpenError(err error) string {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return ""
	}

	switch portErr.Code() {
	case serial.PortNotFound:
		return "device absent"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.PortBusy:
		return "already in use"
	case serial.InvalidSpeed:
		return "unsupported baud rate"
	default:
		return ""
	}
}
