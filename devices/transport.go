package devices

import (
	"fmt"
	"runtime"

	"multi-serial-monitor/types"
)

// Port is an open serial line. Read must return promptly with zero bytes when nothing is
// buffered; it never waits for more input.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Transport opens ports and lists the ones present on the machine.
type Transport interface {
	Open(location string, baudRate, stopBits int) (Port, error)
	Ports() ([]types.PortInfo, error)
}

// NewTransport returns the backend selected by name ("bugst" or "jacobsa").
func NewTransport(driver string) (Transport, error) {
	switch driver {
	case "", "bugst":
		return &BugstTransport{}, nil
	case "jacobsa":
		return &JacobsaTransport{}, nil
	}
	return nil, fmt.Errorf("unknown serial driver %q", driver)
}

// getCommonPorts returns common serial port names based on the operating system
func getCommonPorts() []string {
	switch runtime.GOOS {
	case "windows":
		var ports []string
		for i := 1; i <= 20; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	case "linux":
		return []string{
			"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3",
			"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2", "/dev/ttyACM3",
			"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2", "/dev/ttyS3",
		}
	case "darwin": // macOS
		return []string{
			"/dev/cu.usbserial", "/dev/cu.usbmodem",
			"/dev/tty.usbserial", "/dev/tty.usbmodem",
			"/dev/cu.SLAB_USBtoUART", "/dev/tty.SLAB_USBtoUART",
		}
	default:
		return []string{}
	}
}

func commonPortInfos() []types.PortInfo {
	names := getCommonPorts()
	infos := make([]types.PortInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, types.PortInfo{Name: name})
	}
	return infos
}

func validateLine(baudRate, stopBits int) error {
	if baudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, baudRate)
	}
	if stopBits != 1 && stopBits != 2 {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, stopBits)
	}
	return nil
}
