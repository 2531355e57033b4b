package devices

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"multi-serial-monitor/types"
)

// BugstTransport opens ports with go.bug.st/serial. A zero read timeout turns every Read
// into a poll of the driver buffer.
type BugstTransport struct {
	ReadTimeout time.Duration
}

func (t *BugstTransport) Open(location string, baudRate, stopBits int) (Port, error) {
	if err := validateLine(baudRate, stopBits); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if stopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	conn, err := serial.Open(location, mode)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadTimeout(t.ReadTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return conn, nil
}

// Ports lists detected ports. When the enumerator finds nothing the usual device names
// of the platform are offered instead.
func (t *BugstTransport) Ports() ([]types.PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return commonPortInfos(), err
	}

	infos := make([]types.PortInfo, 0, len(ports))
	for _, port := range ports {
		infos = append(infos, types.PortInfo{
			Name:    port.Name,
			IsUSB:   port.IsUSB,
			VID:     port.VID,
			PID:     port.PID,
			Product: port.Product,
		})
	}
	if len(infos) == 0 {
		infos = commonPortInfos()
	}
	return infos, nil
}
