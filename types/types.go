package types

import (
	"fmt"
	"strings"
	"time"
)

// Encoding names the byte-to-text decoding applied to a connection's input.
type Encoding string

const (
	EncodingASCII Encoding = "ascii"
	EncodingUTF8  Encoding = "utf-8"
	EncodingUTF16 Encoding = "utf-16"
	EncodingUTF32 Encoding = "utf-32"
)

// ParseEncoding accepts the canonical names plus the common spellings without a dash.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii", "us-ascii":
		return EncodingASCII, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "utf-16", "utf16":
		return EncodingUTF16, nil
	case "utf-32", "utf32":
		return EncodingUTF32, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

// ConnectionConfig is everything needed to open one serial line.
type ConnectionConfig struct {
	Location string   `json:"location" mapstructure:"location"`
	BaudRate int      `json:"baud_rate" mapstructure:"baud_rate"`
	StopBits int      `json:"stop_bits" mapstructure:"stop_bits"`
	Encoding Encoding `json:"encoding" mapstructure:"encoding"`
}

func (c ConnectionConfig) String() string {
	return fmt.Sprintf("%s@%d/%d/%s", c.Location, c.BaudRate, c.StopBits, c.Encoding)
}

// State is the lifecycle position of a connection.
type State int

const (
	StateUnconfigured State = iota
	StateOpen
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateUnconfigured, StateOpen, StateClosed, StateError} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// DeviceStatus is the read-only view of a connection handed to the UI.
type DeviceStatus struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	State        State            `json:"state"`
	Detail       string           `json:"detail,omitempty"`
	Config       ConnectionConfig `json:"config"`
	Selected     bool             `json:"selected"`
	BytesRead    uint64           `json:"bytes_read"`
	BytesWritten uint64           `json:"bytes_written"`
}

// PortInfo describes one port found by the transport enumerator.
type PortInfo struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Product string `json:"product,omitempty"`
}

// Descriptor renders the port the way the location selector shows it. The location is
// always the first whitespace separated field.
func (p PortInfo) Descriptor() string {
	if !p.IsUSB {
		return p.Name
	}
	desc := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		desc += " " + p.Product
	}
	return desc
}

// LocationFromDescriptor extracts the device path from a selector entry.
func LocationFromDescriptor(desc string) string {
	fields := strings.Fields(desc)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// OutputChunk is one tagged piece of decoded input in display order.
type OutputChunk struct {
	Sequence uint64    `json:"sequence"`
	Source   string    `json:"source"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

type LogMessage struct {
	Time    string `json:"time"`
	Message string `json:"message"`
	Type    string `json:"type"` // "device", "monitor", "system"
}
