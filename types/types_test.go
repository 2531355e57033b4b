package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := map[string]Encoding{
		"ascii":    EncodingASCII,
		"UTF-8":    EncodingUTF8,
		" utf8 ":   EncodingUTF8,
		"utf16":    EncodingUTF16,
		"utf-32":   EncodingUTF32,
		"US-ASCII": EncodingASCII,
	}
	for in, want := range tests {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEncoding("latin-1")
	assert.Error(t, err)
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(DeviceStatus{Name: "gps", State: StateError})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"error"`)
	assert.Equal(t, "unknown", State(42).String())

	var st DeviceStatus
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, StateError, st.State)
	assert.Error(t, json.Unmarshal([]byte(`{"state":"melted"}`), &st))
}

func TestConnectionConfigString(t *testing.T) {
	cfg := ConnectionConfig{Location: "/dev/ttyUSB0", BaudRate: 115200, StopBits: 1, Encoding: EncodingUTF8}
	assert.Equal(t, "/dev/ttyUSB0@115200/1/utf-8", cfg.String())
}

func TestPortDescriptor(t *testing.T) {
	plain := PortInfo{Name: "/dev/ttyS0"}
	assert.Equal(t, "/dev/ttyS0", plain.Descriptor())

	usb := PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R USB UART"}
	assert.Equal(t, "/dev/ttyUSB0 [0403:6001] FT232R USB UART", usb.Descriptor())

	assert.Equal(t, "/dev/ttyUSB0", LocationFromDescriptor(usb.Descriptor()))
	assert.Equal(t, "COM3", LocationFromDescriptor("COM3"))
	assert.Empty(t, LocationFromDescriptor("   "))
}
