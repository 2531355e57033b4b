package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-serial-monitor/monitor"
	"multi-serial-monitor/registry"
	"multi-serial-monitor/testutil"
	"multi-serial-monitor/types"
)

func newTestModel(t *testing.T) (*Model, *testutil.MockTransport) {
	t.Helper()
	tr := testutil.NewMockTransport()
	reg := registry.New(tr, nil)
	m := New(reg, monitor.NewSink(0), "\r\n")
	t.Cleanup(func() {
		m.Close()
		reg.Close()
	})
	return m, tr
}

func TestExecuteDeviceCommands(t *testing.T) {
	m, tr := newTestModel(t)

	status, quit := m.execute(":new gps")
	assert.False(t, quit)
	assert.Equal(t, "added gps", status)
	assert.Equal(t, "gps", m.registry.Selected().Name())

	status, _ = m.execute(":apply /dev/ttyUSB0 115200 2 utf-8")
	assert.Equal(t, "gps open on /dev/ttyUSB0@115200/2/utf-8", status)
	assert.Equal(t, []testutil.OpenCall{{Location: "/dev/ttyUSB0", BaudRate: 115200, StopBits: 2}}, tr.OpenCalls())

	status, _ = m.execute(":rename gnss")
	assert.Equal(t, "renamed to gnss", status)

	status, _ = m.execute(":select device_0")
	assert.Equal(t, "selected device_0", status)
	status, _ = m.execute(":select nope")
	assert.Equal(t, `no device named "nope"`, status)
	assert.Equal(t, "device_0", m.registry.Selected().Name())

	m.execute(":select gnss")
	status, _ = m.execute(":close")
	assert.Equal(t, "gnss closed", status)
	assert.True(t, tr.Port("/dev/ttyUSB0").Closed())

	status, _ = m.execute(":rm")
	assert.Equal(t, "removed gnss", status)
	assert.Equal(t, []string{"device_0"}, m.registry.Names())
}

func TestExecuteReportsErrors(t *testing.T) {
	m, tr := newTestModel(t)
	tr.FailOpen("/nonexistent", errors.New("no such file or directory"))

	status, _ := m.execute(":apply /nonexistent")
	assert.Contains(t, status, "no such file")
	assert.Equal(t, types.StateError, m.registry.Selected().State())

	status, _ = m.execute(":apply")
	assert.Contains(t, status, "usage")

	status, _ = m.execute(":apply /dev/ttyS0 fast")
	assert.Contains(t, status, "baud rate")

	status, _ = m.execute(":rename")
	assert.Contains(t, status, "usage")

	m.execute(":new gps")
	status, _ = m.execute(":new gps")
	assert.Contains(t, status, "already exists")

	status, _ = m.execute(":frobnicate")
	assert.Contains(t, status, "unknown command")
}

func TestExecuteQuit(t *testing.T) {
	m, _ := newTestModel(t)
	for _, cmd := range []string{":q", ":quit", ":exit"} {
		_, quit := m.execute(cmd)
		assert.True(t, quit, cmd)
	}
}

func TestExecuteSendsPlainText(t *testing.T) {
	m, tr := newTestModel(t)

	status, _ := m.execute("hello")
	assert.Equal(t, "device_0 is not open, nothing sent", status)

	m.execute(":apply /dev/ttyUSB0")
	status, _ = m.execute(`AT\x21`)
	assert.Equal(t, "sent 5 bytes to device_0", status)
	assert.Equal(t, "AT!\r\n", string(tr.Port("/dev/ttyUSB0").Written()))
}

func TestExecutePorts(t *testing.T) {
	m, tr := newTestModel(t)

	tr.SetPorts(nil, nil)
	status, _ := m.execute(":ports")
	assert.Equal(t, "no ports found", status)

	tr.SetPorts([]types.PortInfo{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"}}, nil)
	status, _ = m.execute(":ports")
	assert.Equal(t, "/dev/ttyS0  |  /dev/ttyUSB0 [1a86:7523]", status)
}

func TestExecuteCopy(t *testing.T) {
	m, _ := newTestModel(t)
	var copied string
	m.copyText = func(s string) error {
		copied = s
		return nil
	}
	m.sink.Append("A", "A: x")

	status, _ := m.execute(":copy")

	assert.Equal(t, "copied 1 chunks", status)
	assert.Equal(t, "A: x", copied)
}

func TestParseApplyArgs(t *testing.T) {
	cfg, err := parseApplyArgs([]string{"COM3"})
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionConfig{Location: "COM3", BaudRate: 9600, StopBits: 1, Encoding: types.EncodingASCII}, cfg)

	_, err = parseApplyArgs([]string{"COM3", "9600", "one"})
	assert.Error(t, err)
	_, err = parseApplyArgs([]string{"COM3", "9600", "1", "koi8"})
	assert.Error(t, err)
	_, err = parseApplyArgs([]string{"COM3", "-5"})
	assert.Error(t, err)
}

func TestModelShowsSinkOutput(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	c := m.sink.Append("A", "A: x\r\nA: y")
	m.Update(chunkMsg(c))

	assert.Equal(t, []string{"A: x", "A: y"}, m.lines)
	assert.Equal(t, c.Sequence, m.lastSeq)
	assert.Contains(t, m.View(), "A: y")
	assert.Contains(t, m.View(), "device_0")
}

func TestModelKeys(t *testing.T) {
	m, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, "device_1", m.registry.Selected().Name())

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "device_0", m.registry.Selected().Name())

	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, "device_1", m.registry.Selected().Name())

	m.input.SetValue(":rename probe")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "probe", m.registry.Selected().Name())
	assert.Empty(t, m.input.Value())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
