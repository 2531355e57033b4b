// Package testutil provides in-memory serial ports for tests. Nothing here touches real
// hardware.
//
// MockTransport - a devices.Transport that hands out MockPorts:
//   - Records every Open call with its line settings
//   - Open failures are injected per location
//   - The latest port opened on a location is kept for inspection
//
// MockPort - a devices.Port backed by buffers:
//   - Feed queues bytes for the next Read
//   - Read and write failures, read panics and short writes are injected
//   - Written data, call counts and Close are tracked
package testutil

import (
	"bytes"
	"io"
	"sync"

	"multi-serial-monitor/devices"
	"multi-serial-monitor/types"
)

// OpenCall is one recorded MockTransport.Open.
type OpenCall struct {
	Location string
	BaudRate int
	StopBits int
}

// MockTransport is thread-safe.
type MockTransport struct {
	mu       sync.Mutex
	ports    map[string]*MockPort
	openErrs map[string]error
	calls    []OpenCall
	list     []types.PortInfo
	listErr  error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		ports:    make(map[string]*MockPort),
		openErrs: make(map[string]error),
	}
}

func (t *MockTransport) Open(location string, baudRate, stopBits int) (devices.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, OpenCall{Location: location, BaudRate: baudRate, StopBits: stopBits})
	if err := t.openErrs[location]; err != nil {
		return nil, err
	}
	p := NewMockPort()
	t.ports[location] = p
	return p, nil
}

func (t *MockTransport) Ports() ([]types.PortInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.PortInfo(nil), t.list...), t.listErr
}

// FailOpen makes every later Open of location return err. A nil err clears it.
func (t *MockTransport) FailOpen(location string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.openErrs, location)
		return
	}
	t.openErrs[location] = err
}

// SetPorts sets what Ports returns.
func (t *MockTransport) SetPorts(list []types.PortInfo, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = list
	t.listErr = err
}

// Port returns the latest port opened on location, or nil.
func (t *MockTransport) Port(location string) *MockPort {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ports[location]
}

func (t *MockTransport) OpenCalls() []OpenCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]OpenCall(nil), t.calls...)
}

// MockPort is thread-safe.
type MockPort struct {
	mu         sync.Mutex
	in         bytes.Buffer
	out        bytes.Buffer
	readErr    error
	readPanic  any
	writeErr   error
	writeLimit int
	writeCalls int
	closeCalls int
	closed     bool
}

func NewMockPort() *MockPort {
	return &MockPort{writeLimit: -1}
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.readPanic != nil {
		panic(p.readPanic)
	}
	if p.in.Len() > 0 {
		return p.in.Read(b)
	}
	return 0, p.readErr
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeCalls++
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.writeLimit >= 0 && len(b) > p.writeLimit {
		b = b[:p.writeLimit]
	}
	return p.out.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	p.closed = true
	return nil
}

// Feed queues data for Read.
func (p *MockPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(data)
}

// FailRead makes Read return err once the queued data is drained.
func (p *MockPort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// PanicRead makes every later Read panic with v.
func (p *MockPort) PanicRead(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readPanic = v
}

func (p *MockPort) FailWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// LimitWrite caps how many bytes one Write accepts. Negative removes the cap.
func (p *MockPort) LimitWrite(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLimit = n
}

func (p *MockPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out.Bytes()...)
}

func (p *MockPort) WriteCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeCalls
}

func (p *MockPort) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}

func (p *MockPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
