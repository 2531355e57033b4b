package devices

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"

	"multi-serial-monitor/types"
)

// JacobsaTransport opens ports with github.com/jacobsa/go-serial. That library only offers
// blocking reads, so each port gets a pump goroutine that fills a buffer the connection
// drains without waiting.
type JacobsaTransport struct{}

func (t *JacobsaTransport) Open(location string, baudRate, stopBits int) (Port, error) {
	if err := validateLine(baudRate, stopBits); err != nil {
		return nil, err
	}
	rwc, err := serial.Open(serial.OpenOptions{
		PortName: location,
		BaudRate: uint(baudRate),
		DataBits: 8,
		StopBits: uint(stopBits),
		// VMIN=0 VTIME=1: a read returns after 100ms at most, so the pump sees Close.
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, err
	}
	return newPumpedPort(rwc), nil
}

// Ports falls back to the platform's usual names; jacobsa/go-serial has no enumerator.
func (t *JacobsaTransport) Ports() ([]types.PortInfo, error) {
	return commonPortInfos(), nil
}

// pumpedPort turns a blocking io.ReadWriteCloser into a Port with non-blocking reads.
type pumpedPort struct {
	rwc io.ReadWriteCloser

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed bool

	done chan struct{}
}

func newPumpedPort(rwc io.ReadWriteCloser) *pumpedPort {
	p := &pumpedPort{rwc: rwc, done: make(chan struct{})}
	go p.pump()
	return p
}

func (p *pumpedPort) pump() {
	defer close(p.done)
	chunk := make([]byte, 256)
	for {
		n, err := p.rwc.Read(chunk)

		p.mu.Lock()
		if n > 0 {
			p.buf.Write(chunk[:n])
		}
		closed := p.closed
		// os.File reports an expired VTIME as EOF
		if err != nil && !errors.Is(err, io.EOF) && !closed {
			p.err = err
		}
		stop := closed || p.err != nil
		p.mu.Unlock()

		if stop {
			return
		}
	}
}

func (p *pumpedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.err != nil {
		return 0, p.err
	}
	return 0, nil
}

func (p *pumpedPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *pumpedPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.rwc.Close()
	<-p.done
	return err
}
