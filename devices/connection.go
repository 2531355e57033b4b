package devices

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"multi-serial-monitor/types"
	"multi-serial-monitor/utils"
)

const (
	readChunkSize = 4096
	// upper bound on driver reads per call so one chatty device cannot hold a scan
	maxReadsPerCall = 64
)

// Connection owns one serial line: its configuration, the open port and the decoder.
// The zero value is not usable; build one with NewConnection.
type Connection struct {
	id        uuid.UUID
	transport Transport
	logger    *slog.Logger

	openBeforeClose bool

	nameMu sync.RWMutex
	name   string

	// mu guards the lifecycle fields. Reads from the poll loop only TryLock it.
	mu      sync.Mutex
	cfg     types.ConnectionConfig
	state   types.State
	detail  string
	port    Port
	dec     *decoder
	readBuf []byte
	// retired is set once the connection leaves its registry; it never opens again
	retired bool

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

type Option func(*Connection)

// WithOpenBeforeClose makes Apply open the new port before releasing the old one, so a
// failed reconfigure keeps the working line. It has no effect when the location does not
// change because a port cannot be opened twice.
func WithOpenBeforeClose(enabled bool) Option {
	return func(c *Connection) { c.openBeforeClose = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) { c.logger = logger }
}

func NewConnection(transport Transport, name string, opts ...Option) *Connection {
	c := &Connection{
		id:        uuid.New(),
		transport: transport,
		logger:    slog.Default(),
		name:      name,
		state:     types.StateUnconfigured,
		readBuf:   make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "device", "id", c.id.String())
	return c
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) Name() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.name
}

// SetName only relabels the connection. Uniqueness is the registry's business.
func (c *Connection) SetName(name string) {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	c.name = name
}

func (c *Connection) State() types.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Config() types.ConnectionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Location is the device path of an open connection, empty otherwise.
func (c *Connection) Location() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateOpen {
		return ""
	}
	return c.cfg.Location
}

func (c *Connection) Status() types.DeviceStatus {
	c.mu.Lock()
	st := types.DeviceStatus{
		ID:     c.id.String(),
		State:  c.state,
		Detail: c.detail,
		Config: c.cfg,
	}
	c.mu.Unlock()
	st.Name = c.Name()
	st.BytesRead = c.bytesRead.Load()
	st.BytesWritten = c.bytesWritten.Load()
	return st
}

// Apply (re)opens the line with cfg. By default an open port is closed first; if the new
// open then fails the connection is left in the error state with no port at all.
func (c *Connection) Apply(cfg types.ConnectionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return &ConnectionError{Op: "open", Location: cfg.Location, Err: ErrRetired}
	}

	old := c.port
	keepOld := c.openBeforeClose && old != nil && c.cfg.Location != cfg.Location
	if old != nil && !keepOld {
		c.closePortLocked()
	}

	port, err := c.openLocked(cfg)
	if err != nil {
		if keepOld {
			c.logger.Warn("reconfigure failed, keeping previous port",
				"location", cfg.Location, "error", err)
			return err
		}
		c.cfg = cfg
		c.state = types.StateError
		c.detail = err.Error()
		c.logger.Error("open failed", "location", cfg.Location, "error", err)
		return err
	}

	if keepOld {
		if cerr := old.Close(); cerr != nil {
			c.logger.Warn("close previous port", "location", c.cfg.Location, "error", cerr)
		}
	}
	c.port = port
	c.cfg = cfg
	c.state = types.StateOpen
	c.detail = ""
	c.dec = newDecoder(cfg.Encoding)
	c.logger.Info("port open", "name", c.Name(), "config", cfg.String())
	return nil
}

func (c *Connection) openLocked(cfg types.ConnectionConfig) (Port, error) {
	if !knownEncoding(cfg.Encoding) {
		return nil, &ConnectionError{Op: "open", Location: cfg.Location,
			Err: fmt.Errorf("%w: encoding %q", ErrInvalidConfig, cfg.Encoding)}
	}
	port, err := c.transport.Open(cfg.Location, cfg.BaudRate, cfg.StopBits)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Location: cfg.Location, Err: err}
	}
	return port, nil
}

// ReadAvailable returns whatever is buffered right now, or nil. It never blocks: when
// another goroutine is reconfiguring or writing this connection the call returns nil and
// the bytes are picked up on a later call. A transport error closes the port and moves
// the connection to the error state.
func (c *Connection) ReadAvailable() ([]byte, error) {
	if !c.mu.TryLock() {
		return nil, nil
	}
	defer c.mu.Unlock()
	return c.readLocked()
}

// ReadText is ReadAvailable followed by decoding with the configured encoding. Decoding
// never fails; invalid input is dropped.
func (c *Connection) ReadText() (string, error) {
	if !c.mu.TryLock() {
		return "", nil
	}
	defer c.mu.Unlock()

	raw, err := c.readLocked()
	if len(raw) == 0 || c.dec == nil {
		return "", err
	}
	return c.dec.Decode(raw), err
}

func (c *Connection) readLocked() ([]byte, error) {
	if c.state != types.StateOpen || c.port == nil {
		return nil, nil
	}

	var data []byte
	for i := 0; i < maxReadsPerCall; i++ {
		n, err := c.port.Read(c.readBuf)
		if n > 0 {
			data = append(data, c.readBuf[:n]...)
		}
		if err != nil {
			location := c.cfg.Location
			c.failLocked(err)
			c.bytesRead.Add(uint64(len(data)))
			return data, &ConnectionError{Op: "read", Location: location, Err: err}
		}
		if n < len(c.readBuf) {
			break
		}
	}
	if len(data) > 0 {
		c.bytesRead.Add(uint64(len(data)))
		c.logger.Debug("read", "data", utils.FormatDataForLog(data))
	}
	return data, nil
}

// Write sends p in one call. Writing to a connection that is not open is a silent no-op.
// A short write is reported, not retried, and the connection stays open.
func (c *Connection) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.StateOpen || c.port == nil {
		return nil
	}
	n, err := c.port.Write(p)
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
	}
	if err != nil {
		return &WriteError{Location: c.cfg.Location, Written: n, Expected: len(p), Err: err}
	}
	if n != len(p) {
		return &WriteError{Location: c.cfg.Location, Written: n, Expected: len(p), Err: io.ErrShortWrite}
	}
	c.logger.Debug("write", "data", utils.FormatDataForLog(p))
	return nil
}

// Close releases the port. Calling it again is harmless.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.port != nil {
		err = c.port.Close()
		c.port = nil
		c.logger.Info("port closed", "location", c.cfg.Location)
	}
	c.state = types.StateClosed
	c.detail = ""
	if err != nil {
		return fmt.Errorf("close %s: %w", c.cfg.Location, err)
	}
	return nil
}

// Fail closes the port and leaves the connection in the error state, as a read error
// would. It does nothing unless the connection is open.
func (c *Connection) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateOpen {
		return
	}
	c.failLocked(err)
}

func (c *Connection) failLocked(err error) {
	location := c.cfg.Location
	c.closePortLocked()
	c.state = types.StateError
	c.detail = err.Error()
	c.logger.Error("port failed and was closed", "location", location, "error", err)
}

// Retire closes the connection for good. Later Apply calls fail with ErrRetired, so a
// command racing the removal cannot bring the port back.
func (c *Connection) Retire() error {
	c.mu.Lock()
	c.retired = true
	c.mu.Unlock()
	return c.Close()
}

func (c *Connection) closePortLocked() {
	if c.port == nil {
		return
	}
	if err := c.port.Close(); err != nil {
		c.logger.Warn("close port", "location", c.cfg.Location, "error", err)
	}
	c.port = nil
}
