// Package registry keeps the ordered set of named serial connections and the one that
// is selected for sending. It is never empty: removing the last connection creates a
// fresh default one.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"multi-serial-monitor/config"
	"multi-serial-monitor/devices"
	"multi-serial-monitor/types"
)

var (
	// ErrUnknownConnection is returned for ids that are no longer registered. Callers
	// racing a removal may safely ignore it.
	ErrUnknownConnection = errors.New("unknown connection")
	ErrEmptyName         = errors.New("connection name must not be empty")
)

type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a connection named %q already exists", e.Name)
}

type DuplicateLocationError struct {
	Location string
	Holder   string
}

func (e *DuplicateLocationError) Error() string {
	return fmt.Sprintf("%s is already open by %q", e.Location, e.Holder)
}

type Registry struct {
	transport devices.Transport
	connOpts  []devices.Option
	logger    *slog.Logger

	// configMu makes the location check and the open in Configure one step
	configMu sync.Mutex

	mu          sync.RWMutex
	connections []*devices.Connection
	selected    *devices.Connection
	nextOrdinal int
}

// New returns a registry holding one default connection, device_0.
func New(transport devices.Transport, logger *slog.Logger, opts ...devices.Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		transport: transport,
		connOpts:  append([]devices.Option{devices.WithLogger(logger)}, opts...),
		logger:    logger.With("component", "registry"),
	}
	r.mu.Lock()
	r.addLocked(r.mintNameLocked())
	r.mu.Unlock()
	return r
}

// Add appends a connection with the next default name and selects it.
func (r *Registry) Add() *devices.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(r.mintNameLocked())
}

// AddNamed appends a connection called name and selects it.
func (r *Registry) AddNamed(name string) (*devices.Connection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return r.Add(), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(name) != nil {
		return nil, &DuplicateNameError{Name: name}
	}
	return r.addLocked(name), nil
}

func (r *Registry) addLocked(name string) *devices.Connection {
	conn := devices.NewConnection(r.transport, name, r.connOpts...)
	r.connections = append(r.connections, conn)
	r.selected = conn
	r.logger.Info("device added", "name", name, "id", conn.ID().String())
	return conn
}

// mintNameLocked hands out device_N. An ordinal is consumed even when the name is
// skipped because someone renamed another connection to it.
func (r *Registry) mintNameLocked() string {
	for {
		name := fmt.Sprintf("%s%d", config.DEVICE_NAME_PREFIX, r.nextOrdinal)
		r.nextOrdinal++
		if r.findLocked(name) == nil {
			return name
		}
	}
}

// Remove drops and closes the connection. Unknown ids are ignored.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	conn := r.connections[idx]
	r.connections = append(r.connections[:idx:idx], r.connections[idx+1:]...)

	if len(r.connections) == 0 {
		r.selected = nil
		r.addLocked(r.mintNameLocked())
	} else if r.selected == conn {
		r.selected = r.connections[0]
	}
	r.mu.Unlock()

	if err := conn.Retire(); err != nil {
		r.logger.Warn("close removed device", "name", conn.Name(), "error", err)
	}
	r.logger.Info("device removed", "name", conn.Name(), "id", id.String())
	return true
}

// Rename changes the label only; the id and the open port are untouched.
func (r *Registry) Rename(id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return ErrUnknownConnection
	}
	conn := r.connections[idx]
	if other := r.findLocked(name); other != nil && other != conn {
		return &DuplicateNameError{Name: name}
	}
	old := conn.Name()
	conn.SetName(name)
	r.logger.Info("device renamed", "from", old, "to", name)
	return nil
}

// Select makes the first connection called name the selected one. An unknown name leaves
// the selection alone and reports false.
func (r *Registry) Select(name string) (*devices.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := r.findLocked(name)
	if conn == nil {
		return nil, false
	}
	r.selected = conn
	return conn, true
}

func (r *Registry) SelectID(id uuid.UUID) (*devices.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	r.selected = r.connections[idx]
	return r.selected, true
}

// SelectNext moves the selection by delta positions, wrapping around.
func (r *Registry) SelectNext(delta int) *devices.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.connections)
	idx := 0
	if r.selected != nil {
		idx = r.indexLocked(r.selected.ID())
	}
	idx = ((idx+delta)%n + n) % n
	r.selected = r.connections[idx]
	return r.selected
}

func (r *Registry) Selected() *devices.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

func (r *Registry) Get(id uuid.UUID) (*devices.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return r.connections[idx], true
}

// Names lists connection names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.connections))
	for i, c := range r.connections {
		names[i] = c.Name()
	}
	return names
}

// Snapshot copies the current sequence. Later adds and removes do not affect it.
func (r *Registry) Snapshot() []*devices.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*devices.Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) Statuses() []types.DeviceStatus {
	conns := r.Snapshot()
	selected := r.Selected()
	out := make([]types.DeviceStatus, len(conns))
	for i, c := range conns {
		out[i] = c.Status()
		out[i].Selected = c == selected
	}
	return out
}

// Configure applies cfg to a connection after making sure no other connection holds the
// same port open. A connection removed in the meantime is reported as unknown.
func (r *Registry) Configure(id uuid.UUID, cfg types.ConnectionConfig) error {
	r.configMu.Lock()
	defer r.configMu.Unlock()

	conn, ok := r.Get(id)
	if !ok {
		return ErrUnknownConnection
	}
	for _, other := range r.Snapshot() {
		if other == conn || cfg.Location == "" {
			continue
		}
		if other.Location() == cfg.Location {
			return &DuplicateLocationError{Location: cfg.Location, Holder: other.Name()}
		}
	}
	if err := conn.Apply(cfg); err != nil {
		if errors.Is(err, devices.ErrRetired) {
			return ErrUnknownConnection
		}
		return err
	}
	return nil
}

// Send writes p to the selected connection.
func (r *Registry) Send(p []byte) error {
	conn := r.Selected()
	if conn == nil {
		return nil
	}
	return conn.Write(p)
}

func (r *Registry) Ports() ([]types.PortInfo, error) {
	return r.transport.Ports()
}

// Close closes every connection. The registry stays usable; its connections are closed.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.Snapshot() {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) indexLocked(id uuid.UUID) int {
	for i, c := range r.connections {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Registry) findLocked(name string) *devices.Connection {
	for _, c := range r.connections {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
