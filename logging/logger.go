package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"multi-serial-monitor/config"
	"multi-serial-monitor/types"
)

var (
	logClients = make(map[chan types.LogMessage]bool)
	logMutex   = sync.RWMutex{}
)

// Init builds the process logger from settings, installs it as the slog default and
// returns a closer for the log file, if any.
func Init(s config.LogSettings) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	closer := func() error { return nil }
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f.Close
	}

	base := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(NewHandler(base))
	slog.SetDefault(logger)

	BroadcastLog("logging initialised", "system")
	return logger, closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func AddLogClient(client chan types.LogMessage) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logClients[client] = true
}

func RemoveLogClient(client chan types.LogMessage) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logClients[client] {
		delete(logClients, client)
		close(client)
	}
}

func BroadcastLog(message, logType string) {
	logMsg := types.LogMessage{
		Time:    time.Now().Format("15:04:05"),
		Message: message,
		Type:    logType,
	}

	logMutex.RLock()
	defer logMutex.RUnlock()

	for client := range logClients {
		select {
		case client <- logMsg:
		default:
			// slow client, drop the message for it
		}
	}
}

// Handler forwards every record to the wrapped handler and mirrors it to the log clients.
// The "component" attribute, when present, becomes the message type.
type Handler struct {
	next      slog.Handler
	component string
	attrs     []slog.Attr
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next, component: "system"}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return true
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	if r.Level >= slog.LevelWarn {
		b.WriteString(" [" + r.Level.String() + "]")
	}
	BroadcastLog(b.String(), component)
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := &Handler{next: h.next.WithAttrs(attrs), component: h.component}
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == "component" {
			nh.component = a.Value.String()
		}
	}
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), component: h.component, attrs: h.attrs}
}
