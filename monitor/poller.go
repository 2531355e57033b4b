// Package monitor drains every serial connection in the background and collects the
// tagged output in one ordered sink.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"multi-serial-monitor/devices"
	"multi-serial-monitor/utils"
)

// ConnectionSource hands the poller a stable copy of the current connections.
type ConnectionSource interface {
	Snapshot() []*devices.Connection
}

type Poller struct {
	source   ConnectionSource
	sink     *Sink
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

func NewPoller(source ConnectionSource, sink *Sink, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger.With("component", "monitor"),
		metrics:  metrics,
	}
}

// Run scans all connections every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Pass()
		select {
		case <-ctx.Done():
			p.logger.Info("poll loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Pass reads every connection once, in registry order, and returns the number of chunks
// it appended. A failing connection does not affect the others.
func (p *Poller) Pass() int {
	start := time.Now()
	conns := p.source.Snapshot()
	emitted := 0
	for _, conn := range conns {
		if p.pollOne(conn) {
			emitted++
		}
	}
	p.metrics.observePass(len(conns), time.Since(start))
	return emitted
}

func (p *Poller) pollOne(conn *devices.Connection) (emitted bool) {
	name := conn.Name()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.observeError(name)
			p.logger.Error("device read panicked", "device", name, "panic", fmt.Sprint(r))
			conn.Fail(fmt.Errorf("read panicked: %v", r))
			emitted = false
		}
	}()

	text, err := conn.ReadText()
	if err != nil {
		p.metrics.observeError(name)
		p.logger.Warn("device read failed", "device", name, "error", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	// the name may have changed while reading; tag with the current one
	name = conn.Name()
	p.sink.Append(name, utils.TagLines(name, text))
	p.metrics.observeChunk(name, utf8.RuneCountInString(text))
	return true
}
