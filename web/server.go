package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"multi-serial-monitor/monitor"
	"multi-serial-monitor/registry"
)

// Server is the HTTP control surface: device commands, the merged output stream and
// the log stream.
type Server struct {
	addr       string
	registry   *registry.Registry
	sink       *monitor.Sink
	lineEnding string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger

	// copyText puts text on the system clipboard; replaced in tests
	copyText func(string) error
	// done ends open event streams when the server shuts down
	done <-chan struct{}
}

func NewServer(addr string, reg *registry.Registry, sink *monitor.Sink, lineEnding string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		registry:   reg,
		sink:       sink,
		lineEnding: lineEnding,
		gatherer:   gatherer,
		logger:     logger.With("component", "web"),
		copyText:   copyToClipboard,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.indexHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /options", s.optionsHandler)
	mux.HandleFunc("GET /ports", s.portsHandler)
	mux.HandleFunc("POST /devices", s.addDeviceHandler)
	mux.HandleFunc("POST /devices/{id}/remove", s.removeDeviceHandler)
	mux.HandleFunc("POST /devices/{id}/rename", s.renameDeviceHandler)
	mux.HandleFunc("POST /devices/{id}/apply", s.applyDeviceHandler)
	mux.HandleFunc("POST /devices/{id}/close", s.closeDeviceHandler)
	mux.HandleFunc("POST /select", s.selectHandler)
	mux.HandleFunc("POST /send", s.sendHandler)
	mux.HandleFunc("GET /output", s.outputHandler)
	mux.HandleFunc("GET /output/stream", s.outputStreamHandler)
	mux.HandleFunc("POST /output/copy", s.copyOutputHandler)
	mux.HandleFunc("GET /logs/stream", s.logsStreamHandler)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.done = ctx.Done()
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "url", "http://localhost"+s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return err
	}
	return nil
}
