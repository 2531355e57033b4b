package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"multi-serial-monitor/config"
	"multi-serial-monitor/devices"
	"multi-serial-monitor/logging"
	"multi-serial-monitor/monitor"
	"multi-serial-monitor/registry"
	"multi-serial-monitor/tui"
	"multi-serial-monitor/web"
	"multi-serial-monitor/wedge"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("multi-serial-monitor", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: multi-serial-monitor [flags] [LOCATION[,BAUD[,STOPBITS[,ENCODING]]] ...]\n\n")
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	settings, err := config.Load(fs)
	if err != nil {
		return err
	}
	if settings.UI == "tui" && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the terminal UI needs a terminal, use --ui web or --ui headless")
	}
	// the terminal belongs to the TUI
	if settings.UI == "tui" && settings.Log.File == "" {
		settings.Log.File = filepath.Join(os.TempDir(), "multi-serial-monitor.log")
	}

	logger, closeLog, err := logging.Init(settings.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	transport, err := devices.NewTransport(settings.Transport.Driver)
	if err != nil {
		return err
	}
	reg := registry.New(transport, logger, devices.WithOpenBeforeClose(settings.Connection.OpenBeforeClose))
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn("closing devices", "error", err)
		}
	}()

	if err := openInitialDevices(reg, fs.Args(), logger); err != nil {
		return err
	}

	sink := monitor.NewSink(settings.Sink.Capacity)
	promReg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(promReg)
	if err != nil {
		return err
	}
	lineEnding, err := config.LineEnding(settings.Send.LineEnding)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// stop first, then wait for the workers, then the deferred registry close runs
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stop()

	poller := monitor.NewPoller(reg, sink, settings.Poll.Interval, logger, metrics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	if settings.Wedge.Enabled {
		typer, err := wedge.NewKeyboardTyper()
		if err != nil {
			logger.Error("keyboard wedge unavailable", "error", err)
		} else {
			w := wedge.New(settings.Wedge.Device, sink, typer, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}

	logger.Info("monitor started", "ui", settings.UI, "driver", settings.Transport.Driver, "devices", reg.Len())

	switch settings.UI {
	case "web":
		return web.NewServer(settings.Server.Addr, reg, sink, lineEnding, promReg, logger).Run(ctx)
	case "headless":
		return printOutput(ctx, sink)
	default:
		m := tui.New(reg, sink, lineEnding)
		defer m.Close()
		_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// openInitialDevices applies the command line device arguments. The first one goes to the
// default device, the rest get new devices. A device that fails to open stays in the
// registry in the error state.
func openInitialDevices(reg *registry.Registry, args []string, logger *slog.Logger) error {
	for i, arg := range args {
		cfg, err := config.ParseDeviceArg(arg)
		if err != nil {
			return err
		}
		conn := reg.Selected()
		if i > 0 {
			conn = reg.Add()
		}
		if err := reg.Configure(conn.ID(), cfg); err != nil {
			logger.Warn("could not open device", "name", conn.Name(), "config", cfg.String(), "error", err)
		}
	}
	return nil
}

// printOutput writes the merged output to stdout until ctx is cancelled.
func printOutput(ctx context.Context, sink *monitor.Sink) error {
	sub := sink.Subscribe(256)
	defer sink.Unsubscribe(sub)

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub:
			if !ok {
				return nil
			}
			for _, c := range sink.Since(last) {
				fmt.Println(c.Text)
				last = c.Sequence
			}
		}
	}
}
