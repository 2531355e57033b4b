// Package wedge types the lines received from one device into whatever window has the
// keyboard focus, the way a barcode scanner in keyboard mode would.
package wedge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"

	"multi-serial-monitor/monitor"
	"multi-serial-monitor/types"
	"multi-serial-monitor/utils"
)

// Typer delivers one line to the focused application.
type Typer interface {
	Type(line string) error
}

// KeyboardTyper pastes through the clipboard and presses Enter afterwards.
type KeyboardTyper struct {
	paste *keybd_event.KeyBonding
	enter *keybd_event.KeyBonding
}

func NewKeyboardTyper() (*KeyboardTyper, error) {
	paste, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create paste key event: %w", err)
	}
	// Cmd+V on macOS, Ctrl+V on Windows and Linux
	if runtime.GOOS == "darwin" {
		paste.HasSuper(true)
	} else {
		paste.HasCTRL(true)
	}
	paste.SetKeys(keybd_event.VK_V)

	enter, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create enter key event: %w", err)
	}
	enter.SetKeys(keybd_event.VK_ENTER)

	// uinput needs time before the virtual keyboard is usable
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &KeyboardTyper{paste: &paste, enter: &enter}, nil
}

func (k *KeyboardTyper) Type(line string) error {
	if err := clipboard.WriteAll(line); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}

	time.Sleep(200 * time.Millisecond)
	if err := k.paste.Launching(); err != nil {
		return fmt.Errorf("simulate paste: %w", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := k.enter.Launching(); err != nil {
		return fmt.Errorf("simulate enter: %w", err)
	}
	return nil
}

type Wedge struct {
	device string
	sink   *monitor.Sink
	sub    chan types.OutputChunk
	typer  Typer
	logger *slog.Logger
}

// New subscribes to sink right away, so output appended before Run starts is not missed.
func New(device string, sink *monitor.Sink, typer Typer, logger *slog.Logger) *Wedge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wedge{
		device: device,
		sink:   sink,
		sub:    sink.Subscribe(256),
		typer:  typer,
		logger: logger.With("component", "wedge"),
	}
}

// Run forwards the device's lines until ctx is done. Chunks that arrive while a line is
// still being typed are buffered by the subscription; overflow is dropped.
func (w *Wedge) Run(ctx context.Context) error {
	ch := w.sub
	defer w.sink.Unsubscribe(ch)
	w.logger.Info("keyboard wedge active", "device", w.device)

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-ch:
			if !ok {
				return nil
			}
			if chunk.Source != w.device {
				continue
			}
			for _, line := range utils.UntagLines(chunk.Source, chunk.Text) {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if err := w.typer.Type(line); err != nil {
					w.logger.Warn("type line", "error", err)
				}
			}
		}
	}
}
