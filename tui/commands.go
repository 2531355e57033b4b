package tui

import (
	"fmt"
	"strconv"
	"strings"

	"multi-serial-monitor/config"
	"multi-serial-monitor/types"
	"multi-serial-monitor/utils"
)

const helpText = `:new [name]  :rm  :rename NAME  :select NAME  :close  :ports  :copy  :quit
:apply LOCATION [BAUD] [STOPBITS] [ENCODING]   plain text + enter sends to the selected device`

// execute runs one line typed into the input box and returns the status line to show.
// quit is true when the operator asked to leave.
func (m *Model) execute(line string) (status string, quit bool) {
	if !strings.HasPrefix(line, ":") {
		return m.send(line), false
	}

	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return helpText, false
	}
	args := fields[1:]
	selected := m.registry.Selected()

	switch fields[0] {
	case "q", "quit", "exit":
		return "bye", true

	case "h", "help":
		return helpText, false

	case "new", "add":
		conn, err := m.registry.AddNamed(strings.Join(args, " "))
		if err != nil {
			return err.Error(), false
		}
		return "added " + conn.Name(), false

	case "rm", "remove":
		name := selected.Name()
		m.registry.Remove(selected.ID())
		return "removed " + name, false

	case "rename":
		if len(args) == 0 {
			return "usage: :rename NAME", false
		}
		if err := m.registry.Rename(selected.ID(), strings.Join(args, " ")); err != nil {
			return err.Error(), false
		}
		return "renamed to " + selected.Name(), false

	case "select", "sel":
		name := strings.Join(args, " ")
		if _, ok := m.registry.Select(name); !ok {
			return fmt.Sprintf("no device named %q", name), false
		}
		return "selected " + name, false

	case "apply", "open":
		cfg, err := parseApplyArgs(args)
		if err != nil {
			return err.Error(), false
		}
		if err := m.registry.Configure(selected.ID(), cfg); err != nil {
			return err.Error(), false
		}
		return fmt.Sprintf("%s open on %s", selected.Name(), cfg), false

	case "close":
		if err := selected.Close(); err != nil {
			return err.Error(), false
		}
		return selected.Name() + " closed", false

	case "ports":
		ports, err := m.registry.Ports()
		if err != nil && len(ports) == 0 {
			return err.Error(), false
		}
		descriptors := make([]string, len(ports))
		for i, p := range ports {
			descriptors[i] = p.Descriptor()
		}
		if len(descriptors) == 0 {
			return "no ports found", false
		}
		return strings.Join(descriptors, "  |  "), false

	case "copy":
		if err := m.copyText(m.sink.Text()); err != nil {
			return "clipboard: " + err.Error(), false
		}
		return fmt.Sprintf("copied %d chunks", m.sink.Len()), false
	}
	return fmt.Sprintf("unknown command %q, :help lists them", fields[0]), false
}

func (m *Model) send(text string) string {
	payload := append(utils.ParseEscapes(text), m.lineEnding...)
	selected := m.registry.Selected()
	if err := selected.Write(payload); err != nil {
		return err.Error()
	}
	if selected.State() != types.StateOpen {
		return selected.Name() + " is not open, nothing sent"
	}
	return fmt.Sprintf("sent %d bytes to %s", len(payload), selected.Name())
}

// parseApplyArgs reads LOCATION [BAUD] [STOPBITS] [ENCODING]; omitted values take the
// defaults.
func parseApplyArgs(args []string) (types.ConnectionConfig, error) {
	if len(args) == 0 {
		return types.ConnectionConfig{}, fmt.Errorf("usage: :apply LOCATION [BAUD] [STOPBITS] [ENCODING]")
	}
	cfg := config.DefaultConnectionConfig(args[0])
	if len(args) > 1 {
		baud, err := strconv.Atoi(args[1])
		if err != nil || baud < 0 || baud > config.MAX_BAUDRATE {
			return cfg, fmt.Errorf("baud rate must be a number within 0..%d", config.MAX_BAUDRATE)
		}
		cfg.BaudRate = baud
	}
	if len(args) > 2 {
		stop, err := strconv.Atoi(args[2])
		if err != nil {
			return cfg, fmt.Errorf("invalid stop bits %q", args[2])
		}
		cfg.StopBits = stop
	}
	if len(args) > 3 {
		enc, err := types.ParseEncoding(args[3])
		if err != nil {
			return cfg, err
		}
		cfg.Encoding = enc
	}
	return cfg, nil
}
