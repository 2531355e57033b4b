package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"multi-serial-monitor/types"
)

const (
	DEFAULT_BAUDRATE = 9600
	DEFAULT_STOPBITS = 1
	DEFAULT_ENCODING = types.EncodingASCII
	MAX_BAUDRATE     = 16000000

	POLL_INTERVAL = 10 * time.Millisecond
	SERVER_ADDR   = ":8080"

	DEVICE_NAME_PREFIX = "device_"
)

var (
	STANDARD_BAUDRATES = []int{110, 300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600, 115200, 128000, 256000}
	STOPBITS           = []int{1, 2}
	ENCODINGS          = []types.Encoding{types.EncodingASCII, types.EncodingUTF8, types.EncodingUTF16, types.EncodingUTF32}
)

// Settings holds application configuration. None of it describes the device list; devices
// only exist for the lifetime of the process.
type Settings struct {
	UI         string
	Server     ServerSettings
	Poll       PollSettings
	Sink       SinkSettings
	Transport  TransportSettings
	Connection ConnectionSettings
	Send       SendSettings
	Log        LogSettings
	Wedge      WedgeSettings
}

type ServerSettings struct {
	Addr string
}

type PollSettings struct {
	Interval time.Duration
}

// SinkSettings caps retained output. Zero keeps everything.
type SinkSettings struct {
	Capacity int
}

type TransportSettings struct {
	Driver string
}

type ConnectionSettings struct {
	OpenBeforeClose bool `mapstructure:"open_before_close"`
}

type SendSettings struct {
	LineEnding string `mapstructure:"line_ending"`
}

type LogSettings struct {
	Level string
	File  string
}

// WedgeSettings configures typing one device's lines into the focused window.
type WedgeSettings struct {
	Enabled bool
	Device  string
}

// RegisterFlags declares the command line overrides. Flag names map onto setting keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (toml, yaml or json)")
	fs.String("ui", "tui", "presentation: tui, web or headless")
	fs.String("addr", SERVER_ADDR, "listen address of the web interface")
	fs.Duration("poll-interval", POLL_INTERVAL, "delay between two scans of all devices")
	fs.Int("sink-capacity", 0, "maximum retained output chunks (0 = unbounded)")
	fs.String("driver", "bugst", "serial backend: bugst or jacobsa")
	fs.Bool("open-before-close", false, "on reconfigure open the new port before closing the old one")
	fs.String("line-ending", "lf", "appended to sent text: none, lf, cr or crlf")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-file", "", "write logs to this file instead of stderr")
	fs.String("wedge", "", "type every line received from this device into the focused window")
}

var flagKeys = map[string]string{
	"ui":                "ui",
	"addr":              "server.addr",
	"poll-interval":     "poll.interval",
	"sink-capacity":     "sink.capacity",
	"driver":            "transport.driver",
	"open-before-close": "connection.open_before_close",
	"line-ending":       "send.line_ending",
	"log-level":         "log.level",
	"log-file":          "log.file",
	"wedge":             "wedge.device",
}

// Load reads configuration from defaults, an optional file, env and flags (in increasing
// priority). Env var overrides use prefix MULTISERIAL_.
func Load(fs *pflag.FlagSet) (Settings, error) {
	v := viper.New()

	v.SetDefault("ui", "tui")
	v.SetDefault("server.addr", SERVER_ADDR)
	v.SetDefault("poll.interval", POLL_INTERVAL)
	v.SetDefault("sink.capacity", 0)
	v.SetDefault("transport.driver", "bugst")
	v.SetDefault("connection.open_before_close", false)
	v.SetDefault("send.line_ending", "lf")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("wedge.enabled", false)
	v.SetDefault("wedge.device", "")

	cfgPath := os.Getenv("MULTISERIAL_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "multi-serial-monitor"))
		v.SetConfigName("config")
		v.SetConfigType("toml")
	}

	v.SetEnvPrefix("MULTISERIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit path that is missing is an error, the default location is optional
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Settings{}, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if s.Wedge.Device != "" {
		s.Wedge.Enabled = true
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the rest of the program cannot act on.
func (s Settings) Validate() error {
	switch s.UI {
	case "tui", "web", "headless":
	default:
		return fmt.Errorf("invalid ui %q", s.UI)
	}
	switch s.Transport.Driver {
	case "bugst", "jacobsa":
	default:
		return fmt.Errorf("invalid transport driver %q", s.Transport.Driver)
	}
	if _, err := LineEnding(s.Send.LineEnding); err != nil {
		return err
	}
	if s.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.Poll.Interval)
	}
	if s.Sink.Capacity < 0 {
		return fmt.Errorf("sink capacity must not be negative, got %d", s.Sink.Capacity)
	}
	return nil
}

// LineEnding maps a setting value to the bytes appended to outgoing text.
func LineEnding(name string) (string, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return "", nil
	case "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "crlf":
		return "\r\n", nil
	}
	return "", fmt.Errorf("invalid line ending %q", name)
}

// DefaultConnectionConfig fills the fields a UI did not provide.
func DefaultConnectionConfig(location string) types.ConnectionConfig {
	return types.ConnectionConfig{
		Location: location,
		BaudRate: DEFAULT_BAUDRATE,
		StopBits: DEFAULT_STOPBITS,
		Encoding: DEFAULT_ENCODING,
	}
}

// ParseDeviceArg reads a command line device argument of the form
// LOCATION[,BAUD[,STOPBITS[,ENCODING]]] and fills the rest with defaults.
func ParseDeviceArg(arg string) (types.ConnectionConfig, error) {
	parts := strings.Split(arg, ",")
	cfg := DefaultConnectionConfig(strings.TrimSpace(parts[0]))
	if cfg.Location == "" {
		return cfg, fmt.Errorf("device %q: location is empty", arg)
	}
	if len(parts) > 4 {
		return cfg, fmt.Errorf("device %q: too many fields", arg)
	}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		baud, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || baud < 0 || baud > MAX_BAUDRATE {
			return cfg, fmt.Errorf("device %q: invalid baud rate %q", arg, parts[1])
		}
		cfg.BaudRate = baud
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		stop, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return cfg, fmt.Errorf("device %q: invalid stop bits %q", arg, parts[2])
		}
		cfg.StopBits = stop
	}
	if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
		enc, err := types.ParseEncoding(parts[3])
		if err != nil {
			return cfg, fmt.Errorf("device %q: %w", arg, err)
		}
		cfg.Encoding = enc
	}
	return cfg, nil
}
