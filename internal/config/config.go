// Package config loads the YAML configuration of irrelayd.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"libdb.so/irrelay"
	"libdb.so/irrelay/relay"
	"libdb.so/irrelay/transmit"
)

// Config is the complete daemon configuration.
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// NodeConfig configures the UDP side of the daemon.
type NodeConfig struct {
	// Listen is the UDP address commands arrive on.
	Listen string `yaml:"listen"`
	// Backend, when set, receives a status heartbeat every StatusInterval.
	Backend        string        `yaml:"backend"`
	StatusInterval time.Duration `yaml:"status_interval"`
	// BufferCapacity is the largest pulse train a command may carry.
	BufferCapacity int `yaml:"buffer_capacity"`
}

// Transmitter kinds.
const (
	KindLog    = "log"
	KindLirc   = "lirc"
	KindSerial = "serial"
)

// TransmitterConfig selects the hardware the pulses are sent with.
type TransmitterConfig struct {
	Kind       string               `yaml:"kind"`
	Device     string               `yaml:"device"`
	CarrierHz  int                  `yaml:"carrier_hz"`
	Serial     transmit.PortOptions `yaml:"serial"`
	AckTimeout time.Duration        `yaml:"ack_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures the daemon logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Listen:         ":4210",
			StatusInterval: relay.DefaultStatusInterval,
			BufferCapacity: irrelay.BufferCapacity,
		},
		Transmitter: TransmitterConfig{
			Kind:       KindLog,
			CarrierHz:  irrelay.CarrierHz,
			AckTimeout: transmit.DefaultAckTimeout,
		},
		Metrics: MetricsConfig{
			Address: ":9110",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path on top of [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := c.Transmitter.Validate(); err != nil {
		return fmt.Errorf("transmitter config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates the node configuration.
func (n *NodeConfig) Validate() error {
	if _, err := net.ResolveUDPAddr("udp", n.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", n.Listen, err)
	}
	if n.Backend != "" {
		if _, err := net.ResolveUDPAddr("udp", n.Backend); err != nil {
			return fmt.Errorf("invalid backend address %q: %w", n.Backend, err)
		}
	}
	if n.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive, got %s", n.StatusInterval)
	}
	if n.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be at least 1, got %d", n.BufferCapacity)
	}
	return nil
}

// ListenAddr resolves Listen.
func (n *NodeConfig) ListenAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", n.Listen)
}

// BackendAddr resolves Backend. It returns nil if no backend is configured.
func (n *NodeConfig) BackendAddr() (*net.UDPAddr, error) {
	if n.Backend == "" {
		return nil, nil
	}
	return net.ResolveUDPAddr("udp", n.Backend)
}

// Validate validates the transmitter configuration.
func (t *TransmitterConfig) Validate() error {
	switch t.Kind {
	case KindLog:
	case KindLirc, KindSerial:
		if t.Device == "" {
			return fmt.Errorf("device cannot be empty for a %s transmitter", t.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q: expected %s, %s or %s", t.Kind, KindLog, KindLirc, KindSerial)
	}

	if t.CarrierHz < 20000 || t.CarrierHz > 60000 {
		return fmt.Errorf("carrier_hz must be between 20000 and 60000, got %d", t.CarrierHz)
	}

	if t.Kind == KindSerial {
		opts, err := t.Serial.Normalize()
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		t.Serial = opts

		if t.AckTimeout <= 0 {
			return fmt.Errorf("ack_timeout must be positive, got %s", t.AckTimeout)
		}
	}

	return nil
}

// Validate validates the metrics configuration.
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return fmt.Errorf("invalid address %q: %w", m.Address, err)
	}
	return nil
}

// Validate validates the logging configuration.
func (l *LoggingConfig) Validate() error {
	if _, err := l.level(); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

func (l *LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("invalid level %q", l.Level)
	}
	return level, nil
}

// NewLogger builds the logger described by l, writing to w.
func (l *LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
