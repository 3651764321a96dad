// Package config loads the settings cmd/gcncd needs beyond its own
// process flags (port/addr/data-dir, which stay plain `flag` exactly as
// cmd/gcnc/main.go uses them): soft/speed limits, transport selection,
// and status-polling interval. Grounded on OpenMachineCore's
// internal/config/config.go — same SetDefault/AutomaticEnv/Unmarshal
// shape, adapted to this domain's settings.
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"github.com/mastercactapus/gcnc/coord"
	"github.com/mastercactapus/gcnc/transport"
)

type Config struct {
	SoftLimits  SoftLimitsConfig  `mapstructure:"soft_limits"`
	SpeedLimits SpeedLimitsConfig `mapstructure:"speed_limits"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Polling     PollingConfig     `mapstructure:"polling"`
}

type SoftLimitsConfig struct {
	X IntervalConfig `mapstructure:"x"`
	Y IntervalConfig `mapstructure:"y"`
	Z IntervalConfig `mapstructure:"z"`
}

type IntervalConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

type SpeedLimitsConfig struct {
	MaxFeedRate     float64 `mapstructure:"max_feed_rate"`
	MaxJogRate      float64 `mapstructure:"max_jog_rate"`
	MaxAcceleration float64 `mapstructure:"max_acceleration"`
}

// TransportConfig selects and configures the Dialer the composition root
// hands to machine.New. Kind is "serial" (also used when empty), "tcp",
// or "ws"/"websocket"; Dialer rejects any other kind, "bluetooth" included.
type TransportConfig struct {
	Kind     string               `mapstructure:"kind"`
	Serial   transport.SerialConfig `mapstructure:"serial"`
	TCP      transport.TCPConfig    `mapstructure:"tcp"`
	WSBridge transport.WSBridgeConfig `mapstructure:"ws_bridge"`
}

type PollingConfig struct {
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

// Load reads path (if non-empty) as a YAML config file layered over the
// defaults below, plus GCNCD_-prefixed environment variables. A missing
// config file is not an error — cmd/gcncd must start with zero
// configuration present, unlike OMC's config.Load which requires one.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	}

	def := coord.DefaultSoftLimits()
	speed := coord.DefaultSpeedLimits()
	v.SetDefault("soft_limits.x.min", def.X.Min)
	v.SetDefault("soft_limits.x.max", def.X.Max)
	v.SetDefault("soft_limits.y.min", def.Y.Min)
	v.SetDefault("soft_limits.y.max", def.Y.Max)
	v.SetDefault("soft_limits.z.min", def.Z.Min)
	v.SetDefault("soft_limits.z.max", def.Z.Max)
	v.SetDefault("speed_limits.max_feed_rate", speed.MaxFeedRate)
	v.SetDefault("speed_limits.max_jog_rate", speed.MaxJogRate)
	v.SetDefault("speed_limits.max_acceleration", speed.MaxAcceleration)

	v.SetDefault("transport.kind", "serial")
	v.SetDefault("transport.serial.port", "/dev/ttyUSB0")
	v.SetDefault("transport.serial.baud_rate", 115200)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.parity", "none")
	v.SetDefault("transport.tcp.host", "")
	v.SetDefault("transport.tcp.port", 23)
	v.SetDefault("transport.tcp.timeout", 5000)
	v.SetDefault("transport.ws_bridge.url", "")

	v.SetDefault("polling.status_interval", "250ms")

	v.AutomaticEnv()
	v.SetEnvPrefix("GCNCD")

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SoftLimitsValue converts the loaded config into coord.SoftLimits.
func (c *Config) SoftLimitsValue() coord.SoftLimits {
	return coord.SoftLimits{
		X: coord.Interval{Min: c.SoftLimits.X.Min, Max: c.SoftLimits.X.Max},
		Y: coord.Interval{Min: c.SoftLimits.Y.Min, Max: c.SoftLimits.Y.Max},
		Z: coord.Interval{Min: c.SoftLimits.Z.Min, Max: c.SoftLimits.Z.Max},
	}
}

// SpeedLimitsValue converts the loaded config into coord.SpeedLimits.
func (c *Config) SpeedLimitsValue() coord.SpeedLimits {
	return coord.SpeedLimits{
		MaxFeedRate:     c.SpeedLimits.MaxFeedRate,
		MaxJogRate:      c.SpeedLimits.MaxJogRate,
		MaxAcceleration: c.SpeedLimits.MaxAcceleration,
	}
}

// Dialer builds the transport.Dialer selected by Transport.Kind.
func (c *Config) Dialer() (transport.Dialer, error) {
	switch c.Transport.Kind {
	case "", "serial":
		return transport.DialSerial(c.Transport.Serial), nil
	case "tcp":
		return transport.DialTCP(c.Transport.TCP), nil
	case "ws", "websocket":
		return transport.DialWebSocketBridge(c.Transport.WSBridge), nil
	default:
		return nil, errors.New("config: unknown transport kind " + c.Transport.Kind)
	}
}
