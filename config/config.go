// Package config parses node startup configuration from flags and
// N2K_* environment variables, with flags taking precedence when both are
// set explicitly.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything cmd/n2knode needs to start a node.
type Config struct {
	Transport    string // "socketcan" or "actisense"
	CANInterface string // SocketCAN interface name, e.g. can0
	SerialDevice string // Actisense NGT-1 serial device path
	SerialBaud   int

	PreferredAddress uint8
	ManufacturerCode uint16
	UniqueNumber     uint32
	DeviceFunction   uint8
	DeviceClass      uint8
	IndustryGroup    uint8

	LogLevel     string
	MetricsAddr  string // empty disables the metrics HTTP server
	ManifestPath string
}

// Parse reads os.Args and the environment into a Config.
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses args (excluding the program name) the same way Parse
// does; split out so it can be exercised with a fixed argument list.
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("n2knode", flag.ContinueOnError)

	transport := fs.String("transport", "socketcan", "CAN transport: socketcan|actisense")
	canIf := fs.String("can-if", "can0", "SocketCAN interface name")
	serialDev := fs.String("serial", "/dev/ttyUSB0", "Actisense NGT-1 serial device path")
	serialBaud := fs.Int("baud", 115200, "Serial baud rate")
	preferredAddr := fs.Int("preferred-address", 35, "Preferred NMEA 2000 source address (0-251)")
	manufacturerCode := fs.Int("manufacturer-code", 2046, "ISO Name manufacturer code")
	uniqueNumber := fs.Int("unique-number", 1, "ISO Name unique number")
	deviceFunction := fs.Int("device-function", 130, "ISO Name device function")
	deviceClass := fs.Int("device-class", 25, "ISO Name device class")
	industryGroup := fs.Int("industry-group", 4, "ISO Name industry group (4 = marine)")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := fs.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9100); empty disables")
	manifestPath := fs.String("manifest", "./manifest.json", "PGN manifest path for cmd/gen-pgns")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })

	if *preferredAddr < 0 || *preferredAddr > 251 {
		return nil, fmt.Errorf("config: preferred-address must be 0-251 (got %d)", *preferredAddr)
	}

	cfg := &Config{
		Transport:        *transport,
		CANInterface:     *canIf,
		SerialDevice:     *serialDev,
		SerialBaud:       *serialBaud,
		PreferredAddress: uint8(*preferredAddr),
		ManufacturerCode: uint16(*manufacturerCode),
		UniqueNumber:     uint32(*uniqueNumber),
		DeviceFunction:   uint8(*deviceFunction),
		DeviceClass:      uint8(*deviceClass),
		IndustryGroup:    uint8(*industryGroup),
		LogLevel:         *logLevel,
		MetricsAddr:      *metricsAddr,
		ManifestPath:     *manifestPath,
	}

	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case "socketcan", "actisense":
	default:
		return fmt.Errorf("config: invalid transport %q", c.Transport)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log-level %q", c.LogLevel)
	}
	if c.PreferredAddress > 251 {
		return fmt.Errorf("config: preferred-address must be 0-251 (got %d)", c.PreferredAddress)
	}
	if c.SerialBaud <= 0 {
		return fmt.Errorf("config: baud must be > 0 (got %d)", c.SerialBaud)
	}
	return nil
}

// applyEnvOverrides maps N2K_* environment variables onto fields not
// explicitly set via flag. Flags always win over environment variables.
func applyEnvOverrides(c *Config, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) {
		v, ok := os.LookupEnv(k)
		return strings.TrimSpace(v), ok
	}

	if _, ok := set["transport"]; !ok {
		if v, ok := get("N2K_TRANSPORT"); ok && v != "" {
			c.Transport = v
		}
	}
	if _, ok := set["can-if"]; !ok {
		if v, ok := get("N2K_CAN_IF"); ok && v != "" {
			c.CANInterface = v
		}
	}
	if _, ok := set["serial"]; !ok {
		if v, ok := get("N2K_SERIAL"); ok && v != "" {
			c.SerialDevice = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("N2K_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.SerialBaud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid N2K_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["preferred-address"]; !ok {
		if v, ok := get("N2K_PREFERRED_ADDRESS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 251 {
				c.PreferredAddress = uint8(n)
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid N2K_PREFERRED_ADDRESS: %w", err)
			}
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("N2K_LOG_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("N2K_METRICS_ADDR"); ok {
			c.MetricsAddr = v
		}
	}
	if _, ok := set["manifest"]; !ok {
		if v, ok := get("N2K_PGN_MANIFEST"); ok && v != "" {
			c.ManifestPath = v
		}
	}
	return firstErr
}
