// Package config loads the motor server configuration.
//
// The configuration is a YAML file with global settings and one section per
// motor server, named with the "motor" prefix (motor1, motor2, ...). A .env
// file and the MOTOR_* environment variables override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arloliu/go-motor/motor"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the configuration file.
const (
	EnvConfig   = "MOTOR_CONFIG"
	EnvLogLevel = "MOTOR_LOG_LEVEL"
	EnvListen   = "MOTOR_LISTEN"
)

// Defaults applied to missing settings.
const (
	DefaultListen       = "127.0.0.1:7200"
	DefaultStepInterval = 10 * time.Millisecond
	DefaultRateWindow   = 10 * time.Second
	DefaultLogLevel     = "info"

	SectionPrefix = "motor"
)

// Device types.
const (
	TypeFilterWheel   = "filterwheel"
	TypeTunableFilter = "tunablefilter"
	TypePicomotor     = "picomotor"
	TypeLinearStage   = "linearstage"
	TypeGCS           = "gcs"
)

// Binding names for devices behind a vendor binding.
const (
	BindingSerial = "serial"
	BindingSim    = "sim"
)

var (
	// ErrNoConfigFile indicates that neither a path nor MOTOR_CONFIG was given.
	ErrNoConfigFile = errors.New("config: no configuration file")
	// ErrNoSection indicates a missing motor server section.
	ErrNoSection = errors.New("config: no such section")
)

// Config is the server configuration file.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	Listen       string        `yaml:"listen"`
	StepInterval time.Duration `yaml:"step_interval"`
	RateWindow   time.Duration `yaml:"rate_window"`

	Servers map[string]ServerConfig `yaml:",inline"`
}

// ServerConfig is one motor server section.
type ServerConfig struct {
	Name   string       `yaml:"name"`
	Listen string       `yaml:"listen"`
	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig describes the device driven by a server. Which fields apply
// depends on Type.
type DeviceConfig struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// serial devices (filterwheel, gcs with the serial binding)
	Serial SerialConfig `yaml:"serial"`

	// filterwheel
	Slots int `yaml:"slots"`

	// tunablefilter
	CommandFile string `yaml:"command_file"`

	// picomotor
	Address      string        `yaml:"address"`
	Timeout      time.Duration `yaml:"timeout"`
	MoveTimeout  time.Duration `yaml:"move_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Block        *bool         `yaml:"block"`

	// linearstage
	SerialNumber string `yaml:"serial_number"`

	// gcs and linearstage
	Binding string `yaml:"binding"`
	NAxes   int    `yaml:"naxes"`

	// Ranges overrides the travel range per 1-based axis.
	Ranges map[int]motor.Range `yaml:"ranges"`
}

// SerialConfig holds serial line settings. Zero values keep the line defaults.
type SerialConfig struct {
	Device        string        `yaml:"device"`
	BaudRate      int           `yaml:"baud_rate"`
	DataBits      int           `yaml:"data_bits"`
	Parity        string        `yaml:"parity"`
	StopBits      float64       `yaml:"stop_bits"`
	Driver        string        `yaml:"driver"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxIterations int           `yaml:"max_iterations"`
}

// LoadEnv loads .env files into the environment without overriding
// variables already set. With no arguments it loads ".env" from the working
// directory; a missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}

	return godotenv.Load(files...)
}

// Load reads the configuration file at path, or at $MOTOR_CONFIG when path
// is empty, and applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return nil, ErrNoConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML configuration. Relative file references are
// resolved against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults(baseDir)
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults(baseDir string) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.StepInterval == 0 {
		cfg.StepInterval = DefaultStepInterval
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = DefaultRateWindow
	}

	for section, srv := range cfg.Servers {
		if srv.Name == "" {
			srv.Name = section
		}
		if srv.Device.Name == "" {
			srv.Device.Name = srv.Name
		}
		if f := srv.Device.CommandFile; f != "" && !filepath.IsAbs(f) && baseDir != "" {
			srv.Device.CommandFile = filepath.Join(baseDir, f)
		}
		cfg.Servers[section] = srv
	}
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
}

func (cfg *Config) validate() error {
	if cfg.StepInterval < 0 {
		return fmt.Errorf("negative step_interval %s", cfg.StepInterval)
	}
	if cfg.RateWindow < 0 {
		return fmt.Errorf("negative rate_window %s", cfg.RateWindow)
	}
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("no %q section", SectionPrefix+"1")
	}

	for _, section := range cfg.Sections() {
		if !strings.HasPrefix(section, SectionPrefix) {
			return fmt.Errorf("unknown key %q", section)
		}
		srv := cfg.Servers[section]
		if err := srv.Device.validate(); err != nil {
			return fmt.Errorf("%s: %w", section, err)
		}
	}

	return nil
}

func (d *DeviceConfig) validate() error {
	switch d.Type {
	case TypeFilterWheel:
		if d.Serial.Device == "" {
			return errors.New("filterwheel requires serial.device")
		}
	case TypeTunableFilter:
		if d.CommandFile == "" {
			return errors.New("tunablefilter requires command_file")
		}
	case TypePicomotor:
		if d.Address == "" {
			return errors.New("picomotor requires address")
		}
	case TypeLinearStage:
		if d.SerialNumber == "" {
			return errors.New("linearstage requires serial_number")
		}
		if d.Binding != "" && d.Binding != BindingSim {
			return fmt.Errorf("linearstage binding %q not available", d.Binding)
		}
	case TypeGCS:
		switch d.Binding {
		case "", BindingSerial:
			if d.Serial.Device == "" {
				return errors.New("gcs serial binding requires serial.device")
			}
		case BindingSim:
		default:
			return fmt.Errorf("gcs binding %q not available", d.Binding)
		}
	case "":
		return errors.New("device type required")
	default:
		return fmt.Errorf("unknown device type %q", d.Type)
	}

	if d.NAxes < 0 {
		return fmt.Errorf("invalid naxes %d", d.NAxes)
	}
	for axis, r := range d.Ranges {
		if !r.Valid() {
			return fmt.Errorf("invalid range [%g, %g] for axis %d", r.Min, r.Max, axis)
		}
	}

	return nil
}

// Sections returns the motor server section names in order.
func (cfg *Config) Sections() []string {
	sections := make([]string, 0, len(cfg.Servers))
	for section := range cfg.Servers {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	return sections
}

// Server returns the section named section with its listen address
// resolved: $MOTOR_LISTEN, then the section's listen, then the global one.
func (cfg *Config) Server(section string) (ServerConfig, error) {
	srv, ok := cfg.Servers[section]
	if !ok {
		return ServerConfig{}, fmt.Errorf("%w: %q", ErrNoSection, section)
	}

	switch {
	case os.Getenv(EnvListen) != "":
		srv.Listen = os.Getenv(EnvListen)
	case srv.Listen == "":
		srv.Listen = cfg.Listen
	}

	return srv, nil
}
