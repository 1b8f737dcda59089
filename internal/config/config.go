package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neilo40/scopewave/internal/scope"
)

// DefaultPath is where the CLIs look for a config file.
const DefaultPath = "configs/scopewave.yaml"

type Config struct {
	Connection  ConnectionConfig  `yaml:"connection"`
	Model       ModelConfig       `yaml:"model"`
	Channels    int               `yaml:"channels"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Log         LogConfig         `yaml:"log"`
	Monitor     MonitorConfig     `yaml:"monitor"`
}

// ConnectionConfig selects and parametrizes the transport.
type ConnectionConfig struct {
	Kind    string        `yaml:"kind"` // visa, usbtmc, serial or tcp
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`

	// serial
	Baud int `yaml:"baud"`

	// usbtmc
	VID         uint16 `yaml:"vid"`
	PID         uint16 `yaml:"pid"`
	EndpointOut int    `yaml:"endpoint_out"`
	EndpointIn  int    `yaml:"endpoint_in"`
}

// ModelConfig names a builtin descriptor. Overrides is decoded on top of
// it, so only the fields that differ need to be given.
type ModelConfig struct {
	Builtin   string    `yaml:"builtin"`
	Overrides yaml.Node `yaml:"overrides"`
}

type AcquisitionConfig struct {
	Channels        []string      `yaml:"channels"`
	Format          string        `yaml:"format"`
	Points          int           `yaml:"points"`
	Single          bool          `yaml:"single"`
	SoftwareTrigger bool          `yaml:"software_trigger"`
	Timeout         time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // json or text
	Output   string `yaml:"output"` // stderr or file
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig reads a YAML file. Keys missing from the file keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Kind:        "tcp",
			Address:     "192.168.1.70:5555",
			Timeout:     10 * time.Second,
			Baud:        9600,
			VID:         0x1ab1,
			PID:         0x04ce,
			EndpointOut: 3,
			EndpointIn:  1,
		},
		Model: ModelConfig{Builtin: "generic"},
		Acquisition: AcquisitionConfig{
			Channels: []string{"1"},
			Single:   true,
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Monitor: MonitorConfig{
			Enabled:     false,
			MetricsPort: 9101,
		},
	}
}

func (c *Config) Validate() error {
	switch c.Connection.Kind {
	case "visa", "usbtmc", "serial", "tcp":
	default:
		return fmt.Errorf("unknown connection kind %q", c.Connection.Kind)
	}
	if c.Connection.Kind != "usbtmc" && c.Connection.Address == "" {
		return fmt.Errorf("connection %s needs an address", c.Connection.Kind)
	}
	if c.Channels < 0 {
		return fmt.Errorf("negative channel count %d", c.Channels)
	}
	if c.Acquisition.Format != "" {
		if _, err := scope.ParseDataFormat(c.Acquisition.Format); err != nil {
			return fmt.Errorf("acquisition format: %w", err)
		}
	}
	if c.Acquisition.Points < 0 {
		return fmt.Errorf("negative points count %d", c.Acquisition.Points)
	}
	return nil
}

// ModelDescriptor resolves the builtin model and applies the overrides.
func (c *Config) ModelDescriptor() (scope.Model, error) {
	m, err := scope.Builtin(c.Model.Builtin)
	if err != nil {
		return scope.Model{}, err
	}
	if !c.Model.Overrides.IsZero() {
		if err := c.Model.Overrides.Decode(&m); err != nil {
			return scope.Model{}, fmt.Errorf("model overrides: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return scope.Model{}, err
	}
	return m, nil
}

// DataFormat is the acquisition format, or nil to keep the model default.
func (a AcquisitionConfig) DataFormat() (*scope.DataFormat, error) {
	if a.Format == "" {
		return nil, nil
	}
	f, err := scope.ParseDataFormat(a.Format)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
