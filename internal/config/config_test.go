package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/scope"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scopewave.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
connection:
  kind: usbtmc
  timeout: 2s
  pid: 0x0588
model:
  builtin: DS1000Z
  overrides:
    channels: 2
    software_trigger_delay: 500ms
    commands:
      run_state: ":TRIG:STAT?"
acquisition:
  channels: ["1", "2"]
  format: "u1"
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Connection.Kind != "usbtmc" || cfg.Connection.Timeout != 2*time.Second {
		t.Errorf("connection %+v", cfg.Connection)
	}
	if cfg.Connection.PID != 0x0588 || cfg.Connection.VID != 0x1ab1 {
		t.Errorf("vid/pid %#x/%#x", cfg.Connection.VID, cfg.Connection.PID)
	}
	// untouched keys keep their defaults
	if cfg.Log.Format != "text" || cfg.Monitor.MetricsPort != 9101 {
		t.Errorf("defaults lost: %+v %+v", cfg.Log, cfg.Monitor)
	}

	m, err := cfg.ModelDescriptor()
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "DS1000Z" || m.Channels != 2 || m.SoftwareTriggerDelay != 500*time.Millisecond {
		t.Errorf("model %s channels %d delay %v", m.Name, m.Channels, m.SoftwareTriggerDelay)
	}
	if !m.RangeCommands || m.Preamble.Separator != "," {
		t.Error("builtin fields not kept under overrides")
	}

	f, err := cfg.Acquisition.DataFormat()
	if err != nil || f == nil || *f != scope.Binary(scope.Unsigned, 1, scope.LittleEndian) {
		t.Errorf("format %v, %v", f, err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	tests := []string{
		"connection: [",
		"connection:\n  kind: gpib\n",
		"connection:\n  kind: serial\n  address: \"\"\n",
		"acquisition:\n  format: f4\n",
		"channels: -1\n",
	}
	for _, body := range tests {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%q accepted", body)
		}
	}
}

func TestModelDescriptorErrors(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Model.Builtin = "hp54600"
	if _, err := cfg.ModelDescriptor(); err == nil {
		t.Error("unknown builtin accepted")
	}

	path := writeConfig(t, "model:\n  builtin: generic\n  overrides:\n    horizontal_pos_mode: \"\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.ModelDescriptor(); err == nil {
		t.Error("undeclared horizontal position mode accepted")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	m, err := cfg.ModelDescriptor()
	if err != nil {
		t.Fatal(err)
	}
	if m.HorizontalPosMode != scope.PosRealCenter {
		t.Errorf("generic pos mode %q", m.HorizontalPosMode)
	}
	if f, err := cfg.Acquisition.DataFormat(); f != nil || err != nil {
		t.Errorf("default format %v, %v", f, err)
	}
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scope.log")
	log := NewLogger(LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	log.Debug("probe")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"probe"`) {
		t.Errorf("log file %q", data)
	}

	if l := NewLogger(LogConfig{Level: "loud"}); l.GetLevel() != logrus.InfoLevel {
		t.Errorf("bad level fell back to %v", l.GetLevel())
	}
}

func TestShippedConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatal(err)
	}
	m, err := cfg.ModelDescriptor()
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "DS1000Z" || m.SoftwareTriggerDelay != 500*time.Millisecond {
		t.Errorf("model %s delay %v", m.Name, m.SoftwareTriggerDelay)
	}
}
