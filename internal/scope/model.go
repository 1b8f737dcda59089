package scope

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// HorizontalPosMode says how a model's timebase position command is scaled.
type HorizontalPosMode string

const (
	// PosRealCenter: the position is the time of the screen center, in s.
	PosRealCenter HorizontalPosMode = "real_center"
	// PosFraction: the position is the percentage of the record left of the
	// trigger; 50 is centered.
	PosFraction HorizontalPosMode = "frac"
)

// AttenuationKind is the shape of a model's probe command.
type AttenuationKind string

const (
	AttenuationFactor AttenuationKind = "att"  // 10 means a 10:1 probe
	AttenuationGain   AttenuationKind = "gain" // 0.1 means a 10:1 probe
)

// StatusStyle selects how acquisition progress is read.
type StatusStyle string

const (
	// StatusAcquireComplete reads a 0..100 completion count.
	StatusAcquireComplete StatusStyle = "acquire_complete"
	// StatusTrigger reads a trigger state word, STOP meaning done.
	StatusTrigger StatusStyle = "trigger_status"
)

// Commands holds the command spellings that differ between models. Query
// forms append "?".
type Commands struct {
	TriggerSource    string `yaml:"trigger_source"`
	TriggerCoupling  string `yaml:"trigger_coupling"`
	TriggerSlope     string `yaml:"trigger_slope"`
	TriggerLevel     string `yaml:"trigger_level"`
	TriggerSweep     string `yaml:"trigger_sweep"`
	TriggerMode      string `yaml:"trigger_mode"`
	ForceTrigger     string `yaml:"force_trigger"`
	Preamble         string `yaml:"preamble"`
	TimebaseScale    string `yaml:"timebase_scale"`
	TimebasePosition string `yaml:"timebase_position"`
	// ChannelProbe is a query format taking the channel number, answered
	// only for channels that exist. Empty disables autodetection.
	ChannelProbe   string `yaml:"channel_probe"`
	AcquireStatus  string `yaml:"acquire_status"`
	RunState       string `yaml:"run_state"`
	AcquiredPoints string `yaml:"acquired_points"`
	// WaveformMode selects which record a transfer reads; empty when the
	// model has no such setting.
	WaveformMode string `yaml:"waveform_mode"`
	// SampleRate sizes the record when the acquired point query answers
	// AUTO.
	SampleRate string `yaml:"sample_rate"`
}

// ProbeAttenuation describes the per-channel probe command (":CHANn:<Command>").
// An empty Command means the model has none and attenuation is always 1.
type ProbeAttenuation struct {
	Command string          `yaml:"command"`
	Kind    AttenuationKind `yaml:"kind"`
}

// PreambleLayout describes the waveform preamble reply.
type PreambleLayout struct {
	Separator string `yaml:"separator"`
	// Formats maps the format code (field 0) to byte, word, ascii, or ""
	// for a reserved code.
	Formats []string `yaml:"formats"`
	// YZeroInCounts marks models whose y-zero field is in raw counts rather
	// than volts.
	YZeroInCounts bool `yaml:"y_zero_in_counts"`
}

// Model is the capability descriptor that parametrizes the generic engine
// for one instrument family.
type Model struct {
	Name     string         `yaml:"name"`
	Commands Commands       `yaml:"commands"`
	Preamble PreambleLayout `yaml:"preamble"`

	// Channels is the analog channel count; 0 autodetects up to MaxChannels.
	Channels    int      `yaml:"channels"`
	MaxChannels int      `yaml:"max_channels"`
	AuxChannels []string `yaml:"aux_channels"`

	Probe             ProbeAttenuation  `yaml:"probe_attenuation"`
	HorizontalPosMode HorizontalPosMode `yaml:"horizontal_pos_mode"`

	// SoftwareTriggerDelay separates a single-shot arm from the forced
	// trigger; a trigger sent earlier is ignored by the instrument.
	SoftwareTriggerDelay time.Duration `yaml:"software_trigger_delay"`
	StatusPollInterval   time.Duration `yaml:"status_poll_interval"`
	Status               StatusStyle   `yaml:"status"`

	DefaultFormat  string `yaml:"default_format"`
	FixedUnsigned  bool   `yaml:"fixed_unsigned"`
	FixedByteOrder string `yaml:"fixed_byte_order"`

	// RangeCommands: the model takes :WAV:STAR/:WAV:STOP point ranges.
	RangeCommands bool `yaml:"range_commands"`
	// TransferMode is sent with Commands.WaveformMode once per session
	// before point ranges or data are read.
	TransferMode string `yaml:"transfer_mode"`
	// Divisions across the screen; 0 means 10.
	Divisions int `yaml:"horizontal_divisions"`
}

func (m Model) divisions() float64 {
	if m.Divisions > 0 {
		return float64(m.Divisions)
	}
	return 10
}

// Validate checks the descriptor. The horizontal position mode has no
// default and must be declared.
func (m Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model: name is empty")
	}
	switch m.HorizontalPosMode {
	case PosRealCenter, PosFraction:
	case "":
		return fmt.Errorf("model %s: horizontal_pos_mode must be declared (%s or %s)", m.Name, PosRealCenter, PosFraction)
	default:
		return fmt.Errorf("model %s: unknown horizontal_pos_mode %q", m.Name, m.HorizontalPosMode)
	}
	switch m.Probe.Kind {
	case AttenuationFactor, AttenuationGain:
	case "":
		if m.Probe.Command != "" {
			return fmt.Errorf("model %s: probe attenuation command needs a kind", m.Name)
		}
	default:
		return fmt.Errorf("model %s: unknown probe attenuation kind %q", m.Name, m.Probe.Kind)
	}
	switch m.Status {
	case StatusAcquireComplete, StatusTrigger:
	default:
		return fmt.Errorf("model %s: unknown status style %q", m.Name, m.Status)
	}
	if m.Preamble.Separator == "" || len(m.Preamble.Formats) == 0 {
		return fmt.Errorf("model %s: incomplete preamble layout", m.Name)
	}
	if _, err := ParseDataFormat(m.DefaultFormat); err != nil {
		return fmt.Errorf("model %s: default format: %w", m.Name, err)
	}
	if m.FixedByteOrder != "" {
		if _, err := parseOrderName(m.FixedByteOrder); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	if m.TransferMode != "" && m.Commands.WaveformMode == "" {
		return fmt.Errorf("model %s: transfer mode %q without a waveform mode command", m.Name, m.TransferMode)
	}
	if m.Divisions < 0 {
		return fmt.Errorf("model %s: negative horizontal divisions", m.Name)
	}
	if m.Channels < 0 {
		return fmt.Errorf("model %s: negative channel count", m.Name)
	}
	if m.Channels == 0 && (m.Commands.ChannelProbe == "" || m.MaxChannels < 1) {
		return fmt.Errorf("model %s: no channel count and no way to detect it", m.Name)
	}
	seen := map[string]bool{}
	for _, a := range m.AuxChannels {
		k := strings.ToLower(a)
		if k == "" || seen[k] {
			return fmt.Errorf("model %s: bad or duplicate aux channel %q", m.Name, a)
		}
		seen[k] = true
	}
	return nil
}

func agilent(name string) Model {
	return Model{
		Name: name,
		Commands: Commands{
			TriggerSource:    ":TRIG:EDGE:SOUR",
			TriggerCoupling:  ":TRIG:EDGE:COUPL",
			TriggerSlope:     ":TRIG:EDGE:SLOPE",
			TriggerLevel:     ":TRIG:LEVEL",
			TriggerSweep:     ":TRIG:SWE",
			TriggerMode:      ":TRIG:MODE",
			ForceTrigger:     ":TRIG:FORC",
			Preamble:         ":WAV:PRE",
			TimebaseScale:    ":TIM:SCAL",
			TimebasePosition: ":TIM:POS",
			ChannelProbe:     ":CHAN%d:BWL?",
			AcquireStatus:    ":ACQ:COMP?",
			RunState:         ":RST?",
			AcquiredPoints:   ":ACQ:POIN?",
		},
		Preamble: PreambleLayout{
			Separator: ";",
			Formats:   []string{"byte", "word", "", "ascii"},
		},
		MaxChannels:          16,
		AuxChannels:          []string{"ext", "line", "wgen"},
		Probe:                ProbeAttenuation{Command: "PROB", Kind: AttenuationFactor},
		HorizontalPosMode:    PosRealCenter,
		SoftwareTriggerDelay: 300 * time.Millisecond,
		StatusPollInterval:   100 * time.Millisecond,
		Status:               StatusAcquireComplete,
		DefaultFormat:        "<i1",
	}
}

// Rigol DS1000Z/MSO1000Z: comma-separated preamble with y-origin in counts,
// unsigned little-endian samples, point ranges via :WAV:STAR/:WAV:STOP over
// the RAW memory record, twelve divisions, and completion read from the
// trigger state.
func rigolDS1000Z() Model {
	m := agilent("DS1000Z")
	m.Commands.TriggerCoupling = ":TRIG:COUP"
	m.Commands.TriggerLevel = ":TRIG:EDG:LEV"
	m.Commands.TimebaseScale = ":TIM:MAIN:SCAL"
	m.Commands.TimebasePosition = ":TIM:MAIN:OFFS"
	m.Commands.ChannelProbe = ""
	m.Commands.AcquireStatus = ":TRIG:STAT?"
	m.Commands.RunState = ":TRIG:STAT?"
	m.Commands.AcquiredPoints = ":ACQ:MDEP?"
	m.Commands.WaveformMode = ":WAV:MODE"
	m.Commands.SampleRate = ":ACQ:SRAT?"
	m.Preamble = PreambleLayout{
		Separator:     ",",
		Formats:       []string{"byte", "word", "ascii"},
		YZeroInCounts: true,
	}
	m.Channels = 4
	m.MaxChannels = 4
	m.AuxChannels = []string{"ac"}
	for i := 0; i < 16; i++ {
		m.AuxChannels = append(m.AuxChannels, fmt.Sprintf("d%d", i))
	}
	m.StatusPollInterval = time.Second
	m.Status = StatusTrigger
	m.DefaultFormat = "u1"
	m.FixedUnsigned = true
	m.FixedByteOrder = "little"
	m.RangeCommands = true
	// NORMal mode only returns the screen record
	m.TransferMode = "RAW"
	m.Divisions = 12
	return m
}

var builtins = map[string]func() Model{
	"generic": func() Model { return agilent("generic") },
	"dso2000": func() Model { return agilent("DSO2000") },
	"mso2000": func() Model { return agilent("MSO2000") },
	"ds1000z": rigolDS1000Z,
}

// Builtin returns a fresh copy of a named model descriptor.
func Builtin(name string) (Model, error) {
	f, ok := builtins[strings.ToLower(name)]
	if !ok {
		return Model{}, fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(Builtins(), ", "))
	}
	return f(), nil
}

// Builtins lists the builtin model names.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
