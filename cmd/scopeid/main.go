// scopeid identifies an instrument and dumps its current setup as YAML.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"github.com/neilo40/scopewave/internal/config"
	"github.com/neilo40/scopewave/internal/scope"
	"github.com/neilo40/scopewave/internal/scpi"
	"github.com/neilo40/scopewave/internal/transport"
)

const appName = "scopeid"

type channelReport struct {
	Channel     string  `yaml:"channel"`
	Enabled     bool    `yaml:"enabled"`
	Span        float64 `yaml:"span"`
	Position    float64 `yaml:"position"`
	Coupling    string  `yaml:"coupling"`
	Attenuation float64 `yaml:"attenuation"`
	Error       string  `yaml:"error,omitempty"`
}

type report struct {
	Identity         string          `yaml:"identity"`
	Model            string          `yaml:"model"`
	Channels         []string        `yaml:"channels"`
	Format           string          `yaml:"format"`
	Acquisition      string          `yaml:"acquisition"`
	Points           int             `yaml:"points"`
	TriggerSource    string          `yaml:"trigger_source"`
	TriggerLevel     float64         `yaml:"trigger_level"`
	TriggerCoupling  string          `yaml:"trigger_coupling"`
	TriggerSlope     string          `yaml:"trigger_slope"`
	TriggerSweep     string          `yaml:"trigger_sweep"`
	HorizontalSpan   float64         `yaml:"horizontal_span"`
	HorizontalOffset float64         `yaml:"horizontal_offset"`
	Inputs           []channelReport `yaml:"inputs"`
}

func main() {
	var (
		configFile = kingpin.Flag("config", "Path to the YAML config file.").Default(config.DefaultPath).OverrideDefaultFromEnvar("SCOPEWAVE_CONFIG").String()
		kind       = kingpin.Flag("connection.kind", "Transport: tcp, visa, usbtmc or serial.").OverrideDefaultFromEnvar("SCOPEWAVE_KIND").String()
		address    = kingpin.Flag("connection.address", "Instrument address.").OverrideDefaultFromEnvar("SCOPEWAVE_ADDRESS").String()
		model      = kingpin.Flag("model", "Builtin model descriptor.").OverrideDefaultFromEnvar("SCOPEWAVE_MODEL").Enum(scope.Builtins()...)
		logLevel   = kingpin.Flag("log.level", "Log level.").String()
	)
	kingpin.Version(version.Print(appName))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v, using defaults\n", err)
		cfg = config.GetDefaultConfig()
	}
	if *kind != "" {
		cfg.Connection.Kind = *kind
	}
	if *address != "" {
		cfg.Connection.Address = *address
	}
	if *model != "" {
		cfg.Model.Builtin = *model
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := config.NewLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if err := run(context.Background(), cfg, log, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger, out io.Writer) error {
	m, err := cfg.ModelDescriptor()
	if err != nil {
		return err
	}
	tr, err := transport.Open(cfg.Connection, log)
	if err != nil {
		return err
	}
	in := scpi.NewInstrument(tr, log, scpi.WithTimeout(cfg.Connection.Timeout))
	s, err := scope.Open(ctx, in, scope.Options{Model: m, Channels: cfg.Channels, Logger: log})
	if err != nil {
		in.Close()
		return err
	}
	defer s.Close()

	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.End()

	r, err := describe(ctx, sess)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func describe(ctx context.Context, sess *scope.Session) (*report, error) {
	id, err := sess.Identify(ctx)
	if err != nil {
		return nil, err
	}
	st, err := sess.Settings(ctx)
	if err != nil {
		return nil, err
	}
	r := &report{
		Identity:         id,
		Model:            sess.Scope().Model().Name,
		Format:           st.Format.String(),
		Acquisition:      sess.State().String(),
		TriggerSource:    st.Trigger.Source.String(),
		TriggerLevel:     st.Trigger.Level,
		TriggerCoupling:  st.Trigger.Coupling,
		TriggerSlope:     st.Trigger.Slope,
		TriggerSweep:     st.TriggerSweep,
		HorizontalSpan:   st.HorizontalSpan,
		HorizontalOffset: st.HorizontalOffset,
	}
	if r.Points, err = sess.PointsNumber(ctx); err != nil {
		return nil, err
	}
	for _, ch := range sess.Scope().Channels(true) {
		r.Channels = append(r.Channels, ch.String())
	}

	for _, ch := range sess.Scope().Channels(false) {
		cr := channelReport{Channel: ch.String()}
		if err, ok := st.ChannelErrors[ch]; ok {
			cr.Error = err.Error()
		} else if c, ok := st.Channels[ch]; ok {
			cr.Enabled = c.Enabled
			cr.Span = c.VerticalSpan
			cr.Position = c.VerticalPosition
			cr.Coupling = c.Coupling
			cr.Attenuation = c.ProbeAttenuation
		}
		r.Inputs = append(r.Inputs, cr)
	}
	return r, nil
}
