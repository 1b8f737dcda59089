// scopegrab arms a single acquisition (or reads the current one), fetches
// the waveforms of the requested channels and prints them as CSV.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/neilo40/scopewave/internal/config"
	"github.com/neilo40/scopewave/internal/monitor"
	"github.com/neilo40/scopewave/internal/mux"
	"github.com/neilo40/scopewave/internal/scope"
	"github.com/neilo40/scopewave/internal/scpi"
	"github.com/neilo40/scopewave/internal/transport"
)

const appName = "scopegrab"

func main() {
	var (
		configFile = kingpin.Flag("config", "Path to the YAML config file.").Default(config.DefaultPath).OverrideDefaultFromEnvar("SCOPEWAVE_CONFIG").String()
		kind       = kingpin.Flag("connection.kind", "Transport: tcp, visa, usbtmc or serial.").OverrideDefaultFromEnvar("SCOPEWAVE_KIND").String()
		address    = kingpin.Flag("connection.address", "Instrument address (host[:port], VISA resource or serial device).").OverrideDefaultFromEnvar("SCOPEWAVE_ADDRESS").String()
		model      = kingpin.Flag("model", "Builtin model descriptor.").OverrideDefaultFromEnvar("SCOPEWAVE_MODEL").Enum(scope.Builtins()...)
		channels   = kingpin.Flag("channel", "Channel to read, repeatable (1, CHAN2, ...).").Short('c').Strings()
		format     = kingpin.Flag("format", "Transfer format: ascii, i1, u1, <i2, >u2, ...").String()
		points     = kingpin.Flag("points", "Number of points to transfer.").Int()
		noGrab     = kingpin.Flag("no-grab", "Read the current acquisition instead of arming a new one.").Bool()
		force      = kingpin.Flag("force", "Force a software trigger after arming.").Bool()
		metrics    = kingpin.Flag("metrics", "Serve Prometheus metrics while running.").Bool()
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
	if len(*channels) > 0 {
		cfg.Acquisition.Channels = *channels
	}
	if *format != "" {
		cfg.Acquisition.Format = *format
	}
	if *points > 0 {
		cfg.Acquisition.Points = *points
	}
	if *noGrab {
		cfg.Acquisition.Single = false
	}
	if *force {
		cfg.Acquisition.SoftwareTrigger = true
	}
	if *metrics {
		cfg.Monitor.Enabled = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log := config.NewLogger(cfg.Log)
	log.Infof("starting %s %s", appName, version.Info())
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if cfg.Monitor.Enabled {
		m := monitor.NewMonitor(log)
		prometheus.MustRegister(version.NewCollector(appName))
		m.StartMetricsServer(cfg.Monitor.MetricsPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	m, err := cfg.ModelDescriptor()
	if err != nil {
		return err
	}
	f, err := cfg.Acquisition.DataFormat()
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

	var chans []scope.ChannelID
	for _, name := range cfg.Acquisition.Channels {
		ch, err := s.ParseInputChannel(name)
		if err != nil {
			return err
		}
		chans = append(chans, ch)
	}

	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.End()

	if cfg.Acquisition.Points > 0 {
		n, err := sess.SetPointsNumber(ctx, cfg.Acquisition.Points)
		if err != nil {
			return err
		}
		log.Infof("transferring %d points", n)
	}

	if cfg.Acquisition.Single {
		gctx := ctx
		if cfg.Acquisition.Timeout > 0 {
			var cancel context.CancelFunc
			gctx, cancel = context.WithTimeout(ctx, cfg.Acquisition.Timeout)
			defer cancel()
		}
		log.Info("waiting for trigger...")
		if err := sess.GrabSingle(gctx, scope.GrabOptions{Wait: true, SoftwareTrigger: cfg.Acquisition.SoftwareTrigger}); err != nil {
			return fmt.Errorf("acquisition: %w", err)
		}
		log.Info("trigger detected, fetching waveform data...")
	}

	sw, err := sess.ReadMultipleSweeps(ctx, chans, scope.ReadOptions{
		EnsureFormat: true,
		Format:       f,
		Mode:         mux.Partial,
	})
	if err != nil {
		return err
	}
	for ch, err := range sw.Errors {
		log.WithField("channel", ch.String()).Errorf("read failed: %v", err)
	}
	if err := writeCSV(os.Stdout, sw); err != nil {
		return err
	}
	return sw.Err()
}

// writeCSV prints one time/value column pair per channel; shorter waveforms
// leave their cells empty.
func writeCSV(w io.Writer, sw *scope.Sweeps) error {
	cw := csv.NewWriter(w)
	var header []string
	rows := 0
	for i, ch := range sw.Channels {
		name := "ch" + ch.String()
		header = append(header, "t_"+name, name)
		if n := len(sw.Waveforms[i]); n > rows {
			rows = n
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for r := 0; r < rows; r++ {
		for i, wf := range sw.Waveforms {
			if r < len(wf) {
				rec[2*i] = strconv.FormatFloat(wf[r].T, 'g', -1, 64)
				rec[2*i+1] = strconv.FormatFloat(wf[r].V, 'g', -1, 64)
			} else {
				rec[2*i], rec[2*i+1] = "", ""
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
