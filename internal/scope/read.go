package scope

import (
	"context"
	"time"

	"github.com/neilo40/scopewave/internal/monitor"
	"github.com/neilo40/scopewave/internal/mux"
	"github.com/neilo40/scopewave/internal/scpi"
)

// ReadOptions tunes ReadMultipleSweeps.
type ReadOptions struct {
	// Preambles supplied from an earlier fetch skip the preamble round trip.
	// They are only valid while the channel's scaling and format are
	// unchanged.
	Preambles map[ChannelID]*Preamble
	// EnsureFormat sets the transfer format once before reading: the format
	// of the first channel's supplied preamble, else Format, else the
	// model's default.
	EnsureFormat bool
	Format       *DataFormat
	// Mode FailFast (default) aborts at the first failing channel; Partial
	// reads the rest and records the failure in Sweeps.Errors.
	Mode mux.Mode
}

// Sweeps is the result of a multi-channel read.
type Sweeps struct {
	Channels []ChannelID
	// Waveforms follows Channels; the entry of a failed channel is nil.
	Waveforms []Waveform
	Preambles map[ChannelID]*Preamble
	Errors    map[ChannelID]error
}

// Waveform returns the trace of ch or the error that prevented reading it.
func (s *Sweeps) Waveform(ch ChannelID) (Waveform, error) {
	if err, ok := s.Errors[ch]; ok {
		return nil, err
	}
	for i, c := range s.Channels {
		if c == ch {
			return s.Waveforms[i], nil
		}
	}
	return nil, &scpi.ValidationError{Param: "channel", Value: ch, Msg: "not part of this read"}
}

// Err reports the channels that failed in a partial read.
func (s *Sweeps) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	pf := &mux.PartialFailure[ChannelID]{Errs: s.Errors}
	for _, ch := range s.Channels {
		if _, ok := s.Errors[ch]; ok {
			pf.Keys = append(pf.Keys, ch)
		}
	}
	return pf
}

// ReadSweep reads one channel with the transfer format ensured. pre may be
// nil.
func (sess *Session) ReadSweep(ctx context.Context, ch ChannelID, pre *Preamble) (Waveform, *Preamble, error) {
	opts := ReadOptions{EnsureFormat: true}
	if pre != nil {
		opts.Preambles = map[ChannelID]*Preamble{ch: pre}
	}
	sw, err := sess.ReadMultipleSweeps(ctx, []ChannelID{ch}, opts)
	if err != nil {
		return nil, nil, err
	}
	return sw.Waveforms[0], sw.Preambles[ch], nil
}

// ReadMultipleSweeps reads several channels in order. Each channel is
// selected and its data requested back to back, so nothing can change the
// selection in between.
func (sess *Session) ReadMultipleSweeps(ctx context.Context, channels []ChannelID, opts ReadOptions) (*Sweeps, error) {
	sw := &Sweeps{
		Channels:  append([]ChannelID(nil), channels...),
		Waveforms: make([]Waveform, len(channels)),
		Preambles: make(map[ChannelID]*Preamble, len(channels)),
	}
	if len(channels) == 0 {
		return sw, nil
	}
	if err := sess.checkInputs(ChannelList(channels...)); err != nil {
		return nil, err
	}
	if err := sess.ensureTransferMode(ctx); err != nil {
		return nil, err
	}
	for ch, p := range opts.Preambles {
		sw.Preambles[ch] = p
	}

	if opts.EnsureFormat {
		want, err := sess.wantFormat(channels[0], opts)
		if err != nil {
			return nil, err
		}
		cur, err := sess.DataFormat(ctx)
		if err != nil {
			return nil, err
		}
		if cur != want {
			if _, err := sess.SetDataFormat(ctx, want); err != nil {
				return nil, err
			}
		}
	}

	var missing []ChannelID
	for _, ch := range channels {
		if sw.Preambles[ch] == nil {
			missing = append(missing, ch)
		}
	}
	pres, err := mux.Run(ctx, missing, opts.Mode, func(ctx context.Context, ch ChannelID) (*Preamble, error) {
		return sess.Preamble(ctx, ch, false)
	})
	if err != nil {
		return nil, err
	}
	for ch, p := range pres.Map() {
		sw.Preambles[ch] = p
	}
	sw.Errors = make(map[ChannelID]error)
	for _, ch := range pres.Failed() {
		_, sw.Errors[ch] = pres.Get(ch)
	}

	var todo []ChannelID
	for _, ch := range channels {
		if _, failed := sw.Errors[ch]; !failed {
			todo = append(todo, ch)
		}
	}
	res, err := mux.Run(ctx, todo, opts.Mode, func(ctx context.Context, ch ChannelID) (Waveform, error) {
		return sess.readSweepFast(ctx, ch, sw.Preambles[ch])
	})
	if err != nil {
		return nil, err
	}
	for i, ch := range channels {
		if w, err := res.Get(ch); err == nil {
			sw.Waveforms[i] = w
		}
	}
	for _, ch := range res.Failed() {
		_, sw.Errors[ch] = res.Get(ch)
	}
	failed := make([]ChannelID, 0, len(sw.Errors))
	for _, ch := range channels {
		if _, ok := sw.Errors[ch]; ok {
			failed = append(failed, ch)
		}
	}
	sess.reportBatch(failed)
	return sw, nil
}

func (sess *Session) wantFormat(first ChannelID, opts ReadOptions) (DataFormat, error) {
	if p := opts.Preambles[first]; p != nil && p.Format.Validate() == nil {
		return p.Format, nil
	}
	if opts.Format != nil {
		return *opts.Format, opts.Format.Validate()
	}
	return ParseDataFormat(sess.s.model.DefaultFormat)
}

// readSweepFast selects ch, requests its data and scales it with pre. The
// decoding format is the preamble's.
func (sess *Session) readSweepFast(ctx context.Context, ch ChannelID, pre *Preamble) (Waveform, error) {
	start := time.Now()
	if err := sess.ensureSelected(ctx, ch); err != nil {
		return nil, err
	}
	if err := sess.write(ctx, ":WAV:DATA?"); err != nil {
		return nil, err
	}
	raw, err := sess.readPayload(ctx, pre.Format)
	if err != nil {
		return nil, err
	}
	w, err := Scale(raw, pre)
	if err != nil {
		monitor.ProtocolErrors.Inc()
		return nil, err
	}
	monitor.SweepsRead.WithLabelValues(ch.String()).Inc()
	monitor.PointsRead.WithLabelValues(ch.String()).Add(float64(len(w)))
	monitor.SweepDuration.Observe(time.Since(start).Seconds())
	sess.s.log.WithField("channel", ch.String()).Debugf("read %d points", len(w))
	return w, nil
}

func (sess *Session) readPayload(ctx context.Context, f DataFormat) ([]float64, error) {
	if sess.ended {
		return nil, errSessionEnded
	}
	if f.IsASCII() {
		text, err := sess.in.ReadRaw(ctx)
		if err != nil {
			return nil, sess.note(err)
		}
		return DecodeASCII(text)
	}
	data, err := sess.in.ReadBlock(ctx)
	if err != nil {
		return nil, sess.note(err)
	}
	return DecodeBinary(data, f)
}

// ReadRawData reads unscaled samples from ch, or from the selected channel
// when ch is zero. A non-nil format is set first; otherwise the current one
// is used. It returns the format the data was decoded with.
func (sess *Session) ReadRawData(ctx context.Context, ch ChannelID, format *DataFormat) ([]float64, DataFormat, error) {
	var f DataFormat
	var err error
	if err = sess.ensureTransferMode(ctx); err != nil {
		return nil, DataFormat{}, err
	}
	if format != nil {
		f, err = sess.SetDataFormat(ctx, *format)
	} else {
		f, err = sess.DataFormat(ctx)
	}
	if err != nil {
		return nil, DataFormat{}, err
	}
	if !ch.IsZero() {
		if err := sess.ensureSelected(ctx, ch); err != nil {
			return nil, DataFormat{}, err
		}
	}
	if err := sess.write(ctx, ":WAV:DATA?"); err != nil {
		return nil, DataFormat{}, err
	}
	raw, err := sess.readPayload(ctx, f)
	if err != nil {
		return nil, DataFormat{}, err
	}
	return raw, f, nil
}
