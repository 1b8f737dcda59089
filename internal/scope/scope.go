// Package scope drives SCPI oscilloscopes: channel and setting registries,
// waveform format negotiation, preamble parsing, waveform transfer and
// scaling, and acquisition control. Instrument families differ only in
// their Model descriptor.
package scope

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/monitor"
	"github.com/neilo40/scopewave/internal/mux"
	"github.com/neilo40/scopewave/internal/param"
	"github.com/neilo40/scopewave/internal/scpi"
)

var errSessionEnded = errors.New("scope: session ended")

// Options configures Open.
type Options struct {
	Model Model
	// Channels overrides the model's analog channel count; 0 keeps it.
	Channels int
	Logger   *logrus.Logger
}

// Scope is one connected oscilloscope. All I/O goes through a Session
// obtained from Begin; the Scope itself holds only immutable setup data.
type Scope struct {
	in    *scpi.Instrument
	model Model
	log   *logrus.Logger
	lock  chan struct{}

	main   []ChannelID
	inputs *param.Enum[ChannelID]
	all    *param.Enum[ChannelID]

	coupling     *param.Enum[string]
	trigCoupling *param.Enum[string]
	slope        *param.Enum[string]
	sweep        *param.Enum[string]
	pointsMode   *param.Enum[string]

	// device-side state left by the previous session
	last sessionState
}

type sessionState struct {
	selected ChannelID
	state    AcqState
	modeSet  bool
}

// Open validates the model, determines the channel set and builds the
// parameter registries.
func Open(ctx context.Context, in *scpi.Instrument, opts Options) (*Scope, error) {
	m := opts.Model
	if opts.Channels > 0 {
		m.Channels = opts.Channels
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	n := m.Channels
	if n == 0 {
		var err error
		if n, err = detectChannels(ctx, in, m); err != nil {
			return nil, err
		}
	}
	s := &Scope{
		in:    in,
		model: m,
		log:   log,
		lock:  make(chan struct{}, 1),

		coupling:     param.Strings("coupling", []string{"ac", "dc"}, param.Upper(), param.MatchPrefix()),
		trigCoupling: param.Strings("trigger_coupling", []string{"ac", "dc", "lfr"}, param.Upper(), param.MatchPrefix()),
		slope:        param.Strings("trigger_slope", []string{"neg", "pos", "eith", "alt"}, param.Upper(), param.MatchPrefix()),
		sweep:        param.Strings("trigger_sweep", []string{"auto", "norm"}, param.Upper(), param.MatchPrefix()),
		pointsMode: param.New("points_mode", []param.Entry[string]{
			{Symbol: "normal", Token: "NORM"},
			{Symbol: "maximum", Token: "MAX"},
			{Symbol: "raw", Token: "RAW"},
		}, param.Upper(), param.MatchPrefix()),
	}
	for i := 1; i <= n; i++ {
		s.main = append(s.main, Analog(i))
	}
	s.inputs, s.all = channelRegistries(n, m.AuxChannels)
	log.WithFields(logrus.Fields{"model": m.Name, "channels": n}).Info("scope opened")
	return s, nil
}

func (s *Scope) Model() Model { return s.model }

// Channels lists the analog inputs, followed by the auxiliary sources when
// withAux is set.
func (s *Scope) Channels(withAux bool) []ChannelID {
	if withAux {
		return s.all.Symbols()
	}
	return append([]ChannelID(nil), s.main...)
}

// ParseChannel reads a channel name: "1", "chan1", "ext".
func (s *Scope) ParseChannel(text string) (ChannelID, error) {
	return s.all.Parse(text)
}

// ParseInputChannel is ParseChannel restricted to analog inputs.
func (s *Scope) ParseInputChannel(text string) (ChannelID, error) {
	return s.inputs.Parse(text)
}

// Close closes the instrument link.
func (s *Scope) Close() error {
	return s.in.Close()
}

// Begin takes exclusive use of the device. It blocks until the previous
// session ends or ctx is done.
func (s *Scope) Begin(ctx context.Context) (*Session, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Session{
		s:        s,
		in:       s.in,
		selected: s.last.selected,
		state:    s.last.state,
		modeSet:  s.last.modeSet,
	}, nil
}

// Session owns the device between Begin and End and carries the device
// state this package tracks: the channel selected for waveform transfer and
// the acquisition state. A Session is not safe for concurrent use.
type Session struct {
	s  *Scope
	in *scpi.Instrument

	// zero when unknown
	selected ChannelID
	state    AcqState
	// the model's transfer mode has been sent
	modeSet bool
	ended   bool
}

// End releases the device. Calling it twice is harmless.
func (sess *Session) End() {
	if sess.ended {
		return
	}
	sess.ended = true
	sess.s.last = sessionState{selected: sess.selected, state: sess.state, modeSet: sess.modeSet}
	<-sess.s.lock
}

func (sess *Session) Scope() *Scope { return sess.s }

// Identify returns the instrument identification string.
func (sess *Session) Identify(ctx context.Context) (string, error) {
	return sess.ask(ctx, "*IDN?")
}

// Resync re-reads the device state cached by the session. Use it after a
// timeout left the device in an unknown state.
func (sess *Session) Resync(ctx context.Context) (ChannelID, DataFormat, error) {
	sess.in.Flush()
	ch, err := sess.SelectedChannel(ctx)
	if err != nil {
		return ChannelID{}, DataFormat{}, err
	}
	f, err := sess.DataFormat(ctx)
	if err != nil {
		return ChannelID{}, DataFormat{}, err
	}
	return ch, f, nil
}

// SelectedChannel queries the channel selected for waveform transfer.
func (sess *Session) SelectedChannel(ctx context.Context) (ChannelID, error) {
	reply, err := sess.ask(ctx, ":WAV:SOUR?")
	if err != nil {
		return ChannelID{}, err
	}
	ch, err := sess.s.inputs.Symbol(reply)
	if err != nil {
		return ChannelID{}, err
	}
	sess.selected = ch
	return ch, nil
}

// SelectChannel selects ch for waveform transfer and returns the channel the
// device reports as selected.
func (sess *Session) SelectChannel(ctx context.Context, ch ChannelID) (ChannelID, error) {
	tok, err := sess.s.inputs.Token(ch)
	if err != nil {
		return ChannelID{}, err
	}
	sess.selected = ChannelID{}
	if err := sess.write(ctx, ":WAV:SOUR", tok); err != nil {
		return ChannelID{}, err
	}
	return sess.SelectedChannel(ctx)
}

// ensureSelected selects ch unless the session already knows it is.
func (sess *Session) ensureSelected(ctx context.Context, ch ChannelID) error {
	if sess.selected == ch {
		return nil
	}
	tok, err := sess.s.inputs.Token(ch)
	if err != nil {
		return err
	}
	if err := sess.write(ctx, ":WAV:SOUR", tok); err != nil {
		return err
	}
	sess.selected = ch
	return nil
}

func (sess *Session) inputToken(ch ChannelID) (string, error) {
	return sess.s.inputs.Token(ch)
}

// ForChannels runs a per-channel getter over sel. Channels outside the
// analog set are rejected up front in FailFast mode and reported per
// channel in Partial mode.
func ForChannels[V any](ctx context.Context, sess *Session, sel Channels, mode mux.Mode, op func(context.Context, ChannelID) (V, error)) (*mux.Result[ChannelID, V], error) {
	if mode == mux.FailFast {
		if err := sess.checkInputs(sel); err != nil {
			return nil, err
		}
	}
	res, err := mux.RunSelection(ctx, sel, sess.s.main, mode, func(ctx context.Context, ch ChannelID) (V, error) {
		if _, err := sess.s.inputs.Token(ch); err != nil {
			var zero V
			return zero, err
		}
		return op(ctx, ch)
	})
	if res != nil {
		sess.reportBatch(res.Failed())
	}
	return res, err
}

// SetForChannels runs a per-channel setter over sel with per-channel
// arguments resolved before anything is sent.
func SetForChannels[A, V any](ctx context.Context, sess *Session, sel Channels, args mux.Args[ChannelID, A], mode mux.Mode, op func(context.Context, ChannelID, A) (V, error)) (*mux.Result[ChannelID, V], error) {
	if mode == mux.FailFast {
		if err := sess.checkInputs(sel); err != nil {
			return nil, err
		}
	}
	res, err := mux.RunSelectionWith(ctx, sel, sess.s.main, args, mode, func(ctx context.Context, ch ChannelID, a A) (V, error) {
		if _, err := sess.s.inputs.Token(ch); err != nil {
			var zero V
			return zero, err
		}
		return op(ctx, ch, a)
	})
	if res != nil {
		sess.reportBatch(res.Failed())
	}
	return res, err
}

func (sess *Session) checkInputs(sel Channels) error {
	for _, ch := range sel.Resolve(sess.s.main) {
		if _, err := sess.s.inputs.Token(ch); err != nil {
			return err
		}
	}
	return nil
}

func (sess *Session) reportBatch(failed []ChannelID) {
	for _, ch := range failed {
		sess.s.log.WithField("channel", ch.String()).Warn("channel operation failed")
		monitor.BatchFailures.WithLabelValues(ch.String()).Inc()
	}
}

func (sess *Session) write(ctx context.Context, cmd string, args ...interface{}) error {
	if sess.ended {
		return errSessionEnded
	}
	return sess.note(sess.in.Write(ctx, cmd, args...))
}

func (sess *Session) ask(ctx context.Context, query string, args ...interface{}) (string, error) {
	if sess.ended {
		return "", errSessionEnded
	}
	reply, err := sess.in.Ask(ctx, query, args...)
	return reply, sess.note(err)
}

func (sess *Session) askFloat(ctx context.Context, query string, args ...interface{}) (float64, error) {
	if sess.ended {
		return 0, errSessionEnded
	}
	v, err := sess.in.AskFloat(ctx, query, args...)
	return v, sess.note(err)
}

func (sess *Session) askInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	if sess.ended {
		return 0, errSessionEnded
	}
	v, err := sess.in.AskInt(ctx, query, args...)
	return v, sess.note(err)
}

func (sess *Session) askBool(ctx context.Context, query string, args ...interface{}) (bool, error) {
	if sess.ended {
		return false, errSessionEnded
	}
	v, err := sess.in.AskBool(ctx, query, args...)
	return v, sess.note(err)
}

// note forgets cached device state after a transport failure.
func (sess *Session) note(err error) error {
	if err != nil && scpi.IsTransport(err) {
		sess.selected = ChannelID{}
		sess.modeSet = false
		sess.in.Flush()
		sess.s.log.WithError(err).Debug("transport error, device state cache dropped")
	}
	return err
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
