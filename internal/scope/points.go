package scope

import (
	"context"
	"math"

	"github.com/neilo40/scopewave/internal/monitor"
	"github.com/neilo40/scopewave/internal/scpi"
)

// Up to this many points the normal (screen) record is enough.
const normalResolutionPoints = 1000

// PointsNumber returns how many points a waveform transfer returns.
func (sess *Session) PointsNumber(ctx context.Context) (int, error) {
	if sess.s.model.RangeCommands {
		start, stop, err := sess.DataRange(ctx)
		if err != nil {
			return 0, err
		}
		return stop - start + 1, nil
	}
	return sess.askInt(ctx, ":WAV:POIN?")
}

// SetPointsNumber requests n points per transfer and returns the effective
// count.
func (sess *Session) SetPointsNumber(ctx context.Context, n int) (int, error) {
	if n < 1 {
		return 0, &scpi.ValidationError{Param: "points", Value: n, Msg: "must be at least 1"}
	}
	if sess.s.model.RangeCommands {
		if _, _, err := sess.SetDataRange(ctx, 1, n); err != nil {
			return 0, err
		}
		return sess.PointsNumber(ctx)
	}
	mode := "normal"
	if n > normalResolutionPoints {
		mode = "maximum"
	}
	tok, err := sess.s.pointsMode.Token(mode)
	if err != nil {
		return 0, err
	}
	if err := sess.write(ctx, ":WAV:POIN:MODE", tok); err != nil {
		return 0, err
	}
	if err := sess.write(ctx, ":WAV:POIN", n); err != nil {
		return 0, err
	}
	return sess.PointsNumber(ctx)
}

// AcquiredPoints returns the number of points held in acquisition memory.
// A memory depth of AUTO is the sample rate times the screen time.
func (sess *Session) AcquiredPoints(ctx context.Context) (int, error) {
	cmds := sess.s.model.Commands
	reply, err := sess.ask(ctx, cmds.AcquiredPoints)
	if err != nil {
		return 0, err
	}
	if upper(reply) != "AUTO" {
		n, err := scpi.ParseInt(reply)
		if err != nil {
			monitor.ProtocolErrors.Inc()
			return 0, err
		}
		return n, nil
	}
	if cmds.SampleRate == "" {
		monitor.ProtocolErrors.Inc()
		return 0, scpi.Protocolf(reply, "%s has no sample rate query to size an AUTO memory depth", sess.s.model.Name)
	}
	rate, err := sess.askFloat(ctx, cmds.SampleRate)
	if err != nil {
		return 0, err
	}
	span, err := sess.HorizontalSpan(ctx)
	if err != nil {
		return 0, err
	}
	n := int(math.Round(rate * span))
	if n < 1 {
		monitor.ProtocolErrors.Inc()
		return 0, scpi.Protocolf(reply, "AUTO memory depth at %g Sa/s over %g s is empty", rate, span)
	}
	sess.s.log.WithField("points", n).Debug("AUTO memory depth sized from the sample rate")
	return n, nil
}

// ensureTransferMode sends the model's waveform mode once per session.
func (sess *Session) ensureTransferMode(ctx context.Context) error {
	m := sess.s.model
	if m.TransferMode == "" || sess.modeSet {
		return nil
	}
	if err := sess.write(ctx, m.Commands.WaveformMode, m.TransferMode); err != nil {
		return err
	}
	sess.modeSet = true
	return nil
}

// DataRange returns the 1-based inclusive range of points transferred.
func (sess *Session) DataRange(ctx context.Context) (int, int, error) {
	if !sess.s.model.RangeCommands {
		n, err := sess.askInt(ctx, ":WAV:POIN?")
		return 1, n, err
	}
	if err := sess.ensureTransferMode(ctx); err != nil {
		return 0, 0, err
	}
	start, err := sess.askInt(ctx, ":WAV:STAR?")
	if err != nil {
		return 0, 0, err
	}
	stop, err := sess.askInt(ctx, ":WAV:STOP?")
	if err != nil {
		return 0, 0, err
	}
	return start, stop, nil
}

// SetDataRange sets the transferred range, 1 <= start <= stop. stop is
// clamped to the acquired point count. Models without range commands only
// transfer from the first point.
func (sess *Session) SetDataRange(ctx context.Context, start, stop int) (int, int, error) {
	if start < 1 || stop < start {
		return 0, 0, &scpi.ValidationError{Param: "data range", Value: [2]int{start, stop}, Msg: "need 1 <= start <= stop"}
	}
	if !sess.s.model.RangeCommands && start != 1 {
		return 0, 0, &scpi.ValidationError{Param: "data range", Value: [2]int{start, stop},
			Msg: sess.s.model.Name + " transfers from the first point"}
	}
	if err := sess.ensureTransferMode(ctx); err != nil {
		return 0, 0, err
	}
	acquired, err := sess.AcquiredPoints(ctx)
	if err != nil {
		return 0, 0, err
	}
	if stop > acquired {
		stop = acquired
	}
	if start > stop {
		return 0, 0, &scpi.ValidationError{Param: "data range", Value: [2]int{start, stop},
			Msg: "start beyond the acquired points"}
	}
	if sess.s.model.RangeCommands {
		if err := sess.write(ctx, ":WAV:STAR", start); err != nil {
			return 0, 0, err
		}
		if err := sess.write(ctx, ":WAV:STOP", stop); err != nil {
			return 0, 0, err
		}
	} else {
		tok, _ := sess.s.pointsMode.Token("maximum")
		if stop <= normalResolutionPoints {
			tok, _ = sess.s.pointsMode.Token("normal")
		}
		if err := sess.write(ctx, ":WAV:POIN:MODE", tok); err != nil {
			return 0, 0, err
		}
		if err := sess.write(ctx, ":WAV:POIN", stop); err != nil {
			return 0, 0, err
		}
	}
	return sess.DataRange(ctx)
}
