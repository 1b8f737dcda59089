package scope

import (
	"context"
)

// TriggerParameters is a snapshot of the edge trigger.
type TriggerParameters struct {
	Source   ChannelID
	Level    float64
	Coupling string
	Slope    string
}

// EdgeTriggerSource returns the edge trigger source.
func (sess *Session) EdgeTriggerSource(ctx context.Context) (ChannelID, error) {
	reply, err := sess.ask(ctx, sess.s.model.Commands.TriggerSource+"?")
	if err != nil {
		return ChannelID{}, err
	}
	return sess.s.all.Symbol(reply)
}

// SetEdgeTriggerSource sets the edge trigger source, an analog input or an
// auxiliary source.
func (sess *Session) SetEdgeTriggerSource(ctx context.Context, src ChannelID) (ChannelID, error) {
	tok, err := sess.s.all.Token(src)
	if err != nil {
		return ChannelID{}, err
	}
	if err := sess.write(ctx, sess.s.model.Commands.TriggerSource, tok); err != nil {
		return ChannelID{}, err
	}
	return sess.EdgeTriggerSource(ctx)
}

// EdgeTriggerCoupling returns ac, dc or lfr.
func (sess *Session) EdgeTriggerCoupling(ctx context.Context) (string, error) {
	reply, err := sess.ask(ctx, sess.s.model.Commands.TriggerCoupling+"?")
	if err != nil {
		return "", err
	}
	return sess.s.trigCoupling.Symbol(reply)
}

func (sess *Session) SetEdgeTriggerCoupling(ctx context.Context, coupling string) (string, error) {
	tok, err := sess.s.trigCoupling.Token(coupling)
	if err != nil {
		return "", err
	}
	if err := sess.write(ctx, sess.s.model.Commands.TriggerCoupling, tok); err != nil {
		return "", err
	}
	return sess.EdgeTriggerCoupling(ctx)
}

// EdgeTriggerSlope returns neg, pos, eith or alt.
func (sess *Session) EdgeTriggerSlope(ctx context.Context) (string, error) {
	reply, err := sess.ask(ctx, sess.s.model.Commands.TriggerSlope+"?")
	if err != nil {
		return "", err
	}
	return sess.s.slope.Symbol(reply)
}

func (sess *Session) SetEdgeTriggerSlope(ctx context.Context, slope string) (string, error) {
	tok, err := sess.s.slope.Token(slope)
	if err != nil {
		return "", err
	}
	if err := sess.write(ctx, sess.s.model.Commands.TriggerSlope, tok); err != nil {
		return "", err
	}
	return sess.EdgeTriggerSlope(ctx)
}

// TriggerLevel returns the trigger level in volts.
func (sess *Session) TriggerLevel(ctx context.Context) (float64, error) {
	return sess.askFloat(ctx, sess.s.model.Commands.TriggerLevel+"?")
}

func (sess *Session) SetTriggerLevel(ctx context.Context, level float64) (float64, error) {
	if err := sess.write(ctx, sess.s.model.Commands.TriggerLevel, level); err != nil {
		return 0, err
	}
	return sess.TriggerLevel(ctx)
}

// TriggerSweep returns auto or norm.
func (sess *Session) TriggerSweep(ctx context.Context) (string, error) {
	reply, err := sess.ask(ctx, sess.s.model.Commands.TriggerSweep+"?")
	if err != nil {
		return "", err
	}
	return sess.s.sweep.Symbol(reply)
}

func (sess *Session) SetTriggerSweep(ctx context.Context, sweep string) (string, error) {
	tok, err := sess.s.sweep.Token(sweep)
	if err != nil {
		return "", err
	}
	if err := sess.write(ctx, sess.s.model.Commands.TriggerSweep, tok); err != nil {
		return "", err
	}
	return sess.TriggerSweep(ctx)
}

// EdgeTrigger reads the edge trigger snapshot.
func (sess *Session) EdgeTrigger(ctx context.Context) (TriggerParameters, error) {
	var tp TriggerParameters
	var err error
	if tp.Source, err = sess.EdgeTriggerSource(ctx); err != nil {
		return TriggerParameters{}, err
	}
	if tp.Level, err = sess.TriggerLevel(ctx); err != nil {
		return TriggerParameters{}, err
	}
	if tp.Coupling, err = sess.EdgeTriggerCoupling(ctx); err != nil {
		return TriggerParameters{}, err
	}
	if tp.Slope, err = sess.EdgeTriggerSlope(ctx); err != nil {
		return TriggerParameters{}, err
	}
	return tp, nil
}

// SetupEdgeTrigger switches to edge triggering with the given parameters and
// returns the resulting snapshot. All values are checked before anything is
// sent.
func (sess *Session) SetupEdgeTrigger(ctx context.Context, tp TriggerParameters) (TriggerParameters, error) {
	src, err := sess.s.all.Token(tp.Source)
	if err != nil {
		return TriggerParameters{}, err
	}
	coupling, err := sess.s.trigCoupling.Token(tp.Coupling)
	if err != nil {
		return TriggerParameters{}, err
	}
	slope, err := sess.s.slope.Token(tp.Slope)
	if err != nil {
		return TriggerParameters{}, err
	}
	c := sess.s.model.Commands
	steps := []struct {
		cmd string
		arg interface{}
	}{
		{c.TriggerMode, "EDGE"},
		{c.TriggerSource, src},
		{c.TriggerCoupling, coupling},
		{c.TriggerSlope, slope},
		{c.TriggerLevel, tp.Level},
	}
	for _, st := range steps {
		if err := sess.write(ctx, st.cmd, st.arg); err != nil {
			return TriggerParameters{}, err
		}
	}
	return sess.EdgeTrigger(ctx)
}
