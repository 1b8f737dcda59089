package scope

import (
	"context"
	"math"

	"github.com/neilo40/scopewave/internal/scpi"
)

// The channel scale is per division over ten divisions.
const verticalDivisions = 10

// channelCommand builds ":CHANn:<suffix>" after validating ch.
func (sess *Session) channelCommand(ch ChannelID, suffix string) (string, error) {
	tok, err := sess.inputToken(ch)
	if err != nil {
		return "", err
	}
	return ":" + tok + ":" + suffix, nil
}

// VerticalSpan returns the screen voltage span of ch.
func (sess *Session) VerticalSpan(ctx context.Context, ch ChannelID) (float64, error) {
	cmd, err := sess.channelCommand(ch, "SCAL")
	if err != nil {
		return 0, err
	}
	v, err := sess.askFloat(ctx, cmd+"?")
	return v * verticalDivisions, err
}

func (sess *Session) SetVerticalSpan(ctx context.Context, ch ChannelID, span float64) (float64, error) {
	cmd, err := sess.channelCommand(ch, "SCAL")
	if err != nil {
		return 0, err
	}
	if !(span > 0) || math.IsInf(span, 0) {
		return 0, &scpi.ValidationError{Param: "vertical span", Value: span, Msg: "must be positive"}
	}
	if err := sess.write(ctx, cmd, span/verticalDivisions); err != nil {
		return 0, err
	}
	return sess.VerticalSpan(ctx, ch)
}

// VerticalPosition returns the offset voltage of ch.
func (sess *Session) VerticalPosition(ctx context.Context, ch ChannelID) (float64, error) {
	cmd, err := sess.channelCommand(ch, "OFFS")
	if err != nil {
		return 0, err
	}
	return sess.askFloat(ctx, cmd+"?")
}

func (sess *Session) SetVerticalPosition(ctx context.Context, ch ChannelID, pos float64) (float64, error) {
	cmd, err := sess.channelCommand(ch, "OFFS")
	if err != nil {
		return 0, err
	}
	if err := sess.write(ctx, cmd, pos); err != nil {
		return 0, err
	}
	return sess.VerticalPosition(ctx, ch)
}

// ChannelEnabled reports whether ch is displayed.
func (sess *Session) ChannelEnabled(ctx context.Context, ch ChannelID) (bool, error) {
	cmd, err := sess.channelCommand(ch, "DISP")
	if err != nil {
		return false, err
	}
	return sess.askBool(ctx, cmd+"?")
}

func (sess *Session) EnableChannel(ctx context.Context, ch ChannelID, enable bool) (bool, error) {
	cmd, err := sess.channelCommand(ch, "DISP")
	if err != nil {
		return false, err
	}
	if err := sess.write(ctx, cmd, enable); err != nil {
		return false, err
	}
	return sess.ChannelEnabled(ctx, ch)
}

// Coupling returns ac or dc.
func (sess *Session) Coupling(ctx context.Context, ch ChannelID) (string, error) {
	cmd, err := sess.channelCommand(ch, "COUP")
	if err != nil {
		return "", err
	}
	reply, err := sess.ask(ctx, cmd+"?")
	if err != nil {
		return "", err
	}
	return sess.s.coupling.Symbol(reply)
}

func (sess *Session) SetCoupling(ctx context.Context, ch ChannelID, coupling string) (string, error) {
	cmd, err := sess.channelCommand(ch, "COUP")
	if err != nil {
		return "", err
	}
	tok, err := sess.s.coupling.Token(coupling)
	if err != nil {
		return "", err
	}
	if err := sess.write(ctx, cmd, tok); err != nil {
		return "", err
	}
	return sess.Coupling(ctx, ch)
}

// ProbeAttenuation returns the probe factor of ch (10 for a 10:1 probe).
// Models without a probe command always report 1.
func (sess *Session) ProbeAttenuation(ctx context.Context, ch ChannelID) (float64, error) {
	p := sess.s.model.Probe
	cmd, err := sess.channelCommand(ch, p.Command)
	if err != nil {
		return 0, err
	}
	if p.Command == "" {
		return 1, nil
	}
	v, err := sess.askFloat(ctx, cmd+"?")
	if err != nil {
		return 0, err
	}
	if p.Kind == AttenuationGain {
		if v == 0 {
			return 0, scpi.Protocolf("0", "%s reports zero probe gain", cmd)
		}
		return 1 / v, nil
	}
	return v, nil
}

func (sess *Session) SetProbeAttenuation(ctx context.Context, ch ChannelID, att float64) (float64, error) {
	p := sess.s.model.Probe
	cmd, err := sess.channelCommand(ch, p.Command)
	if err != nil {
		return 0, err
	}
	if !(att > 0) || math.IsInf(att, 0) {
		return 0, &scpi.ValidationError{Param: "probe attenuation", Value: att, Msg: "must be positive"}
	}
	if p.Command == "" {
		return 1, nil
	}
	v := att
	if p.Kind == AttenuationGain {
		v = 1 / att
	}
	if err := sess.write(ctx, cmd, v); err != nil {
		return 0, err
	}
	return sess.ProbeAttenuation(ctx, ch)
}
