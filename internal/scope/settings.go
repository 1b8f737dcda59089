package scope

import (
	"context"

	"github.com/neilo40/scopewave/internal/mux"
)

// ChannelSettings is the vertical setup of one analog input.
type ChannelSettings struct {
	Enabled          bool
	VerticalSpan     float64
	VerticalPosition float64
	Coupling         string
	ProbeAttenuation float64
}

// Settings is a snapshot of the instrument setup.
type Settings struct {
	Trigger          TriggerParameters
	TriggerSweep     string
	HorizontalSpan   float64
	HorizontalOffset float64
	Format           DataFormat
	Channels         map[ChannelID]ChannelSettings
	// per-channel failures; the rest of the snapshot is still valid
	ChannelErrors map[ChannelID]error
}

// Settings reads the trigger, timebase and per-channel setup. A channel
// that fails to answer is reported in ChannelErrors.
func (sess *Session) Settings(ctx context.Context) (*Settings, error) {
	st := &Settings{ChannelErrors: map[ChannelID]error{}}
	var err error
	if st.Trigger, err = sess.EdgeTrigger(ctx); err != nil {
		return nil, err
	}
	if st.TriggerSweep, err = sess.TriggerSweep(ctx); err != nil {
		return nil, err
	}
	if st.HorizontalSpan, err = sess.HorizontalSpan(ctx); err != nil {
		return nil, err
	}
	if st.HorizontalOffset, err = sess.HorizontalOffset(ctx); err != nil {
		return nil, err
	}
	if st.Format, err = sess.DataFormat(ctx); err != nil {
		return nil, err
	}
	res, err := ForChannels(ctx, sess, AllChannels(), mux.Partial, sess.channelSettings)
	if err != nil {
		return nil, err
	}
	st.Channels = res.Map()
	for _, ch := range res.Failed() {
		_, st.ChannelErrors[ch] = res.Get(ch)
	}
	return st, nil
}

func (sess *Session) channelSettings(ctx context.Context, ch ChannelID) (ChannelSettings, error) {
	var cs ChannelSettings
	var err error
	if cs.Enabled, err = sess.ChannelEnabled(ctx, ch); err != nil {
		return cs, err
	}
	if cs.VerticalSpan, err = sess.VerticalSpan(ctx, ch); err != nil {
		return cs, err
	}
	if cs.VerticalPosition, err = sess.VerticalPosition(ctx, ch); err != nil {
		return cs, err
	}
	if cs.Coupling, err = sess.Coupling(ctx, ch); err != nil {
		return cs, err
	}
	if cs.ProbeAttenuation, err = sess.ProbeAttenuation(ctx, ch); err != nil {
		return cs, err
	}
	return cs, nil
}
