package scope

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/neilo40/scopewave/internal/scpi"
)

func TestGrabSingleSoftwareTrigger(t *testing.T) {
	f := newFakeScope(1)
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()

	if err := sess.GrabSingle(ctx, GrabOptions{SoftwareTrigger: true}); err != nil {
		t.Fatal(err)
	}
	if len(f.writes) != 2 || f.writes[0] != ":SING" || f.writes[1] != ":TRIG:FORC" {
		t.Errorf("writes %v", f.writes)
	}
	if sess.State() != StateAcquiring {
		t.Errorf("state %v", sess.State())
	}
	grabbing, err := sess.IsGrabbing(ctx)
	if err != nil || grabbing {
		t.Errorf("IsGrabbing = %v, %v", grabbing, err)
	}
	if sess.State() != StateStopped {
		t.Errorf("state after completion %v", sess.State())
	}
}

func TestGrabSingleWait(t *testing.T) {
	f := newFakeScope(1)
	_, sess := openFake(t, f, testModel())
	if err := sess.GrabSingle(context.Background(), GrabOptions{Wait: true}); err != nil {
		t.Fatal(err)
	}
	if f.count("*OPC?") != 1 || sess.State() != StateStopped {
		t.Errorf("writes %v state %v", f.writes, sess.State())
	}
}

func TestGrabSingleCancelledDuringSettle(t *testing.T) {
	f := newFakeScope(1)
	m := testModel()
	m.SoftwareTriggerDelay = time.Hour
	_, sess := openFake(t, f, m)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sess.GrabSingle(ctx, GrabOptions{SoftwareTrigger: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
	if f.count(":TRIG:FORC") != 0 {
		t.Error("trigger forced after cancellation")
	}
}

func TestContinuous(t *testing.T) {
	f := newFakeScope(1)
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()
	if err := sess.GrabContinuous(ctx, true); err != nil {
		t.Fatal(err)
	}
	if on, err := sess.IsContinuous(ctx); err != nil || !on {
		t.Errorf("IsContinuous = %v, %v", on, err)
	}
	if err := sess.GrabContinuous(ctx, false); err != nil {
		t.Fatal(err)
	}
	if on, err := sess.IsContinuous(ctx); err != nil || on {
		t.Errorf("IsContinuous after stop = %v, %v", on, err)
	}
	if sess.State() != StateStopped {
		t.Errorf("state %v", sess.State())
	}
}

func TestTriggerStatusModel(t *testing.T) {
	f := newFakeScope(4)
	f.state[":TRIG:STAT"] = "WAIT"
	m, _ := Builtin("ds1000z")
	m.StatusPollInterval = time.Millisecond
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	if p, err := sess.AcquisitionProgress(ctx); err != nil || p != 0 {
		t.Errorf("progress %d, %v", p, err)
	}
	f.state[":TRIG:STAT"] = "STOP"
	if err := sess.WaitForGrabbing(ctx); err != nil {
		t.Fatal(err)
	}
	if f.count("*OPC?") != 0 {
		t.Error("trigger-status model waited with *OPC?")
	}
}

func TestSetupEdgeTrigger(t *testing.T) {
	f := newFakeScope(2)
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()

	got, err := sess.SetupEdgeTrigger(ctx, TriggerParameters{Source: External, Level: 1.5, Coupling: "lfr", Slope: "neg"})
	if err != nil {
		t.Fatal(err)
	}
	want := TriggerParameters{Source: External, Level: 1.5, Coupling: "lfr", Slope: "neg"}
	if got != want {
		t.Errorf("snapshot %+v, want %+v", got, want)
	}
	if f.state[":TRIG:EDGE:SOUR"] != "EXT" || f.state[":TRIG:MODE"] != "EDGE" {
		t.Errorf("device state %v", f.state)
	}

	f.writes = nil
	var ve *scpi.ValidationError
	_, err = sess.SetupEdgeTrigger(ctx, TriggerParameters{Source: Analog(1), Coupling: "dc", Slope: "up"})
	if !errors.As(err, &ve) || len(f.writes) != 0 {
		t.Errorf("bad slope: err %v, writes %v", err, f.writes)
	}
	if _, err := sess.SetEdgeTriggerSource(ctx, Analog(5)); !errors.As(err, &ve) {
		t.Errorf("bad source err = %v", err)
	}
}

func TestTriggerLongReplies(t *testing.T) {
	f := newFakeScope(2)
	f.state[":TRIG:EDGE:SLOPE"] = "NEGative"
	f.state[":TRIG:EDGE:SOUR"] = "CHANnel2"
	f.state[":TRIG:SWE"] = "NORMal"
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()
	if s, err := sess.EdgeTriggerSlope(ctx); err != nil || s != "neg" {
		t.Errorf("slope %q, %v", s, err)
	}
	if s, err := sess.TriggerSweep(ctx); err != nil || s != "norm" {
		t.Errorf("sweep %q, %v", s, err)
	}
	if _, err := sess.EdgeTriggerSource(ctx); err == nil {
		t.Error("CHANnel2 should not match a CHANn token")
	}
}

func TestHorizontalPos(t *testing.T) {
	tests := []struct {
		center, span, pos float64
	}{
		{0, 1e-3, 50},
		{2.5e-4, 1e-3, 75},
		{-5e-4, 1e-3, 0},
		{1, 1e-3, 100},
	}
	for _, tt := range tests {
		if got := ToHorizontalPos(PosFraction, tt.center, tt.span); math.Abs(got-tt.pos) > 1e-9 {
			t.Errorf("ToHorizontalPos(%v, %v) = %v, want %v", tt.center, tt.span, got, tt.pos)
		}
	}
	if got := FromHorizontalPos(PosFraction, 75, 1e-3); math.Abs(got-2.5e-4) > 1e-15 {
		t.Errorf("FromHorizontalPos = %v", got)
	}
	if ToHorizontalPos(PosRealCenter, 3e-3, 1) != 3e-3 || FromHorizontalPos(PosRealCenter, 3e-3, 1) != 3e-3 {
		t.Error("real-center mode must pass the offset through")
	}
}

func TestHorizontal(t *testing.T) {
	f := newFakeScope(1)
	m := testModel()
	m.HorizontalPosMode = PosFraction
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	span, err := sess.SetHorizontalSpan(ctx, 1e-3)
	if err != nil || math.Abs(span-1e-3) > 1e-15 {
		t.Errorf("span %v, %v", span, err)
	}
	off, err := sess.SetHorizontalOffset(ctx, 2.5e-4)
	if err != nil || math.Abs(off-2.5e-4) > 1e-12 {
		t.Errorf("offset %v, %v", off, err)
	}
	if p, _ := strconv.ParseFloat(f.state[":TIM:POS"], 64); math.Abs(p-75) > 1e-9 {
		t.Errorf("position sent as %s", f.state[":TIM:POS"])
	}
	var ve *scpi.ValidationError
	if _, err := sess.SetHorizontalSpan(ctx, 0); !errors.As(err, &ve) {
		t.Errorf("zero span err = %v", err)
	}
}

func TestProbeAttenuation(t *testing.T) {
	f := newFakeScope(2)
	m := testModel()
	m.Probe.Kind = AttenuationGain
	f.state[":CHAN1:PROB"] = "0.1"
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	if a, err := sess.ProbeAttenuation(ctx, Analog(1)); err != nil || math.Abs(a-10) > 1e-9 {
		t.Errorf("gain probe attenuation %v, %v", a, err)
	}
	if a, err := sess.SetProbeAttenuation(ctx, Analog(2), 100); err != nil || math.Abs(a-100) > 1e-9 {
		t.Errorf("set %v, %v", a, err)
	}
	if f.state[":CHAN2:PROB"] != "0.01" {
		t.Errorf("gain sent as %s", f.state[":CHAN2:PROB"])
	}

	m.Probe = ProbeAttenuation{}
	f2 := newFakeScope(1)
	_, sess2 := openFake(t, f2, m)
	if a, err := sess2.SetProbeAttenuation(ctx, Analog(1), 10); err != nil || a != 1 || len(f2.writes) != 0 {
		t.Errorf("no-probe model: %v, %v, %v", a, err, f2.writes)
	}
}

func TestVertical(t *testing.T) {
	f := newFakeScope(2)
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()
	if p, err := sess.SetVerticalPosition(ctx, Analog(2), -0.25); err != nil || p != -0.25 {
		t.Errorf("position %v, %v", p, err)
	}
	if c, err := sess.SetCoupling(ctx, Analog(1), "ac"); err != nil || c != "ac" {
		t.Errorf("coupling %q, %v", c, err)
	}
	var ve *scpi.ValidationError
	if _, err := sess.SetCoupling(ctx, Analog(1), "gnd"); !errors.As(err, &ve) {
		t.Errorf("bad coupling err = %v", err)
	}
	if _, err := sess.VerticalSpan(ctx, External); !errors.As(err, &ve) {
		t.Errorf("aux channel err = %v", err)
	}
}

func TestDataRange(t *testing.T) {
	f := newFakeScope(1)
	f.state[":ACQ:POIN"] = "1200"
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()

	var ve *scpi.ValidationError
	for _, r := range [][2]int{{0, 10}, {5, 3}, {2, 10}} {
		if _, _, err := sess.SetDataRange(ctx, r[0], r[1]); !errors.As(err, &ve) {
			t.Errorf("range %v err = %v", r, err)
		}
	}
	if len(f.writes) != 0 {
		t.Errorf("invalid ranges sent %v", f.writes)
	}

	start, stop, err := sess.SetDataRange(ctx, 1, 5000)
	if err != nil || start != 1 || stop != 1200 {
		t.Errorf("clamped range = %d..%d, %v", start, stop, err)
	}
	if f.state[":WAV:POIN:MODE"] != "MAX" {
		t.Errorf("points mode %s", f.state[":WAV:POIN:MODE"])
	}
	if n, err := sess.SetPointsNumber(ctx, 500); err != nil || n != 500 || f.state[":WAV:POIN:MODE"] != "NORM" {
		t.Errorf("SetPointsNumber = %d, %v, mode %s", n, err, f.state[":WAV:POIN:MODE"])
	}
}

func TestDataRangeCommands(t *testing.T) {
	f := newFakeScope(4)
	f.state[":ACQ:MDEP"] = "12000"
	f.state[":WAV:STAR"] = "1"
	f.state[":WAV:STOP"] = "1200"
	m, _ := Builtin("ds1000z")
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	start, stop, err := sess.SetDataRange(ctx, 100, 20000)
	if err != nil || start != 100 || stop != 12000 {
		t.Errorf("range = %d..%d, %v", start, stop, err)
	}
	if n, err := sess.PointsNumber(ctx); err != nil || n != 11901 {
		t.Errorf("PointsNumber = %d, %v", n, err)
	}
	if _, _, err := sess.SetDataRange(ctx, 13000, 14000); err == nil {
		t.Error("range beyond acquired points accepted")
	}
}

// index returns the position of the first write starting with prefix, or -1.
func (f *fakeScope) index(prefix string) int {
	for i, w := range f.writes {
		if strings.HasPrefix(w, prefix) {
			return i
		}
	}
	return -1
}

func TestDataRangeRawMode(t *testing.T) {
	f := newFakeScope(4)
	f.state[":ACQ:MDEP"] = "AUTO"
	f.state[":ACQ:SRAT"] = "1.000000e+06"
	f.state[":TIM:MAIN:SCAL"] = "1.000000e-03"
	f.state[":WAV:STAR"] = "1"
	f.state[":WAV:STOP"] = "1200"
	m, _ := Builtin("ds1000z")
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	// 1 MSa/s over twelve 1 ms divisions
	if n, err := sess.AcquiredPoints(ctx); err != nil || n != 12000 {
		t.Errorf("AcquiredPoints = %d, %v", n, err)
	}
	start, stop, err := sess.SetDataRange(ctx, 1, 20000)
	if err != nil || start != 1 || stop != 12000 {
		t.Errorf("range = %d..%d, %v", start, stop, err)
	}
	if _, _, err := sess.SetDataRange(ctx, 1, 500); err != nil {
		t.Fatal(err)
	}
	if n := f.count(":WAV:MODE RAW"); n != 1 {
		t.Errorf("RAW mode sent %d times: %v", n, f.writes)
	}
	if mode, star := f.index(":WAV:MODE "), f.index(":WAV:STAR "); mode < 0 || mode > star {
		t.Errorf("RAW mode not sent before the range: %v", f.writes)
	}
	if span, err := sess.HorizontalSpan(ctx); err != nil || math.Abs(span-12e-3) > 1e-15 {
		t.Errorf("HorizontalSpan = %g, %v", span, err)
	}
}

func TestRawModeBeforeData(t *testing.T) {
	f := newFakeScope(4)
	f.data["CHAN1"] = block([]byte{1, 2, 3})
	m, _ := Builtin("ds1000z")
	_, sess := openFake(t, f, m)
	ctx := context.Background()

	raw, _, err := sess.ReadRawData(ctx, Analog(1), nil)
	if err != nil || len(raw) != 3 {
		t.Fatalf("ReadRawData = %v, %v", raw, err)
	}
	if mode, data := f.index(":WAV:MODE RAW"), f.index(":WAV:DATA?"); mode < 0 || mode > data {
		t.Errorf("RAW mode not sent before the data request: %v", f.writes)
	}

	// a transport error forgets the mode
	f.silent[":TRIG:STAT?"] = true
	if _, err := sess.AcquisitionProgress(ctx); !scpi.IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	f.writes = nil
	if _, _, err := sess.DataRange(ctx); err != nil {
		t.Fatal(err)
	}
	if f.count(":WAV:MODE RAW") != 1 {
		t.Errorf("RAW mode not re-sent after a transport error: %v", f.writes)
	}
}

func TestAutoDepthWithoutSampleRate(t *testing.T) {
	f := newFakeScope(4)
	f.state[":ACQ:MDEP"] = "AUTO"
	m, _ := Builtin("ds1000z")
	m.Commands.SampleRate = ""
	_, sess := openFake(t, f, m)

	var pe *scpi.ProtocolError
	if _, _, err := sess.SetDataRange(context.Background(), 1, 100); !errors.As(err, &pe) || pe.Raw != "AUTO" {
		t.Errorf("err = %v, want ProtocolError on AUTO", err)
	}
	if f.count(":WAV:STAR") != 0 {
		t.Errorf("range sent without a known depth: %v", f.writes)
	}
}

func TestSettings(t *testing.T) {
	f := newFakeScope(3)
	f.silent[":CHAN3:OFFS?"] = true
	_, sess := openFake(t, f, testModel())

	st, err := sess.Settings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Trigger.Source != Analog(1) || st.TriggerSweep != "auto" || math.Abs(st.HorizontalSpan-1e-3) > 1e-15 {
		t.Errorf("globals %+v", st)
	}
	if cs, ok := st.Channels[Analog(2)]; !ok || !cs.Enabled || cs.ProbeAttenuation != 10 || cs.Coupling != "dc" {
		t.Errorf("channel 2 %+v", cs)
	}
	if _, ok := st.Channels[Analog(3)]; ok {
		t.Error("failed channel in snapshot")
	}
	if err := st.ChannelErrors[Analog(3)]; !scpi.IsTransport(err) {
		t.Errorf("channel 3 err = %v", err)
	}
}
