package scope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/neilo40/scopewave/internal/scpi"
)

func TestParsePreamble(t *testing.T) {
	p, err := ParsePreamble("1;0;1000;1;1e-6;0;-500;0.01;0;0", DefaultPreambleLayout())
	if err != nil {
		t.Fatal(err)
	}
	if p.Format.Encoding != EncodingBinary || p.Format.Size != 2 {
		t.Errorf("Format = %#v, want a word format", p.Format)
	}
	if p.Type != AcqNormal || p.Points != 1000 || p.Count != 1 {
		t.Errorf("type/points/count = %v/%d/%d", p.Type, p.Points, p.Count)
	}
	if p.XIncrement != 1e-6 || p.XZero != 0 || p.PointOffset != -500 {
		t.Errorf("x axis = %v/%v/%d", p.XIncrement, p.XZero, p.PointOffset)
	}
	if p.YMultiplier != 0.01 || p.YZero != 0 || p.YOffset != 0 {
		t.Errorf("y axis = %v/%v/%v", p.YMultiplier, p.YZero, p.YOffset)
	}
}

func TestParsePreambleAgilentReply(t *testing.T) {
	raw := "+0;+2;+62500;+1;+3.20000000E-09;-1.00000000E-04;+0;+1.17187500E-03;+0.00000E+00;+128\n"
	p, err := ParsePreamble(raw, DefaultPreambleLayout())
	if err != nil {
		t.Fatal(err)
	}
	if p.Format.Size != 1 || p.Type != AcqAverage || p.Points != 62500 || p.YOffset != 128 {
		t.Errorf("parsed %+v", p)
	}
}

func TestParsePreambleRejects(t *testing.T) {
	tests := []string{
		"",
		"1;0;1000;1;1e-6;0;-500;0.01;0",
		"1;0;many;1;1e-6;0;-500;0.01;0;0",
		"1;0;1000;1;1e-6;0;-500;0.01;0;x",
		"2;0;1000;1;1e-6;0;-500;0.01;0;0",
		"7;0;1000;1;1e-6;0;-500;0.01;0;0",
		"0;9;1000;1;1e-6;0;-500;0.01;0;0",
		"0;0;10.5;1;1e-6;0;-500;0.01;0;0",
	}
	for _, raw := range tests {
		_, err := ParsePreamble(raw, DefaultPreambleLayout())
		var pe *scpi.ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("%q: err = %v, want ProtocolError", raw, err)
			continue
		}
		if pe.Raw != raw {
			t.Errorf("%q: raw reply not attached: %q", raw, pe.Raw)
		}
	}
}

func TestParsePreambleFieldCount(t *testing.T) {
	fields := []string{"0", "0", "5", "1", "1e-3", "0", "0", "1", "0", "0"}
	for n := 0; n < len(fields); n++ {
		if _, err := ParsePreamble(strings.Join(fields[:n], ";"), PreambleLayout{}); err == nil {
			t.Errorf("%d fields accepted", n)
		}
	}
	if _, err := ParsePreamble(strings.Join(append(fields, "extra"), ";"), PreambleLayout{}); err != nil {
		t.Errorf("trailing field rejected: %v", err)
	}
}

func TestParsePreambleRigolLayout(t *testing.T) {
	m, _ := Builtin("ds1000z")
	p, err := ParsePreamble("2,0,1200,1,1.000000e-06,-6.000000e-04,0,4.132813e-01,0,122", m.Preamble)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Format.IsASCII() || !p.YZeroInCounts || p.Points != 1200 {
		t.Errorf("parsed %+v", p)
	}
}

func TestSessionPreamble(t *testing.T) {
	f := newFakeScope(2)
	f.preambles["CHAN2"] = "1;0;3;1;2e-9;0;0;0.02;0;128"
	f.state[":CHAN2:DISP"] = "0"
	f.state[":WAV:UNS"] = "1"
	f.state[":WAV:BYT"] = "MSBF"
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()

	p, err := sess.Preamble(ctx, Analog(2), false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Channel != Analog(2) || p.Format != Binary(Unsigned, 2, BigEndian) {
		t.Errorf("preamble channel %v format %s", p.Channel, p.Format)
	}
	if f.state[":CHAN2:DISP"] != "0" {
		t.Error("channel enabled without being asked")
	}

	if _, err := sess.Preamble(ctx, Analog(2), true); err != nil {
		t.Fatal(err)
	}
	if f.state[":CHAN2:DISP"] != "1" {
		t.Error("channel not enabled")
	}
	if n := f.count(":WAV:SOUR "); n != 1 {
		t.Errorf("selected %d times, want once", n)
	}
}

func TestPreambleOfSelectedChannel(t *testing.T) {
	f := newFakeScope(2)
	f.state[":WAV:SOUR"] = "CHAN2"
	f.preambles["CHAN2"] = "3;0;20;1;1e-6;0;0;1;0;0"
	_, sess := openFake(t, f, testModel())
	ctx := context.Background()

	// the first read asks the device, the second uses the cached selection
	for i := 0; i < 2; i++ {
		p, err := sess.Preamble(ctx, ChannelID{}, false)
		if err != nil {
			t.Fatal(err)
		}
		if p.Channel != Analog(2) || p.Points != 20 {
			t.Errorf("read %d: channel %v points %d", i, p.Channel, p.Points)
		}
	}
	if n := f.count(":WAV:SOUR?"); n != 1 {
		t.Errorf("selection queried %d times: %v", n, f.writes)
	}
	if n := f.count(":WAV:SOUR "); n != 0 {
		t.Errorf("selection changed: %v", f.writes)
	}
}

func TestPreambles(t *testing.T) {
	f := newFakeScope(3)
	for i := 1; i <= 3; i++ {
		f.preambles[fmt.Sprintf("CHAN%d", i)] = fmt.Sprintf("3;0;%d;1;1e-6;0;0;1;0;0", i*10)
	}
	_, sess := openFake(t, f, testModel())
	pres, err := sess.Preambles(context.Background(), AllChannels(), false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if p := pres[Analog(i)]; p == nil || p.Points != i*10 || !p.Format.IsASCII() {
			t.Errorf("channel %d preamble %+v", i, p)
		}
	}
}
