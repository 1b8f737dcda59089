package scope

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/neilo40/scopewave/internal/scpi"
)

// fakeScope simulates an instrument: commands store their argument under
// their header and queries read it back. Unknown queries go unanswered.
type fakeScope struct {
	channels  int
	state     map[string]string
	preambles map[string]string // by :WAV:SOUR token
	data      map[string]string // :WAV:DATA? reply by :WAV:SOUR token
	coerce    map[string]string // header -> value the device stores instead
	silent    map[string]bool   // queries that never get an answer
	writes    []string
	out       bytes.Buffer
}

func newFakeScope(channels int) *fakeScope {
	f := &fakeScope{
		channels:  channels,
		preambles: map[string]string{},
		data:      map[string]string{},
		coerce:    map[string]string{},
		silent:    map[string]bool{},
		state: map[string]string{
			":WAV:SOUR":        "CHAN1",
			":WAV:FORM":        "BYTE",
			":WAV:UNS":         "0",
			":WAV:BYT":         "LSBF",
			":WAV:POIN":        "1000",
			":ACQ:POIN":        "1000",
			":ACQ:COMP":        "100",
			":RST":             "STOP",
			":TIM:SCAL":        "1E-04",
			":TIM:POS":         "0",
			":TRIG:EDGE:SOUR":  "CHAN1",
			":TRIG:EDGE:COUPL": "DC",
			":TRIG:EDGE:SLOPE": "POS",
			":TRIG:LEVEL":      "0.5",
			":TRIG:SWE":        "AUTO",
			":TRIG:MODE":       "EDGE",
		},
	}
	for i := 1; i <= channels; i++ {
		f.state[fmt.Sprintf(":CHAN%d:SCAL", i)] = "0.1"
		f.state[fmt.Sprintf(":CHAN%d:OFFS", i)] = "0"
		f.state[fmt.Sprintf(":CHAN%d:DISP", i)] = "1"
		f.state[fmt.Sprintf(":CHAN%d:COUP", i)] = "DC"
		f.state[fmt.Sprintf(":CHAN%d:PROB", i)] = "10"
		f.state[fmt.Sprintf(":CHAN%d:BWL", i)] = "0"
	}
	return f
}

func (f *fakeScope) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		f.writes = append(f.writes, line)
		f.handle(line)
	}
	return len(p), nil
}

func (f *fakeScope) handle(line string) {
	hdr, arg, _ := strings.Cut(line, " ")
	if !strings.HasSuffix(hdr, "?") {
		switch hdr {
		case ":SING":
			f.state[":ACQ:COMP"] = "0"
		case ":TRIG:FORC":
			f.state[":ACQ:COMP"] = "100"
		case ":RUN":
			f.state[":RST"] = "RUN"
		case ":STOP":
			f.state[":RST"] = "STOP"
		}
		if v, ok := f.coerce[hdr]; ok {
			arg = v
		}
		if arg != "" {
			f.state[hdr] = arg
		}
		return
	}
	if f.silent[hdr] {
		return
	}
	src := f.state[":WAV:SOUR"]
	switch hdr {
	case "*IDN?":
		f.reply("FAKE,DSO-X 2004A,0,1.0")
	case "*OPC?":
		f.state[":ACQ:COMP"] = "100"
		f.reply("1")
	case ":SYST:ERR?":
		f.reply("+0,\"No error\"")
	case ":WAV:PRE?":
		if p, ok := f.preambles[src]; ok {
			f.reply(p)
		}
	case ":WAV:DATA?":
		if d, ok := f.data[src]; ok {
			f.out.WriteString(d)
		}
	default:
		if v, ok := f.state[strings.TrimSuffix(hdr, "?")]; ok {
			f.reply(v)
		}
	}
}

func (f *fakeScope) reply(s string) { f.out.WriteString(s + "\n") }

func (f *fakeScope) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, fmt.Errorf("fake scope: %w", scpi.ErrTimeout)
	}
	return f.out.Read(p)
}

func (f *fakeScope) SetTimeout(time.Duration) error { return nil }
func (f *fakeScope) Close() error                   { return nil }

// count returns how many writes started with prefix.
func (f *fakeScope) count(prefix string) int {
	n := 0
	for _, w := range f.writes {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

func testModel() Model {
	m := agilent("test")
	m.SoftwareTriggerDelay = time.Millisecond
	m.StatusPollInterval = time.Millisecond
	return m
}

func openFake(t *testing.T, f *fakeScope, m Model) (*Scope, *Session) {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, scpi.NewInstrument(f, nil), Options{Model: m})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(sess.End)
	f.writes = nil
	return s, sess
}

// block frames data as a definite-length block.
func block(data []byte) string {
	n := fmt.Sprint(len(data))
	return fmt.Sprintf("#%d%s%s\n", len(n), n, data)
}
