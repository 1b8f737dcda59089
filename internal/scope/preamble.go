package scope

import (
	"context"
	"strings"

	"github.com/neilo40/scopewave/internal/mux"
	"github.com/neilo40/scopewave/internal/scpi"
)

// AcquisitionType is the acquisition mode recorded in a preamble.
type AcquisitionType int

const (
	AcqNormal AcquisitionType = iota
	AcqPeak
	AcqAverage
	AcqHighRes
)

var acquisitionTypeNames = []string{"normal", "peak", "average", "hres"}

func (t AcquisitionType) String() string {
	if t < 0 || int(t) >= len(acquisitionTypeNames) {
		return "unknown"
	}
	return acquisitionTypeNames[t]
}

// Preamble is the metadata describing a transferred waveform.
type Preamble struct {
	// Channel is set when the preamble was read from a session.
	Channel ChannelID
	Format  DataFormat
	Type    AcquisitionType
	Points  int
	Count   int

	XIncrement  float64
	XZero       float64
	PointOffset int

	YMultiplier float64
	YZero       float64
	YOffset     float64
	// YZeroInCounts: YZero is in raw counts, not volts.
	YZeroInCounts bool

	Raw string
}

const preambleFields = 10

// DefaultPreambleLayout is the semicolon separated layout with format codes
// byte, word, reserved, ascii.
func DefaultPreambleLayout() PreambleLayout {
	return PreambleLayout{Separator: ";", Formats: []string{"byte", "word", "", "ascii"}}
}

// ParsePreamble decodes a preamble reply by field position. For binary
// formats only the sample size is known from the reply; the element kind and
// byte order are left zero.
func ParsePreamble(raw string, layout PreambleLayout) (*Preamble, error) {
	if layout.Separator == "" {
		layout.Separator = ";"
	}
	if len(layout.Formats) == 0 {
		layout.Formats = DefaultPreambleLayout().Formats
	}
	fields := strings.Split(strings.TrimSpace(raw), layout.Separator)
	if len(fields) < preambleFields {
		return nil, scpi.Protocolf(raw, "preamble has %d fields, need %d", len(fields), preambleFields)
	}
	p := &Preamble{Raw: raw, YZeroInCounts: layout.YZeroInCounts}

	ints := make([]int, 0, 5)
	for _, i := range []int{0, 1, 2, 3, 6} {
		v, err := scpi.ParseInt(fields[i])
		if err != nil {
			return nil, scpi.Protocolf(raw, "preamble field %d %q is not an integer", i, strings.TrimSpace(fields[i]))
		}
		ints = append(ints, v)
	}
	floats := make([]float64, 0, 5)
	for _, i := range []int{4, 5, 7, 8, 9} {
		v, err := scpi.ParseFloat(fields[i])
		if err != nil {
			return nil, scpi.Protocolf(raw, "preamble field %d %q is not a number", i, strings.TrimSpace(fields[i]))
		}
		floats = append(floats, v)
	}

	code := ints[0]
	if code < 0 || code >= len(layout.Formats) {
		return nil, scpi.Protocolf(raw, "unknown preamble format code %d", code)
	}
	switch layout.Formats[code] {
	case "byte":
		p.Format = DataFormat{Encoding: EncodingBinary, Size: 1}
	case "word":
		p.Format = DataFormat{Encoding: EncodingBinary, Size: 2}
	case "ascii":
		p.Format = ASCII()
	default:
		return nil, scpi.Protocolf(raw, "reserved preamble format code %d", code)
	}
	if ints[1] < 0 || ints[1] >= len(acquisitionTypeNames) {
		return nil, scpi.Protocolf(raw, "unknown acquisition type code %d", ints[1])
	}
	p.Type = AcquisitionType(ints[1])
	p.Points = ints[2]
	p.Count = ints[3]
	p.PointOffset = ints[4]
	if p.Points < 0 {
		return nil, scpi.Protocolf(raw, "negative point count %d", p.Points)
	}
	p.XIncrement, p.XZero = floats[0], floats[1]
	p.YMultiplier, p.YZero, p.YOffset = floats[2], floats[3], floats[4]
	return p, nil
}

// Preamble reads the preamble of ch, or of the selected channel when ch is
// zero. With enable set a disabled channel is switched on first; a disabled
// channel otherwise reports a device-defined preamble.
func (sess *Session) Preamble(ctx context.Context, ch ChannelID, enable bool) (*Preamble, error) {
	switch {
	case !ch.IsZero():
		if err := sess.ensureSelected(ctx, ch); err != nil {
			return nil, err
		}
	case !sess.selected.IsZero():
		ch = sess.selected
	default:
		var err error
		if ch, err = sess.SelectedChannel(ctx); err != nil {
			return nil, err
		}
	}
	if enable {
		on, err := sess.ChannelEnabled(ctx, ch)
		if err != nil {
			return nil, err
		}
		if !on {
			if _, err := sess.EnableChannel(ctx, ch, true); err != nil {
				return nil, err
			}
		}
	}
	p, err := sess.currentPreamble(ctx)
	if err != nil {
		return nil, err
	}
	p.Channel = ch
	return p, nil
}

// Preambles reads the preambles of sel keyed by channel.
func (sess *Session) Preambles(ctx context.Context, sel Channels, enable bool) (map[ChannelID]*Preamble, error) {
	res, err := ForChannels(ctx, sess, sel, mux.FailFast, func(ctx context.Context, ch ChannelID) (*Preamble, error) {
		return sess.Preamble(ctx, ch, enable)
	})
	if err != nil {
		return nil, err
	}
	return res.Map(), nil
}

func (sess *Session) currentPreamble(ctx context.Context) (*Preamble, error) {
	if err := sess.ensureTransferMode(ctx); err != nil {
		return nil, err
	}
	reply, err := sess.ask(ctx, sess.s.model.Commands.Preamble+"?")
	if err != nil {
		return nil, err
	}
	p, err := ParsePreamble(reply, sess.s.model.Preamble)
	if err != nil {
		return nil, err
	}
	if !p.Format.IsASCII() {
		kind, order, err := sess.binaryDetails(ctx, p.Format.Size)
		if err != nil {
			return nil, err
		}
		p.Format = Binary(kind, p.Format.Size, order)
	}
	return p, nil
}
