package scope

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/neilo40/scopewave/internal/scpi"
)

// Encoding is the waveform transfer encoding.
type Encoding int

const (
	EncodingASCII Encoding = iota + 1
	EncodingBinary
)

// ElementKind is the signedness of binary samples.
type ElementKind int

const (
	Signed ElementKind = iota + 1
	Unsigned
)

// ByteOrder of two-byte samples.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota + 1
	BigEndian
)

// DataFormat describes waveform transfer encoding. ASCII carries no element
// details; binary samples are 1 or 2 bytes wide.
type DataFormat struct {
	Encoding Encoding
	Kind     ElementKind
	Size     int
	Order    ByteOrder
}

// ASCII is the text transfer format.
func ASCII() DataFormat { return DataFormat{Encoding: EncodingASCII} }

// Binary builds a binary transfer format. One-byte formats are always
// recorded as little endian.
func Binary(kind ElementKind, size int, order ByteOrder) DataFormat {
	if size == 1 {
		order = LittleEndian
	}
	return DataFormat{Encoding: EncodingBinary, Kind: kind, Size: size, Order: order}
}

func (f DataFormat) IsASCII() bool { return f.Encoding == EncodingASCII }

// Validate rejects formats the instruments cannot transfer.
func (f DataFormat) Validate() error {
	switch f.Encoding {
	case EncodingASCII:
		if f != ASCII() {
			return &scpi.ValidationError{Param: "data format", Value: f, Msg: "ascii takes no element kind, size or order"}
		}
		return nil
	case EncodingBinary:
	default:
		return &scpi.ValidationError{Param: "data format", Value: f, Msg: "no encoding"}
	}
	if f.Size != 1 && f.Size != 2 {
		return &scpi.ValidationError{Param: "data format", Value: f, Msg: "sample size must be 1 or 2 bytes"}
	}
	if f.Kind != Signed && f.Kind != Unsigned {
		return &scpi.ValidationError{Param: "data format", Value: f, Msg: "sample kind must be signed or unsigned"}
	}
	if f.Order != LittleEndian && f.Order != BigEndian {
		return &scpi.ValidationError{Param: "data format", Value: f, Msg: "byte order must be little or big endian"}
	}
	if f.Size == 1 && f.Order != LittleEndian {
		return &scpi.ValidationError{Param: "data format", Value: f, Msg: "one-byte samples are little endian"}
	}
	return nil
}

// String prints the descriptor form accepted by ParseDataFormat, e.g.
// "ascii", "<i1", ">u2".
func (f DataFormat) String() string {
	if f.IsASCII() {
		return "ascii"
	}
	var b strings.Builder
	switch f.Order {
	case LittleEndian:
		b.WriteByte('<')
	case BigEndian:
		b.WriteByte('>')
	}
	switch f.Kind {
	case Signed:
		b.WriteByte('i')
	case Unsigned:
		b.WriteByte('u')
	default:
		b.WriteByte('?')
	}
	fmt.Fprintf(&b, "%d", f.Size)
	return b.String()
}

// ParseDataFormat reads a format descriptor: "ascii", or an optional byte
// order mark ('<', '>', '|' or '=', little endian when absent), a kind
// ('i' or 'u') and a size in bytes.
func ParseDataFormat(desc string) (DataFormat, error) {
	d := strings.ToLower(strings.TrimSpace(desc))
	if d == "ascii" || d == "asc" {
		return ASCII(), nil
	}
	bad := &scpi.ValidationError{Param: "data format", Value: desc, Allowed: []string{"ascii", "<i1", "u1", "<i2", ">u2"}}
	if d == "" {
		return DataFormat{}, bad
	}
	f := DataFormat{Encoding: EncodingBinary, Order: LittleEndian}
	switch d[0] {
	case '<', '|', '=':
		d = d[1:]
	case '>':
		f.Order = BigEndian
		d = d[1:]
	}
	if len(d) != 2 {
		return DataFormat{}, bad
	}
	switch d[0] {
	case 'i':
		f.Kind = Signed
	case 'u':
		f.Kind = Unsigned
	default:
		return DataFormat{}, bad
	}
	switch d[1] {
	case '1':
		f.Size = 1
	case '2':
		f.Size = 2
	default:
		return DataFormat{}, bad
	}
	return Binary(f.Kind, f.Size, f.Order), nil
}

func (f DataFormat) byteOrder() binary.ByteOrder {
	if f.Order == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func parseOrderName(name string) (ByteOrder, error) {
	switch strings.ToLower(name) {
	case "little", "lsbf":
		return LittleEndian, nil
	case "big", "msbf":
		return BigEndian, nil
	}
	return 0, &scpi.ValidationError{Param: "byte order", Value: name, Allowed: []string{"little", "big"}}
}

// SetDataFormat configures the waveform transfer format and returns the
// format the device reports afterwards, which may differ if it coerced the
// request.
func (sess *Session) SetDataFormat(ctx context.Context, f DataFormat) (DataFormat, error) {
	if err := f.Validate(); err != nil {
		return DataFormat{}, err
	}
	m := sess.s.model
	var fixed ByteOrder
	if m.FixedByteOrder != "" {
		fixed, _ = parseOrderName(m.FixedByteOrder)
	}
	if !f.IsASCII() {
		if m.FixedUnsigned && f.Kind == Signed {
			return DataFormat{}, &scpi.ValidationError{Param: "data format", Value: f, Msg: m.Name + " transfers unsigned samples only"}
		}
		if fixed != 0 && f.Size == 2 && f.Order != fixed {
			return DataFormat{}, &scpi.ValidationError{Param: "data format", Value: f, Msg: m.Name + " has a fixed byte order"}
		}
	}

	if f.IsASCII() {
		if err := sess.write(ctx, ":WAV:FORM", "ASC"); err != nil {
			return DataFormat{}, err
		}
		return sess.DataFormat(ctx)
	}
	if !m.FixedUnsigned {
		if err := sess.write(ctx, ":WAV:UNS", f.Kind == Unsigned); err != nil {
			return DataFormat{}, err
		}
	}
	if f.Size == 1 {
		if err := sess.write(ctx, ":WAV:FORM", "BYTE"); err != nil {
			return DataFormat{}, err
		}
	} else {
		if err := sess.write(ctx, ":WAV:FORM", "WORD"); err != nil {
			return DataFormat{}, err
		}
		if fixed == 0 {
			tok := "LSBF"
			if f.Order == BigEndian {
				tok = "MSBF"
			}
			if err := sess.write(ctx, ":WAV:BYT", tok); err != nil {
				return DataFormat{}, err
			}
		}
	}
	return sess.DataFormat(ctx)
}

// DataFormat queries the current waveform transfer format.
func (sess *Session) DataFormat(ctx context.Context) (DataFormat, error) {
	reply, err := sess.ask(ctx, ":WAV:FORM?")
	if err != nil {
		return DataFormat{}, err
	}
	var size int
	switch r := upper(reply); {
	case strings.HasPrefix(r, "ASC"):
		return ASCII(), nil
	case strings.HasPrefix(r, "BYTE"):
		size = 1
	case strings.HasPrefix(r, "WORD"):
		size = 2
	default:
		return DataFormat{}, scpi.Protocolf(reply, "unknown waveform format")
	}
	kind, order, err := sess.binaryDetails(ctx, size)
	if err != nil {
		return DataFormat{}, err
	}
	return Binary(kind, size, order), nil
}

// binaryDetails reads signedness and byte order, or takes them from the
// model when they are fixed.
func (sess *Session) binaryDetails(ctx context.Context, size int) (ElementKind, ByteOrder, error) {
	m := sess.s.model
	kind := Unsigned
	if !m.FixedUnsigned {
		uns, err := sess.askBool(ctx, ":WAV:UNS?")
		if err != nil {
			return 0, 0, err
		}
		if !uns {
			kind = Signed
		}
	}
	if size == 1 {
		return kind, LittleEndian, nil
	}
	if m.FixedByteOrder != "" {
		order, err := parseOrderName(m.FixedByteOrder)
		return kind, order, err
	}
	reply, err := sess.ask(ctx, ":WAV:BYT?")
	if err != nil {
		return 0, 0, err
	}
	switch r := upper(reply); {
	case strings.HasPrefix(r, "LSBF"):
		return kind, LittleEndian, nil
	case strings.HasPrefix(r, "MSBF"):
		return kind, BigEndian, nil
	}
	return 0, 0, scpi.Protocolf(reply, "unknown byte order")
}
