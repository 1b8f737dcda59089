package scope

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/neilo40/scopewave/internal/scpi"
)

// DecodeBinary converts a binary block payload to raw sample counts.
func DecodeBinary(payload []byte, f DataFormat) ([]float64, error) {
	if f.IsASCII() {
		return nil, fmt.Errorf("scope: DecodeBinary called with ascii format")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(payload)%f.Size != 0 {
		return nil, scpi.Protocolf(fmt.Sprintf("%d bytes", len(payload)),
			"payload is not a whole number of %d-byte samples", f.Size)
	}
	out := make([]float64, len(payload)/f.Size)
	if f.Size == 1 {
		for i, b := range payload {
			if f.Kind == Signed {
				out[i] = float64(int8(b))
			} else {
				out[i] = float64(b)
			}
		}
		return out, nil
	}
	order := f.byteOrder()
	for i := range out {
		u := order.Uint16(payload[2*i:])
		if f.Kind == Signed {
			out[i] = float64(int16(u))
		} else {
			out[i] = float64(u)
		}
	}
	return out, nil
}

// DecodeASCII parses a text waveform payload: comma or whitespace separated
// numbers, optionally behind a definite-length block header.
func DecodeASCII(payload string) ([]float64, error) {
	body, err := scpi.StripBlockHeader(strings.TrimSpace(payload))
	if err != nil {
		return nil, err
	}
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, scpi.Protocolf(payload, "sample %d %q is not a number", i, s)
		}
		out[i] = v
	}
	return out, nil
}
