package scope

import (
	"fmt"

	"github.com/neilo40/scopewave/internal/scpi"
)

// leading samples quoted when a payload is rejected
const summarySamples = 8

// Sample is one scaled waveform point: time in seconds, value in volts.
type Sample struct {
	T float64
	V float64
}

// Waveform is a scaled trace in acquisition order.
type Waveform []Sample

// Times returns the time column.
func (w Waveform) Times() []float64 {
	out := make([]float64, len(w))
	for i, s := range w {
		out[i] = s.T
	}
	return out
}

// Values returns the value column.
func (w Waveform) Values() []float64 {
	out := make([]float64, len(w))
	for i, s := range w {
		out[i] = s.V
	}
	return out
}

// Scale converts raw samples to a waveform using the preamble. The sample
// count must match the preamble's point count. ASCII samples arrive already
// scaled and only get a time axis.
func Scale(raw []float64, p *Preamble) (Waveform, error) {
	if len(raw) != p.Points {
		return nil, scpi.Protocolf(payloadSummary(raw, p), "received %d points, preamble declares %d", len(raw), p.Points)
	}
	w := make(Waveform, len(raw))
	for i, r := range raw {
		x := float64(i-p.PointOffset)*p.XIncrement + p.XZero
		y := r
		if !p.Format.IsASCII() {
			if p.YZeroInCounts {
				y = (r - p.YOffset - p.YZero) * p.YMultiplier
			} else {
				y = (r-p.YOffset)*p.YMultiplier + p.YZero
			}
		}
		w[i] = Sample{T: x, V: y}
	}
	return w, nil
}

// payloadSummary describes a rejected payload: its length, its first
// samples and the preamble it was checked against.
func payloadSummary(raw []float64, p *Preamble) string {
	head := raw
	if len(head) > summarySamples {
		head = head[:summarySamples]
	}
	return fmt.Sprintf("%d samples %v; preamble %s", len(raw), head, p.Raw)
}
