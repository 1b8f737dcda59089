package scope

import (
	"context"
	"math"

	"github.com/neilo40/scopewave/internal/scpi"
)

// HorizontalSpan returns the time span of the screen in seconds. The
// timebase scale is per division.
func (sess *Session) HorizontalSpan(ctx context.Context) (float64, error) {
	v, err := sess.askFloat(ctx, sess.s.model.Commands.TimebaseScale+"?")
	return v * sess.s.model.divisions(), err
}

// SetHorizontalSpan sets the screen time span and returns the effective one.
func (sess *Session) SetHorizontalSpan(ctx context.Context, span float64) (float64, error) {
	if !(span > 0) || math.IsInf(span, 0) {
		return 0, &scpi.ValidationError{Param: "horizontal span", Value: span, Msg: "must be positive"}
	}
	if err := sess.write(ctx, sess.s.model.Commands.TimebaseScale, span/sess.s.model.divisions()); err != nil {
		return 0, err
	}
	return sess.HorizontalSpan(ctx)
}

// HorizontalOffset returns the time of the screen center relative to the
// trigger, in seconds.
func (sess *Session) HorizontalOffset(ctx context.Context) (float64, error) {
	pos, err := sess.askFloat(ctx, sess.s.model.Commands.TimebasePosition+"?")
	if err != nil {
		return 0, err
	}
	var span float64
	if sess.s.model.HorizontalPosMode == PosFraction {
		if span, err = sess.HorizontalSpan(ctx); err != nil {
			return 0, err
		}
	}
	return FromHorizontalPos(sess.s.model.HorizontalPosMode, pos, span), nil
}

// SetHorizontalOffset moves the screen center and returns the effective
// offset.
func (sess *Session) SetHorizontalOffset(ctx context.Context, offset float64) (float64, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return 0, &scpi.ValidationError{Param: "horizontal offset", Value: offset, Msg: "must be finite"}
	}
	var span float64
	if sess.s.model.HorizontalPosMode == PosFraction {
		var err error
		if span, err = sess.HorizontalSpan(ctx); err != nil {
			return 0, err
		}
	}
	pos := ToHorizontalPos(sess.s.model.HorizontalPosMode, offset, span)
	if err := sess.write(ctx, sess.s.model.Commands.TimebasePosition, pos); err != nil {
		return 0, err
	}
	return sess.HorizontalOffset(ctx)
}

// ToHorizontalPos converts a center time to the model's position value. In
// fraction mode the result is clamped to 0..100.
func ToHorizontalPos(mode HorizontalPosMode, center, span float64) float64 {
	if mode != PosFraction {
		return center
	}
	if span == 0 {
		return 50
	}
	return math.Max(0, math.Min(100, center/span*100+50))
}

// FromHorizontalPos is the inverse of ToHorizontalPos.
func FromHorizontalPos(mode HorizontalPosMode, pos, span float64) float64 {
	if mode != PosFraction {
		return pos
	}
	return (pos/100 - 0.5) * span
}
