package scope

import (
	"context"
	"strings"
	"time"
)

// AcqState is the acquisition state as last driven or observed by the
// session.
type AcqState int

const (
	StateIdle AcqState = iota
	StateArmedSingle
	StateArmedContinuous
	StateAcquiring
	StateStopped
)

func (s AcqState) String() string {
	switch s {
	case StateArmedSingle:
		return "armed-single"
	case StateArmedContinuous:
		return "armed-continuous"
	case StateAcquiring:
		return "acquiring"
	case StateStopped:
		return "stopped"
	}
	return "idle"
}

// State returns the tracked acquisition state.
func (sess *Session) State() AcqState { return sess.state }

// GrabOptions tunes GrabSingle.
type GrabOptions struct {
	// Wait blocks until the acquisition completes.
	Wait bool
	// SoftwareTrigger forces a trigger after the model's settle delay.
	SoftwareTrigger bool
}

// GrabSingle arms a single acquisition.
func (sess *Session) GrabSingle(ctx context.Context, opts GrabOptions) error {
	if err := sess.write(ctx, ":SING"); err != nil {
		return err
	}
	sess.state = StateArmedSingle
	if opts.SoftwareTrigger {
		if err := sleepCtx(ctx, sess.s.model.SoftwareTriggerDelay); err != nil {
			return err
		}
		if err := sess.ForceTrigger(ctx); err != nil {
			return err
		}
	}
	if opts.Wait {
		return sess.WaitForGrabbing(ctx)
	}
	return nil
}

// ForceTrigger triggers the armed acquisition immediately.
func (sess *Session) ForceTrigger(ctx context.Context) error {
	if err := sess.write(ctx, sess.s.model.Commands.ForceTrigger); err != nil {
		return err
	}
	if sess.state == StateArmedSingle || sess.state == StateArmedContinuous {
		sess.state = StateAcquiring
	}
	return nil
}

// GrabContinuous starts or stops free-running acquisition.
func (sess *Session) GrabContinuous(ctx context.Context, enable bool) error {
	if !enable {
		return sess.StopGrabbing(ctx)
	}
	if err := sess.write(ctx, ":RUN"); err != nil {
		return err
	}
	sess.state = StateArmedContinuous
	return nil
}

// StopGrabbing stops any acquisition.
func (sess *Session) StopGrabbing(ctx context.Context) error {
	if err := sess.write(ctx, ":STOP"); err != nil {
		return err
	}
	sess.state = StateStopped
	return nil
}

// IsContinuous reports whether the instrument is free-running.
func (sess *Session) IsContinuous(ctx context.Context) (bool, error) {
	reply, err := sess.ask(ctx, sess.s.model.Commands.RunState)
	if err != nil {
		return false, err
	}
	r := upper(reply)
	run := strings.HasPrefix(r, "RUN") || strings.HasPrefix(r, "AUTO")
	if run {
		sess.state = StateArmedContinuous
	}
	return run, nil
}

// AcquisitionProgress returns the completion of the current acquisition in
// percent; 100 means stopped.
func (sess *Session) AcquisitionProgress(ctx context.Context) (int, error) {
	m := sess.s.model
	var p int
	if m.Status == StatusTrigger {
		reply, err := sess.ask(ctx, m.Commands.AcquireStatus)
		if err != nil {
			return 0, err
		}
		if upper(reply) == "STOP" {
			p = 100
		}
	} else {
		var err error
		if p, err = sess.askInt(ctx, m.Commands.AcquireStatus); err != nil {
			return 0, err
		}
	}
	switch {
	case p >= 100:
		sess.state = StateStopped
	case p > 0:
		sess.state = StateAcquiring
	}
	return p, nil
}

// IsGrabbing reports whether an acquisition is in progress.
func (sess *Session) IsGrabbing(ctx context.Context) (bool, error) {
	p, err := sess.AcquisitionProgress(ctx)
	if err != nil {
		return false, err
	}
	return p < 100, nil
}

// WaitForGrabbing blocks until the acquisition completes or ctx is done.
func (sess *Session) WaitForGrabbing(ctx context.Context) error {
	m := sess.s.model
	if m.Status == StatusAcquireComplete {
		if sess.ended {
			return errSessionEnded
		}
		if err := sess.note(sess.in.WaitComplete(ctx)); err != nil {
			return err
		}
		sess.state = StateStopped
		return nil
	}
	for {
		grabbing, err := sess.IsGrabbing(ctx)
		if err != nil {
			return err
		}
		if !grabbing {
			return nil
		}
		if err := sleepCtx(ctx, m.StatusPollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
