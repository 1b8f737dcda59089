// Package usbtmc talks to USB Test & Measurement Class instruments directly
// over their bulk endpoints, without the kernel usbtmc driver.
//
// https://pkg.go.dev/github.com/google/gousb
// USBTMC 1.0 section 3 (bulk-out and bulk-in message headers)
package usbtmc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/scpi"
)

// Config identifies the device and its bulk endpoints.
type Config struct {
	VID         uint16
	PID         uint16
	EndpointOut int
	EndpointIn  int
}

// largest reply requested per REQUEST_DEV_DEP_MSG_IN
const maxTransfer = 1 << 20

// Device is an open USBTMC instrument.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	done  func()
	out   *gousb.OutEndpoint
	in    *gousb.InEndpoint
	log   *logrus.Logger
	tag   byte
	buf   []byte // device message bytes not yet handed to Read
	eom   bool   // the last transfer ended the message
	tmo   time.Duration
	clean bool
}

// Open claims the default interface of the first device matching VID/PID.
// A kernel driver bound to the interface is detached; without that the
// claim fails with a busy error.
func Open(cfg Config, log *logrus.Logger) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(cfg.VID), gousb.ID(cfg.PID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("could not open device %04x:%04x: %w", cfg.VID, cfg.PID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device %04x:%04x not found", cfg.VID, cfg.PID)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		log.Warnf("usbtmc: auto detach: %v", err)
	}

	// The default interface is always #0 alt #0 in the active config.
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%s.DefaultInterface(): %w", dev, err)
	}
	d := &Device{ctx: ctx, dev: dev, done: done, log: log, tmo: scpi.DefaultTimeout, eom: true}
	if d.out, err = intf.OutEndpoint(cfg.EndpointOut); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s.OutEndpoint(%d): %w", intf, cfg.EndpointOut, err)
	}
	if d.in, err = intf.InEndpoint(cfg.EndpointIn); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s.InEndpoint(%d): %w", intf, cfg.EndpointIn, err)
	}
	log.WithField("device", dev.String()).Info("usbtmc device opened")
	return d, nil
}

func (d *Device) Close() error {
	if d.clean {
		return nil
	}
	d.clean = true
	d.done()
	err := d.dev.Close()
	if cerr := d.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *Device) SetTimeout(t time.Duration) error {
	d.tmo = t
	return nil
}

func (d *Device) nextTag() byte {
	d.tag++
	if d.tag == 0 {
		d.tag = 1
	}
	return d.tag
}

// Write sends p as one complete device message.
func (d *Device) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.tmo)
	defer cancel()
	msg := encodeOut(d.nextTag(), p, true)
	if _, err := d.out.WriteContext(ctx, msg); err != nil {
		return 0, d.wrap(ctx, err)
	}
	// a new command discards any unread remainder of the previous reply
	d.buf, d.eom = nil, true
	return len(p), nil
}

// Read hands out the current device message, requesting more transfers
// from the instrument as needed.
func (d *Device) Read(p []byte) (int, error) {
	if len(d.buf) == 0 {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (d *Device) fill() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.tmo)
	defer cancel()

	tag := d.nextTag()
	if _, err := d.out.WriteContext(ctx, encodeRequestIn(tag, maxTransfer)); err != nil {
		return d.wrap(ctx, err)
	}

	packet := d.in.Desc.MaxPacketSize
	chunk := make([]byte, 10*packet)
	var msg []byte
	want := -1
	for want < 0 || len(msg) < want {
		n, err := d.in.ReadContext(ctx, chunk)
		msg = append(msg, chunk[:n]...)
		if err != nil {
			return d.wrap(ctx, err)
		}
		if want < 0 && len(msg) >= headerSize {
			h, err := decodeInHeader(msg, tag)
			if err != nil {
				return err
			}
			want = headerSize + h.size
			d.eom = h.eom
		}
		// a short packet ends the transfer
		if n%packet != 0 || n == 0 {
			break
		}
	}
	if want < 0 || len(msg) < want {
		return scpi.Protocolf(string(msg), "usbtmc: short transfer (%d of %d bytes)", len(msg), want)
	}
	d.buf = msg[headerSize:want]
	d.log.Debugf("usbtmc < %d bytes, eom %v", len(d.buf), d.eom)
	return nil
}

func (d *Device) wrap(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("usbtmc: %v: %w", err, scpi.ErrTimeout)
	}
	return fmt.Errorf("usbtmc: %w", err)
}
