// Package serial carries SCPI over an RS-232 or USB virtual COM port.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/neilo40/scopewave/internal/scpi"
)

type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Port is an open serial line, 8N1.
type Port struct {
	p port
}

func Open(path string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: failed to open %s: %w", path, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial: failed to reset %s: %w", path, err)
	}
	return &Port{p: p}, nil
}

// Read reports a read that times out with nothing received as
// scpi.ErrTimeout; the serial library itself returns (0, nil).
func (s *Port) Read(b []byte) (int, error) {
	n, err := s.p.Read(b)
	if err != nil {
		return n, err
	}
	if n == 0 && len(b) > 0 {
		return 0, fmt.Errorf("serial read: %w", scpi.ErrTimeout)
	}
	return n, nil
}

func (s *Port) Write(b []byte) (int, error) { return s.p.Write(b) }

func (s *Port) Close() error { return s.p.Close() }

func (s *Port) SetTimeout(d time.Duration) error {
	return s.p.SetReadTimeout(d)
}
