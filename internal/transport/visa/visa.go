// Package visa talks to instruments through an installed VISA library.
package visa

import (
	"errors"
	"fmt"
	"time"

	vi "github.com/jpoirier/visa"

	"github.com/neilo40/scopewave/internal/scpi"
)

// Session is an open VISA resource, e.g. "TCPIP::192.168.1.70::INSTR" or
// "USB0::0x1AB1::0x04CE::DS1ZA000000000::INSTR".
type Session struct {
	instr vi.Object
	rm    vi.Session
}

// Open opens a session to the default resource manager and then to addr.
func Open(addr string) (*Session, error) {
	rm, status := vi.OpenDefaultRM()
	if status < vi.SUCCESS {
		return nil, errors.New("could not open a session to the VISA Resource Manager")
	}
	instr, status := rm.Open(addr, vi.NULL, vi.NULL)
	if status < vi.SUCCESS {
		rm.Close()
		return nil, fmt.Errorf("an error occurred opening the session to %s: %v", addr, status)
	}
	return &Session{instr: instr, rm: rm}, nil
}

func (s *Session) Close() error {
	s.instr.Close()
	s.rm.Close()
	return nil
}

func (s *Session) Write(p []byte) (int, error) {
	n, status := s.instr.Write(p, uint32(len(p)))
	if status < vi.SUCCESS {
		return int(n), statusError("write", uint32(status))
	}
	return int(n), nil
}

// Read returns at most len(p) bytes; VISA stops at the message end.
func (s *Session) Read(p []byte) (int, error) {
	b, cnt, status := s.instr.Read(uint32(len(p)))
	if status < vi.SUCCESS {
		return 0, statusError("read", uint32(status))
	}
	if int(cnt) < len(b) {
		b = b[:cnt]
	}
	return copy(p, b), nil
}

// SetTimeout sets the resource's I/O timeout, rounded up to whole
// milliseconds.
func (s *Session) SetTimeout(d time.Duration) error {
	status := s.instr.SetAttribute(vi.ATTR_TMO_VALUE, timeoutMillis(d))
	if status < vi.SUCCESS {
		return statusError("set timeout", uint32(status))
	}
	return nil
}

func timeoutMillis(d time.Duration) uint32 {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms < 1 {
		ms = 1
	}
	return uint32(ms)
}

// held in a variable so the uint32 conversion below is legal for a negative constant
var errorTimeout = vi.ERROR_TMO

// statusError takes the status bit pattern as VI_ERROR_* codes are written.
func statusError(op string, status uint32) error {
	if status == uint32(errorTimeout) {
		return fmt.Errorf("visa %s: %w", op, scpi.ErrTimeout)
	}
	return fmt.Errorf("visa %s failed with error code %x", op, status)
}
