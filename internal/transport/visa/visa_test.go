package visa

import (
	"errors"
	"testing"
	"time"

	"github.com/neilo40/scopewave/internal/scpi"
)

func TestTimeoutMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want uint32
	}{
		{500 * time.Millisecond, 500},
		{10 * time.Second, 10000},
		{1500 * time.Microsecond, 2},
		{time.Microsecond, 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := timeoutMillis(tt.d); got != tt.want {
			t.Errorf("timeoutMillis(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestStatusError(t *testing.T) {
	err := statusError("read", uint32(errorTimeout))
	if !errors.Is(err, scpi.ErrTimeout) {
		t.Errorf("timeout status: %v", err)
	}
	te := &scpi.TransportError{Op: "read", Err: err}
	if !te.Timeout() {
		t.Error("timeout status not reported as a transport timeout")
	}
	if err := statusError("write", 0xBFFF003E); errors.Is(err, scpi.ErrTimeout) {
		t.Errorf("io error reported as timeout: %v", err)
	}
}
