// Package scpi carries SCPI commands and queries over a byte transport.
//
// Refer to the programming guides of the individual instruments for the
// command set; this package only knows about message framing.
package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/monitor"
)

// DefaultTimeout applies to every operation whose context has no deadline.
const DefaultTimeout = 10 * time.Second

// Transport is the byte-level link to an instrument: USB, serial, VISA or a
// raw socket. Framing above the byte level is handled by Instrument.
type Transport interface {
	io.ReadWriteCloser
	SetTimeout(d time.Duration) error
}

// Instrument issues SCPI messages over a Transport. It is not safe for
// concurrent use; callers serialize access per device.
type Instrument struct {
	t       Transport
	r       *bufio.Reader
	log     *logrus.Logger
	timeout time.Duration
	term    string
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithTimeout sets the per-operation timeout used when the context carries
// no deadline.
func WithTimeout(d time.Duration) Option {
	return func(in *Instrument) {
		if d > 0 {
			in.timeout = d
		}
	}
}

// WithTerminator sets the string appended to every outgoing message.
func WithTerminator(term string) Option {
	return func(in *Instrument) { in.term = term }
}

// NewInstrument wraps t. A nil logger discards output.
func NewInstrument(t Transport, log *logrus.Logger, opts ...Option) *Instrument {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	in := &Instrument{
		t:       t,
		r:       bufio.NewReaderSize(t, 64*1024),
		log:     log,
		timeout: DefaultTimeout,
		term:    "\n",
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Close closes the underlying transport.
func (in *Instrument) Close() error {
	return in.t.Close()
}

// Flush drops any reply bytes still buffered, e.g. after a timeout left a
// late answer in flight.
func (in *Instrument) Flush() {
	in.r.Reset(in.t)
}

// arm pushes the effective timeout down to the transport.
func (in *Instrument) arm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := in.timeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < d {
			d = rem
		}
	}
	if d <= 0 {
		return context.DeadlineExceeded
	}
	return in.t.SetTimeout(d)
}

// Write sends cmd followed by its formatted arguments.
func (in *Instrument) Write(ctx context.Context, cmd string, args ...interface{}) error {
	line := Format(cmd, args...)
	start := time.Now()
	err := in.write(ctx, line)
	observe("write", start, err)
	return err
}

func (in *Instrument) write(ctx context.Context, line string) error {
	if err := in.arm(ctx); err != nil {
		return &TransportError{Op: "write", Command: line, Err: err}
	}
	in.log.Debugf("scpi > %s", line)
	if _, err := io.WriteString(in.t, line+in.term); err != nil {
		return &TransportError{Op: "write", Command: line, Err: err}
	}
	return nil
}

// Ask sends a query and returns its single-line reply without the
// terminator.
func (in *Instrument) Ask(ctx context.Context, query string, args ...interface{}) (string, error) {
	line := Format(query, args...)
	start := time.Now()
	reply, err := in.ask(ctx, line)
	observe("ask", start, err)
	return reply, err
}

func (in *Instrument) ask(ctx context.Context, line string) (string, error) {
	if err := in.write(ctx, line); err != nil {
		return "", err
	}
	reply, err := in.readLine(ctx, line)
	if err != nil {
		return "", err
	}
	in.log.Debugf("scpi < %s", reply)
	return reply, nil
}

func (in *Instrument) readLine(ctx context.Context, cmd string) (string, error) {
	if err := in.arm(ctx); err != nil {
		return "", &TransportError{Op: "read", Command: cmd, Err: err}
	}
	s, err := in.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", &TransportError{Op: "read", Command: cmd, Err: err}
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// ReadRaw reads one text message, used for ASCII waveform payloads that may
// be far longer than ordinary replies.
func (in *Instrument) ReadRaw(ctx context.Context) (string, error) {
	start := time.Now()
	s, err := in.readLine(ctx, "")
	observe("read", start, err)
	if err == nil {
		in.log.Debugf("scpi < %d bytes of text", len(s))
	}
	return s, err
}

// AskFloat asks and parses a decimal reply.
func (in *Instrument) AskFloat(ctx context.Context, query string, args ...interface{}) (float64, error) {
	s, err := in.Ask(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	v, err := ParseFloat(s)
	if err != nil {
		return 0, countProtocol(err)
	}
	return v, nil
}

// AskInt asks and parses an integer reply. Integral values in float notation
// ("+1.000E+03") are accepted.
func (in *Instrument) AskInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	s, err := in.Ask(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	v, err := ParseInt(s)
	if err != nil {
		return 0, countProtocol(err)
	}
	return v, nil
}

// AskBool asks and parses a 0/1 (or ON/OFF) reply.
func (in *Instrument) AskBool(ctx context.Context, query string, args ...interface{}) (bool, error) {
	s, err := in.Ask(ctx, query, args...)
	if err != nil {
		return false, err
	}
	v, err := ParseBool(s)
	if err != nil {
		return false, countProtocol(err)
	}
	return v, nil
}

// Identify returns the *IDN? string.
func (in *Instrument) Identify(ctx context.Context) (string, error) {
	return in.Ask(ctx, "*IDN?")
}

// WaitComplete blocks until the instrument reports all pending operations
// complete.
func (in *Instrument) WaitComplete(ctx context.Context) error {
	s, err := in.Ask(ctx, "*OPC?")
	if err != nil {
		return err
	}
	if strings.TrimSpace(s) != "1" {
		return countProtocol(Protocolf(s, "unexpected *OPC? reply"))
	}
	return nil
}

// CommandValid probes whether the instrument accepts query. Instruments do
// not answer unknown queries, so a timeout means invalid; otherwise the error
// queue decides. probe bounds the wait for the answer.
func (in *Instrument) CommandValid(ctx context.Context, query string, probe time.Duration) (bool, error) {
	pctx, cancel := context.WithTimeout(ctx, probe)
	_, err := in.Ask(pctx, query)
	cancel()
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Timeout() && ctx.Err() == nil {
			in.Flush()
			_, _ = in.Ask(ctx, ":SYST:ERR?")
			return false, nil
		}
		return false, err
	}
	e, err := in.Ask(ctx, ":SYST:ERR?")
	if err != nil {
		return false, err
	}
	e = strings.TrimSpace(e)
	return strings.HasPrefix(e, "+0") || strings.HasPrefix(e, "0"), nil
}

// Format renders a command and its arguments: "CMD a,b".
func Format(cmd string, args ...interface{}) string {
	if len(args) == 0 {
		return cmd
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = FormatArg(a)
	}
	return cmd + " " + strings.Join(parts, ",")
}

// FormatArg renders a single argument the way instruments expect it.
func FormatArg(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'G', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'G', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ParseFloat parses a decimal reply.
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, Protocolf(s, "expected a number")
	}
	return v, nil
}

// ParseInt parses an integer reply.
func ParseInt(s string) (int, error) {
	t := strings.TrimSpace(s)
	if v, err := strconv.Atoi(t); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || f != float64(int(f)) {
		return 0, Protocolf(s, "expected an integer")
	}
	return int(f), nil
}

// ParseBool parses a boolean reply.
func ParseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "ON", "+1":
		return true, nil
	case "0", "OFF", "+0":
		return false, nil
	}
	return false, Protocolf(s, "expected a boolean")
}

func countProtocol(err error) error {
	monitor.ProtocolErrors.Inc()
	return err
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var te *TransportError
		if errors.As(err, &te) {
			monitor.TransportErrors.WithLabelValues(op, strconv.FormatBool(te.Timeout())).Inc()
		}
	}
	monitor.Requests.WithLabelValues(op, result).Inc()
	monitor.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
