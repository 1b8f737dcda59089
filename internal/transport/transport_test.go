package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/config"
	"github.com/neilo40/scopewave/internal/scpi"
)

// serve answers each received line with reply(line) until the client hangs up.
func serve(t *testing.T, reply func(string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if out := reply(line[:len(line)-1]); out != "" {
				io.WriteString(conn, out)
			}
		}
	}()
	return ln.Addr().String()
}

func TestSocketAsk(t *testing.T) {
	addr := serve(t, func(cmd string) string {
		if cmd == "*IDN?" {
			return "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA0000,00.04.04\n"
		}
		return ""
	})
	log := logrus.New()
	log.SetOutput(io.Discard)
	tr, err := Open(config.ConnectionConfig{Kind: "tcp", Address: addr, Timeout: time.Second}, log)
	if err != nil {
		t.Fatal(err)
	}
	in := scpi.NewInstrument(tr, log)
	defer in.Close()

	id, err := in.Identify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA0000,00.04.04" {
		t.Errorf("id = %q", id)
	}
}

func TestSocketTimeout(t *testing.T) {
	addr := serve(t, func(string) string { return "" })
	tr, err := DialTCP(addr, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	in := scpi.NewInstrument(tr, nil, scpi.WithTimeout(50*time.Millisecond))
	defer in.Close()

	_, err = in.Ask(context.Background(), ":ACQ:COMP?")
	var te *scpi.TransportError
	if !errors.As(err, &te) || !te.Timeout() || !te.Temporary() {
		t.Errorf("err = %v, want a retryable timeout", err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	if _, err := Open(config.ConnectionConfig{Kind: "gpib"}, log); err == nil {
		t.Error("unknown kind accepted")
	}
}
