// Package transport opens the byte link to an instrument described by the
// connection config.
package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neilo40/scopewave/internal/config"
	"github.com/neilo40/scopewave/internal/scpi"
	"github.com/neilo40/scopewave/internal/transport/serial"
	"github.com/neilo40/scopewave/internal/transport/usbtmc"
	"github.com/neilo40/scopewave/internal/transport/visa"
)

// DefaultPort is the raw SCPI socket port of most LAN instruments.
const DefaultPort = "5555"

// Open connects using cfg.Kind.
func Open(cfg config.ConnectionConfig, log *logrus.Logger) (scpi.Transport, error) {
	log.WithFields(logrus.Fields{"kind": cfg.Kind, "address": cfg.Address}).Info("connecting")
	switch cfg.Kind {
	case "tcp":
		return DialTCP(cfg.Address, cfg.Timeout)
	case "visa":
		return visa.Open(cfg.Address)
	case "usbtmc":
		return usbtmc.Open(usbtmc.Config{
			VID:         cfg.VID,
			PID:         cfg.PID,
			EndpointOut: cfg.EndpointOut,
			EndpointIn:  cfg.EndpointIn,
		}, log)
	case "serial":
		return serial.Open(cfg.Address, cfg.Baud)
	}
	return nil, fmt.Errorf("unknown connection kind %q", cfg.Kind)
}

// Socket is a raw TCP SCPI connection.
type Socket struct {
	conn net.Conn
}

// DialTCP connects to host[:port]; the port defaults to 5555.
func DialTCP(addr string, timeout time.Duration) (*Socket, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *Socket) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *Socket) Close() error                { return s.conn.Close() }

// SetTimeout bounds the next read and write.
func (s *Socket) SetTimeout(d time.Duration) error {
	return s.conn.SetDeadline(time.Now().Add(d))
}
