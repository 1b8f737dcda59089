package scpi

import (
	"context"
	"io"
	"strconv"
	"time"
)

// ReadBlock reads an IEEE 488.2 definite-length block ("#<n><len><data>")
// or an indefinite one ("#0<data>\n") and returns the data bytes. The
// message terminator following a definite block is consumed.
func (in *Instrument) ReadBlock(ctx context.Context) ([]byte, error) {
	start := time.Now()
	data, err := in.readBlock(ctx)
	observe("block", start, err)
	if err == nil {
		in.log.Debugf("scpi < block of %d bytes", len(data))
	}
	return data, err
}

func (in *Instrument) readBlock(ctx context.Context) ([]byte, error) {
	if err := in.arm(ctx); err != nil {
		return nil, &TransportError{Op: "block", Err: err}
	}
	var c byte
	var err error
	for {
		if c, err = in.r.ReadByte(); err != nil {
			return nil, &TransportError{Op: "block", Err: err}
		}
		if c != ' ' && c != '\r' && c != '\n' {
			break
		}
	}
	if c != '#' {
		return nil, countProtocol(Protocolf(string(c), "block must start with '#'"))
	}
	d, err := in.r.ReadByte()
	if err != nil {
		return nil, &TransportError{Op: "block", Err: err}
	}
	if d < '0' || d > '9' {
		return nil, countProtocol(Protocolf("#"+string(d), "bad block header digit count"))
	}
	n := int(d - '0')
	if n == 0 {
		data, err := in.r.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(data) > 0) {
			return nil, &TransportError{Op: "block", Err: err}
		}
		if l := len(data); l > 0 && data[l-1] == '\n' {
			data = data[:l-1]
		}
		return data, nil
	}
	hdr := make([]byte, n)
	if _, err := io.ReadFull(in.r, hdr); err != nil {
		return nil, &TransportError{Op: "block", Err: err}
	}
	size, err := strconv.Atoi(string(hdr))
	if err != nil || size < 0 {
		return nil, countProtocol(Protocolf("#"+string(d)+string(hdr), "bad block length"))
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(in.r, data); err != nil {
		return nil, &TransportError{Op: "block", Err: err}
	}
	if b, err := in.r.ReadByte(); err == nil && b != '\n' {
		_ = in.r.UnreadByte()
	}
	return data, nil
}

// StripBlockHeader removes a leading "#<n><len>" header from a text payload,
// as sent ahead of ASCII waveform data.
func StripBlockHeader(s string) (string, error) {
	if len(s) == 0 || s[0] != '#' {
		return s, nil
	}
	if len(s) < 2 || s[1] < '0' || s[1] > '9' {
		return "", Protocolf(s, "bad block header")
	}
	n := int(s[1] - '0')
	if len(s) < 2+n {
		return "", Protocolf(s, "truncated block header")
	}
	return s[2+n:], nil
}
