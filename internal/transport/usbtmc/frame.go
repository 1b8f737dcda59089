package usbtmc

import (
	"encoding/binary"

	"github.com/neilo40/scopewave/internal/scpi"
)

const (
	headerSize = 12

	msgDevDepOut       = 1 // DEV_DEP_MSG_OUT
	msgRequestDevDepIn = 2 // REQUEST_DEV_DEP_MSG_IN, answered by DEV_DEP_MSG_IN

	attrEOM = 0x01
)

func header(id, tag byte, size uint32, attr byte) []byte {
	h := make([]byte, headerSize)
	h[0] = id
	h[1] = tag
	h[2] = ^tag
	binary.LittleEndian.PutUint32(h[4:8], size)
	h[8] = attr
	return h
}

// encodeOut frames payload as a bulk-out message, padded to a multiple of
// four bytes.
func encodeOut(tag byte, payload []byte, eom bool) []byte {
	var attr byte
	if eom {
		attr = attrEOM
	}
	msg := append(header(msgDevDepOut, tag, uint32(len(payload)), attr), payload...)
	for len(msg)%4 != 0 {
		msg = append(msg, 0)
	}
	return msg
}

// encodeRequestIn asks the device for up to size bytes of its reply.
func encodeRequestIn(tag byte, size uint32) []byte {
	return header(msgRequestDevDepIn, tag, size, 0)
}

type inHeader struct {
	size int
	eom  bool
}

// decodeInHeader checks a DEV_DEP_MSG_IN header against the request tag.
func decodeInHeader(b []byte, tag byte) (inHeader, error) {
	if len(b) < headerSize {
		return inHeader{}, scpi.Protocolf(string(b), "usbtmc: short header")
	}
	if b[0] != msgRequestDevDepIn {
		return inHeader{}, scpi.Protocolf(string(b[:headerSize]), "usbtmc: unexpected message id %d", b[0])
	}
	if b[1] != tag || b[2] != ^tag {
		return inHeader{}, scpi.Protocolf(string(b[:headerSize]), "usbtmc: tag %d does not match request %d", b[1], tag)
	}
	return inHeader{
		size: int(binary.LittleEndian.Uint32(b[4:8])),
		eom:  b[8]&attrEOM != 0,
	}, nil
}
