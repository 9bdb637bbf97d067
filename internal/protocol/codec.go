package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed frame header length: command, checksum, session id
// and reply id, each a little-endian uint16.
const HeaderSize = 8

var (
	ErrTruncated         = errors.New("protocol: truncated frame")
	ErrChecksumMismatch  = errors.New("protocol: checksum mismatch")
	ErrUnexpectedCommand = errors.New("protocol: unexpected command")
)

// Frame is one decoded command or reply frame.
type Frame struct {
	Command   Command
	Checksum  uint16
	SessionID uint16
	ReplyID   uint16
	Data      []byte
}

// EncodeCommand builds a wire frame for one command. The checksum is the
// 16-bit word sum (mod 65536) over header plus payload, computed with the
// checksum field held at zero and then written back. A trailing odd byte is
// summed as the low byte of a final word.
func EncodeCommand(code Command, sessionID, replyID uint16, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(code))
	binary.LittleEndian.PutUint16(buf[4:6], sessionID)
	binary.LittleEndian.PutUint16(buf[6:8], replyID)
	copy(buf[HeaderSize:], payload)

	binary.LittleEndian.PutUint16(buf[2:4], wordSum(buf))
	return buf
}

// DecodeResponse splits a raw frame into its header fields and payload.
// The checksum is not validated here; devices are tolerant receivers and so
// is this decoder. Use VerifyChecksum when defensive validation is wanted.
func DecodeResponse(raw []byte) (Frame, error) {
	if len(raw) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncated, len(raw), HeaderSize)
	}
	return Frame{
		Command:   Command(binary.LittleEndian.Uint16(raw[0:2])),
		Checksum:  binary.LittleEndian.Uint16(raw[2:4]),
		SessionID: binary.LittleEndian.Uint16(raw[4:6]),
		ReplyID:   binary.LittleEndian.Uint16(raw[6:8]),
		Data:      raw[HeaderSize:],
	}, nil
}

// VerifyChecksum recomputes the word sum over a raw frame and compares it to
// the embedded checksum field.
func VerifyChecksum(raw []byte) error {
	if len(raw) < HeaderSize {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrTruncated, len(raw), HeaderSize)
	}
	embedded := binary.LittleEndian.Uint16(raw[2:4])

	scratch := make([]byte, len(raw))
	copy(scratch, raw)
	scratch[2], scratch[3] = 0, 0

	if got := wordSum(scratch); got != embedded {
		return fmt.Errorf("%w: embedded %#04x, computed %#04x", ErrChecksumMismatch, embedded, got)
	}
	return nil
}

// wordSum sums the buffer as little-endian 16-bit words mod 65536. The
// caller must already have zeroed the checksum field.
func wordSum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.LittleEndian.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1])
	}
	return uint16(sum)
}
