package server

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Alia5/KEYPER/transport"
)

// Wire framing for HID reports on the host link, running inside the sealed
// connection. Each frame is:
//
//	length   uint16, big endian, bytes after the length field
//	kind     uint8, transport.ReportKind
//	reportID uint8
//	payload  length-2 bytes
//
// Input frames flow device to host, output frames (LED state) host to device.
const (
	frameHeaderSize = 2
	maxFrameSize    = 512
)

// Frame is one HID report on the wire.
type Frame struct {
	Kind     transport.ReportKind
	ReportID uint8
	Payload  []byte
}

// Encode appends the wire form of f to dst and returns the result.
func (f Frame) Encode(dst []byte) ([]byte, error) {
	if len(f.Payload)+2 > maxFrameSize {
		return nil, fmt.Errorf("frame payload too large: %d bytes", len(f.Payload))
	}
	var hdr [frameHeaderSize + 2]byte
	binary.BigEndian.PutUint16(hdr[:2], uint16(len(f.Payload)+2))
	hdr[2] = uint8(f.Kind)
	hdr[3] = f.ReportID
	dst = append(dst, hdr[:]...)
	return append(dst, f.Payload...), nil
}

// ReadFrame reads and decodes one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint16(hdr[:])
	if length < 2 || length > maxFrameSize {
		return Frame{}, fmt.Errorf("invalid frame length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}
	return Frame{
		Kind:     transport.ReportKind(body[0]),
		ReportID: body[1],
		Payload:  body[2:],
	}, nil
}
