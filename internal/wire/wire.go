package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Server-to-client frame kinds. Everything except replies and generic
// events is exactly 32 bytes.
const (
	FrameError        = 0
	FrameReply        = 1
	FrameGenericEvent = 35
)

// OpQueryExtension is the core request that binds extension opcodes.
const OpQueryExtension = 98

// Caps on a single frame. The protocol allows more through BIG-REQUESTS,
// but nothing the proxy relays legitimately comes close, and a bounded
// read keeps a misbehaving peer from ballooning the session.
const (
	MaxRequestSize = 16 << 20
	MaxReplySize   = 64 << 20
)

var ErrFrameTooLarge = errors.New("frame exceeds the size cap")

// ReadRequest reads one complete client request including its 4-byte
// header. A zero length field selects the extended BIG-REQUESTS form
// with a 32-bit length following the header.
func ReadRequest(r io.Reader) ([]byte, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}

	if words := int(binary.LittleEndian.Uint16(head[2:4])); words != 0 {
		buf := make([]byte, words*4)
		copy(buf, head)
		if _, err := io.ReadFull(r, buf[4:]); err != nil {
			return nil, fmt.Errorf("request body: %w", err)
		}
		return buf, nil
	}

	ext := make([]byte, 4)
	if _, err := io.ReadFull(r, ext); err != nil {
		return nil, fmt.Errorf("extended length: %w", err)
	}

	total := int(binary.LittleEndian.Uint32(ext)) * 4
	if total < 8 {
		return nil, fmt.Errorf("extended request of %d bytes", total)
	}
	if total > MaxRequestSize {
		return nil, fmt.Errorf("%w: %d byte request", ErrFrameTooLarge, total)
	}

	buf := make([]byte, total)
	copy(buf, head)
	copy(buf[4:], ext)
	if _, err := io.ReadFull(r, buf[8:]); err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	return buf, nil
}

// ReadServerFrame reads one server-to-client frame: 32 bytes, extended
// by the declared extra length for replies and generic events.
func ReadServerFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	if buf[0] != FrameReply && buf[0] != FrameGenericEvent {
		return buf, nil
	}

	extra := int(binary.LittleEndian.Uint32(buf[4:8])) * 4
	if extra == 0 {
		return buf, nil
	}
	if extra > MaxReplySize {
		return nil, fmt.Errorf("%w: %d byte reply", ErrFrameTooLarge, 32+extra)
	}

	full := make([]byte, 32+extra)
	copy(full, buf)
	if _, err := io.ReadFull(r, full[32:]); err != nil {
		return nil, fmt.Errorf("reply body: %w", err)
	}
	return full, nil
}

// Seq extracts the sequence number of a reply, error, or event frame.
func Seq(frame []byte) uint16 {
	return binary.LittleEndian.Uint16(frame[2:4])
}

// ReadSetupRequest reads the client's connection prefix including the
// padded authorization strings. The first byte gives the client's byte
// order: 'l' or 'B'.
func ReadSetupRequest(r io.Reader) ([]byte, error) {
	head := make([]byte, 12)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}

	var order binary.ByteOrder = binary.LittleEndian
	switch head[0] {
	case 'l':
	case 'B':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unknown byte order marker %#x", head[0])
	}

	nameLen := int(order.Uint16(head[6:8]))
	dataLen := int(order.Uint16(head[8:10]))

	buf := make([]byte, 12+Pad4(nameLen)+Pad4(dataLen))
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[12:]); err != nil {
		return nil, fmt.Errorf("authorization strings: %w", err)
	}
	return buf, nil
}

// ReadSetupReply reads the server's connection setup response, encoded
// in the byte order the client announced.
func ReadSetupReply(r io.Reader, order binary.ByteOrder) ([]byte, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}

	buf := make([]byte, 8+int(order.Uint16(head[6:8]))*4)
	copy(buf, head)
	if _, err := io.ReadFull(r, buf[8:]); err != nil {
		return nil, fmt.Errorf("setup body: %w", err)
	}
	return buf, nil
}

// SetupResourceIDMask pulls resource-id-mask out of a successful
// little-endian setup reply; ok is false for failed handshakes.
func SetupResourceIDMask(reply []byte) (mask uint32, ok bool) {
	if len(reply) < 20 || reply[0] != 1 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(reply[16:20]), true
}

// QueryExtensionName extracts the extension name from a QueryExtension
// request frame.
func QueryExtensionName(frame []byte) string {
	if len(frame) < 8 {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(frame[4:6]))
	if 8+n > len(frame) {
		return ""
	}
	return string(frame[8 : 8+n])
}

// ExtensionInfo is the useful part of a QueryExtension reply.
type ExtensionInfo struct {
	Present     bool
	MajorOpcode uint8
	FirstEvent  uint8
	FirstError  uint8
}

// ParseExtensionInfo decodes a QueryExtension reply frame.
func ParseExtensionInfo(frame []byte) ExtensionInfo {
	if len(frame) < 12 || frame[0] != FrameReply {
		return ExtensionInfo{}
	}
	return ExtensionInfo{
		Present:     frame[8] != 0,
		MajorOpcode: frame[9],
		FirstEvent:  frame[10],
		FirstError:  frame[11],
	}
}

// Error describes one 32-byte X error frame.
type Error struct {
	Code  uint8
	Seq   uint16
	Bad   uint32
	Minor uint16
	Major uint8
}

// Encode renders the frame.
func (e *Error) Encode() []byte {
	return NewWriter(32).
		U8(FrameError).U8(e.Code).U16(e.Seq).
		U32(e.Bad).U16(e.Minor).U8(e.Major).
		Skip(21).
		Done()
}

// Pad4 rounds n up to the next multiple of four.
func Pad4(n int) int {
	return (n + 3) &^ 3
}

// Writer builds little-endian wire buffers: size everything up front,
// then write the fields in protocol order.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the given capacity preallocated.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) I16(v int16) *Writer {
	return w.U16(uint16(v))
}

func (w *Writer) Bytes(p []byte) *Writer {
	w.buf = append(w.buf, p...)
	return w
}

// Skip appends n zero bytes.
func (w *Writer) Skip(n int) *Writer {
	w.buf = append(w.buf, make([]byte, n)...)
	return w
}

// Align pads with zeros to the next 4-byte boundary.
func (w *Writer) Align() *Writer {
	return w.Skip(Pad4(len(w.buf)) - len(w.buf))
}

// Done returns the accumulated buffer.
func (w *Writer) Done() []byte {
	return w.buf
}
