package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RandR minor opcodes.
const (
	GetScreenResources        = 8
	GetOutputInfo             = 9
	ListOutputProperties      = 10
	QueryOutputProperty       = 11
	ConfigureOutputProperty   = 12
	ChangeOutputProperty      = 13
	DeleteOutputProperty      = 14
	GetOutputProperty         = 15
	CreateMode                = 16
	DestroyMode               = 17
	AddOutputMode             = 18
	DeleteOutputMode          = 19
	GetCrtcInfo               = 20
	SetCrtcConfig             = 21
	GetCrtcGammaSize          = 22
	GetCrtcGamma              = 23
	SetCrtcGamma              = 24
	GetScreenResourcesCurrent = 25
	SetCrtcTransform          = 26
	GetCrtcTransform          = 27
	GetPanning                = 28
	SetPanning                = 29
	SetOutputPrimary          = 30
	GetOutputPrimary          = 31
)

// RandR error codes, relative to the extension's first-error base.
const (
	BadOutputOffset = 0
	BadCrtcOffset   = 1
)

// Output connection states.
const (
	ConnConnected    = 0
	ConnDisconnected = 1
	ConnUnknown      = 2
)

var ErrTruncatedReply = errors.New("truncated reply")

// ModeInfo mirrors the 32-byte mode record of the screen resources
// reply.
type ModeInfo struct {
	ID         uint32
	Width      uint16
	Height     uint16
	DotClock   uint32
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	NameLen    uint16
	Flags      uint32
}

const modeInfoSize = 32

func parseModeInfo(b []byte) ModeInfo {
	return ModeInfo{
		ID:         binary.LittleEndian.Uint32(b[0:4]),
		Width:      binary.LittleEndian.Uint16(b[4:6]),
		Height:     binary.LittleEndian.Uint16(b[6:8]),
		DotClock:   binary.LittleEndian.Uint32(b[8:12]),
		HSyncStart: binary.LittleEndian.Uint16(b[12:14]),
		HSyncEnd:   binary.LittleEndian.Uint16(b[14:16]),
		HTotal:     binary.LittleEndian.Uint16(b[16:18]),
		HSkew:      binary.LittleEndian.Uint16(b[18:20]),
		VSyncStart: binary.LittleEndian.Uint16(b[20:22]),
		VSyncEnd:   binary.LittleEndian.Uint16(b[22:24]),
		VTotal:     binary.LittleEndian.Uint16(b[24:26]),
		NameLen:    binary.LittleEndian.Uint16(b[26:28]),
		Flags:      binary.LittleEndian.Uint32(b[28:32]),
	}
}

func (m *ModeInfo) encodeTo(w *Writer) {
	w.U32(m.ID).U16(m.Width).U16(m.Height).U32(m.DotClock).
		U16(m.HSyncStart).U16(m.HSyncEnd).U16(m.HTotal).U16(m.HSkew).
		U16(m.VSyncStart).U16(m.VSyncEnd).U16(m.VTotal).
		U16(m.NameLen).U32(m.Flags)
}

// ScreenResources is a decoded GetScreenResources or
// GetScreenResourcesCurrent reply. Names holds the packed mode name
// table without trailing padding.
type ScreenResources struct {
	Seq             uint16
	Timestamp       uint32
	ConfigTimestamp uint32
	Crtcs           []uint32
	Outputs         []uint32
	Modes           []ModeInfo
	Names           []byte
}

// ParseScreenResources decodes a screen resources reply frame.
func ParseScreenResources(frame []byte) (*ScreenResources, error) {
	if len(frame) < 32 {
		return nil, fmt.Errorf("screen resources: %w", ErrTruncatedReply)
	}

	numCrtcs := int(binary.LittleEndian.Uint16(frame[16:18]))
	numOutputs := int(binary.LittleEndian.Uint16(frame[18:20]))
	numModes := int(binary.LittleEndian.Uint16(frame[20:22]))
	namesLen := int(binary.LittleEndian.Uint16(frame[22:24]))

	need := 32 + 4*numCrtcs + 4*numOutputs + modeInfoSize*numModes + namesLen
	if need > len(frame) {
		return nil, fmt.Errorf("screen resources lists: %w", ErrTruncatedReply)
	}

	res := &ScreenResources{
		Seq:             Seq(frame),
		Timestamp:       binary.LittleEndian.Uint32(frame[8:12]),
		ConfigTimestamp: binary.LittleEndian.Uint32(frame[12:16]),
		Crtcs:           make([]uint32, numCrtcs),
		Outputs:         make([]uint32, numOutputs),
		Modes:           make([]ModeInfo, numModes),
		Names:           make([]byte, namesLen),
	}

	off := 32
	for i := range res.Crtcs {
		res.Crtcs[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	for i := range res.Outputs {
		res.Outputs[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	for i := range res.Modes {
		res.Modes[i] = parseModeInfo(frame[off : off+modeInfoSize])
		off += modeInfoSize
	}
	copy(res.Names, frame[off:off+namesLen])

	return res, nil
}

// Encode renders the reply with its counts and length recomputed from
// the slices.
func (r *ScreenResources) Encode() []byte {
	body := 4*len(r.Crtcs) + 4*len(r.Outputs) + modeInfoSize*len(r.Modes) + Pad4(len(r.Names))

	w := NewWriter(32 + body)
	w.U8(FrameReply).U8(0).U16(r.Seq).U32(uint32(body / 4))
	w.U32(r.Timestamp).U32(r.ConfigTimestamp)
	w.U16(uint16(len(r.Crtcs))).U16(uint16(len(r.Outputs)))
	w.U16(uint16(len(r.Modes))).U16(uint16(len(r.Names)))
	w.Skip(8)
	for _, c := range r.Crtcs {
		w.U32(c)
	}
	for _, o := range r.Outputs {
		w.U32(o)
	}
	for i := range r.Modes {
		r.Modes[i].encodeTo(w)
	}
	return w.Bytes(r.Names).Align().Done()
}

// CrtcInfo is a decoded GetCrtcInfo reply.
type CrtcInfo struct {
	Status    uint8
	Seq       uint16
	Timestamp uint32
	X, Y      int16
	Width     uint16
	Height    uint16
	Mode      uint32
	Rotation  uint16
	Rotations uint16
	Outputs   []uint32
	Possible  []uint32
}

// ParseCrtcInfo decodes a GetCrtcInfo reply frame.
func ParseCrtcInfo(frame []byte) (*CrtcInfo, error) {
	if len(frame) < 32 {
		return nil, fmt.Errorf("crtc info: %w", ErrTruncatedReply)
	}

	numOutputs := int(binary.LittleEndian.Uint16(frame[28:30]))
	numPossible := int(binary.LittleEndian.Uint16(frame[30:32]))
	if 32+4*numOutputs+4*numPossible > len(frame) {
		return nil, fmt.Errorf("crtc info lists: %w", ErrTruncatedReply)
	}

	info := &CrtcInfo{
		Status:    frame[1],
		Seq:       Seq(frame),
		Timestamp: binary.LittleEndian.Uint32(frame[8:12]),
		X:         int16(binary.LittleEndian.Uint16(frame[12:14])),
		Y:         int16(binary.LittleEndian.Uint16(frame[14:16])),
		Width:     binary.LittleEndian.Uint16(frame[16:18]),
		Height:    binary.LittleEndian.Uint16(frame[18:20]),
		Mode:      binary.LittleEndian.Uint32(frame[20:24]),
		Rotation:  binary.LittleEndian.Uint16(frame[24:26]),
		Rotations: binary.LittleEndian.Uint16(frame[26:28]),
		Outputs:   make([]uint32, numOutputs),
		Possible:  make([]uint32, numPossible),
	}

	off := 32
	for i := range info.Outputs {
		info.Outputs[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	for i := range info.Possible {
		info.Possible[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}

	return info, nil
}

// Encode renders the reply with its length recomputed.
func (c *CrtcInfo) Encode() []byte {
	words := len(c.Outputs) + len(c.Possible)

	w := NewWriter(32 + 4*words)
	w.U8(FrameReply).U8(c.Status).U16(c.Seq).U32(uint32(words))
	w.U32(c.Timestamp)
	w.I16(c.X).I16(c.Y).U16(c.Width).U16(c.Height)
	w.U32(c.Mode).U16(c.Rotation).U16(c.Rotations)
	w.U16(uint16(len(c.Outputs))).U16(uint16(len(c.Possible)))
	for _, o := range c.Outputs {
		w.U32(o)
	}
	for _, p := range c.Possible {
		w.U32(p)
	}
	return w.Done()
}

// OutputInfo is a decoded GetOutputInfo reply.
type OutputInfo struct {
	Status        uint8
	Seq           uint16
	Timestamp     uint32
	Crtc          uint32
	MmWidth       uint32
	MmHeight      uint32
	Connection    uint8
	SubpixelOrder uint8
	NumPreferred  uint16
	Crtcs         []uint32
	Modes         []uint32
	Clones        []uint32
	Name          []byte
}

// ParseOutputInfo decodes a GetOutputInfo reply frame.
func ParseOutputInfo(frame []byte) (*OutputInfo, error) {
	if len(frame) < 36 {
		return nil, fmt.Errorf("output info: %w", ErrTruncatedReply)
	}

	numCrtcs := int(binary.LittleEndian.Uint16(frame[26:28]))
	numModes := int(binary.LittleEndian.Uint16(frame[28:30]))
	numClones := int(binary.LittleEndian.Uint16(frame[32:34]))
	nameLen := int(binary.LittleEndian.Uint16(frame[34:36]))

	if 36+4*(numCrtcs+numModes+numClones)+nameLen > len(frame) {
		return nil, fmt.Errorf("output info lists: %w", ErrTruncatedReply)
	}

	info := &OutputInfo{
		Status:        frame[1],
		Seq:           Seq(frame),
		Timestamp:     binary.LittleEndian.Uint32(frame[8:12]),
		Crtc:          binary.LittleEndian.Uint32(frame[12:16]),
		MmWidth:       binary.LittleEndian.Uint32(frame[16:20]),
		MmHeight:      binary.LittleEndian.Uint32(frame[20:24]),
		Connection:    frame[24],
		SubpixelOrder: frame[25],
		NumPreferred:  binary.LittleEndian.Uint16(frame[30:32]),
		Crtcs:         make([]uint32, numCrtcs),
		Modes:         make([]uint32, numModes),
		Clones:        make([]uint32, numClones),
		Name:          make([]byte, nameLen),
	}

	off := 36
	for i := range info.Crtcs {
		info.Crtcs[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	for i := range info.Modes {
		info.Modes[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	for i := range info.Clones {
		info.Clones[i] = binary.LittleEndian.Uint32(frame[off : off+4])
		off += 4
	}
	copy(info.Name, frame[off:off+nameLen])

	return info, nil
}

// Encode renders the reply with its counts and length recomputed.
func (o *OutputInfo) Encode() []byte {
	body := 4 + 4*(len(o.Crtcs)+len(o.Modes)+len(o.Clones)) + Pad4(len(o.Name))

	w := NewWriter(32 + body)
	w.U8(FrameReply).U8(o.Status).U16(o.Seq).U32(uint32(body / 4))
	w.U32(o.Timestamp).U32(o.Crtc)
	w.U32(o.MmWidth).U32(o.MmHeight)
	w.U8(o.Connection).U8(o.SubpixelOrder)
	w.U16(uint16(len(o.Crtcs))).U16(uint16(len(o.Modes)))
	w.U16(o.NumPreferred).U16(uint16(len(o.Clones)))
	w.U16(uint16(len(o.Name)))
	for _, c := range o.Crtcs {
		w.U32(c)
	}
	for _, m := range o.Modes {
		w.U32(m)
	}
	for _, c := range o.Clones {
		w.U32(c)
	}
	return w.Bytes(o.Name).Align().Done()
}

// MaskCrtcReply zeroes the geometry and mode of a GetCrtcInfo reply in
// place, which is how a crtc consumed by synthetic siblings is hidden
// from clients.
func MaskCrtcReply(frame []byte) {
	if len(frame) < 32 {
		return
	}
	for i := 12; i < 24; i++ {
		frame[i] = 0
	}
}

// MaskOutputReply marks a GetOutputInfo reply as disconnected in place.
func MaskOutputReply(frame []byte) {
	if len(frame) < 32 {
		return
	}
	frame[24] = ConnDisconnected
}
