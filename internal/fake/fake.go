// Package fake models the synthetic randr entities that stand in for
// regions of a split output. Entities carry everything needed to answer
// the queries clients ask about them, so replies never require another
// round trip to the real display.
package fake

import (
	"fmt"

	"github.com/kndndrj/splitrandr/internal/wire"
)

// Mode is a synthetic mode sized to one region. Its id equals the id of
// the crtc it belongs to.
type Mode struct {
	Info wire.ModeInfo
	Name string
}

// NewMode derives a region-sized mode from the parent crtc's mode,
// keeping the timings and replacing id, geometry and name.
func NewMode(id uint32, base wire.ModeInfo, width, height uint32) Mode {
	name := fmt.Sprintf("%dx%d", width, height)
	base.ID = id
	base.Width = uint16(width)
	base.Height = uint16(height)
	base.NameLen = uint16(len(name))
	return Mode{Info: base, Name: name}
}

// Output is a synthetic output covering one region of its parent.
type Output struct {
	ID            uint32
	Parent        uint32
	Status        uint8
	Timestamp     uint32
	Crtc          uint32
	MmWidth       uint32
	MmHeight      uint32
	Connection    uint8
	SubpixelOrder uint8
	Clones        []uint32
	Name          string
}

// EncodeReply renders a GetOutputInfo reply for the output. The single
// crtc doubles as the single mode, and no mode is preferred.
func (o *Output) EncodeReply(seq uint16) []byte {
	info := wire.OutputInfo{
		Status:        o.Status,
		Seq:           seq,
		Timestamp:     o.Timestamp,
		Crtc:          o.Crtc,
		MmWidth:       o.MmWidth,
		MmHeight:      o.MmHeight,
		Connection:    o.Connection,
		SubpixelOrder: o.SubpixelOrder,
		Crtcs:         []uint32{o.Crtc},
		Modes:         []uint32{o.Crtc},
		Clones:        o.Clones,
		Name:          []byte(o.Name),
	}
	return info.Encode()
}

// Crtc is a synthetic crtc pinned to one region of its parent crtc.
type Crtc struct {
	ID        uint32
	Status    uint8
	Timestamp uint32
	X, Y      int16
	Width     uint16
	Height    uint16
	Rotation  uint16
	Rotations uint16
	Output    uint32
}

// EncodeReply renders a GetCrtcInfo reply for the crtc. The mode id
// equals the crtc's own id, and the synthetic output is both the
// attached and the only possible one.
func (c *Crtc) EncodeReply(seq uint16) []byte {
	info := wire.CrtcInfo{
		Status:    c.Status,
		Seq:       seq,
		Timestamp: c.Timestamp,
		X:         c.X,
		Y:         c.Y,
		Width:     c.Width,
		Height:    c.Height,
		Mode:      c.ID,
		Rotation:  c.Rotation,
		Rotations: c.Rotations,
		Outputs:   []uint32{c.Output},
		Possible:  []uint32{c.Output},
	}
	return info.Encode()
}

// Resources aggregates every synthetic entity of one resources pass.
// Built in full before being published, read-only afterwards, so reads
// from concurrent sessions need no locking.
type Resources struct {
	modes       []Mode
	crtcs       map[uint32]*Crtc
	outputs     map[uint32]*Output
	crtcOrder   []uint32
	outputOrder []uint32

	splitCrtcs   map[uint32]bool
	splitOutputs map[uint32]bool
}

func NewResources() *Resources {
	return &Resources{
		crtcs:        make(map[uint32]*Crtc),
		outputs:      make(map[uint32]*Output),
		splitCrtcs:   make(map[uint32]bool),
		splitOutputs: make(map[uint32]bool),
	}
}

// AddSplit registers one region's entities and marks the parent pair as
// consumed. A nil mode is allowed: when the parent's mode is not in the
// resources list, the region goes without one.
func (r *Resources) AddSplit(parentOutput, parentCrtc uint32, crtc *Crtc, out *Output, mode *Mode) {
	r.crtcs[crtc.ID] = crtc
	r.crtcOrder = append(r.crtcOrder, crtc.ID)
	r.outputs[out.ID] = out
	r.outputOrder = append(r.outputOrder, out.ID)
	if mode != nil {
		r.modes = append(r.modes, *mode)
	}
	r.splitCrtcs[parentCrtc] = true
	r.splitOutputs[parentOutput] = true
}

// Empty reports whether the pass produced no synthetic entities.
func (r *Resources) Empty() bool {
	return len(r.outputOrder) == 0
}

func (r *Resources) CrtcByID(id uint32) (*Crtc, bool) {
	c, ok := r.crtcs[id]
	return c, ok
}

func (r *Resources) OutputByID(id uint32) (*Output, bool) {
	o, ok := r.outputs[id]
	return o, ok
}

// CrtcSplit reports whether a real crtc has been consumed by splits and
// must be hidden from clients.
func (r *Resources) CrtcSplit(id uint32) bool {
	return r.splitCrtcs[id]
}

// OutputSplit reports whether a real output has been consumed by splits.
func (r *Resources) OutputSplit(id uint32) bool {
	return r.splitOutputs[id]
}

// MergeInto appends the synthetic ids, modes and mode names to a real
// screen resources reply. Output names live in per-output replies, not
// in the resources name table, so only mode names are added.
func (r *Resources) MergeInto(res *wire.ScreenResources) {
	res.Crtcs = append(res.Crtcs, r.crtcOrder...)
	res.Outputs = append(res.Outputs, r.outputOrder...)
	for i := range r.modes {
		res.Modes = append(res.Modes, r.modes[i].Info)
		res.Names = append(res.Names, r.modes[i].Name...)
	}
}
