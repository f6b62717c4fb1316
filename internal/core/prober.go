package core

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// Longest EDID block fetched from an output, in 32-bit units.
const edidLongLength = 384

// ProbedOutput carries the fields of a real output that synthetic
// siblings inherit.
type ProbedOutput struct {
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

// ProbedCrtc carries the fields of a real crtc that synthetic regions
// are carved from.
type ProbedCrtc struct {
	Status    uint8
	Timestamp uint32
	X, Y      int16
	Width     uint16
	Height    uint16
	Mode      uint32
	Rotation  uint16
	Rotations uint16
}

// ProbedResources is the thin slice of a screen resources reply needed
// to enumerate outputs.
type ProbedResources struct {
	ConfigTimestamp uint32
	Outputs         []uint32
}

// Prober asks the real display about its outputs over a dedicated
// connection, so lookups never interleave with relayed client traffic.
type Prober struct {
	conn     *xgb.Conn
	root     xproto.Window
	edidAtom xproto.Atom
}

// NewProber connects to the display and resolves the EDID atom. A
// display without the atom is fine, outputs simply have no EDID then.
func NewProber(display string) (*Prober, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("xgb.NewConnDisplay: %w", err)
	}

	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("randr.Init: %w", err)
	}

	atom, err := xproto.InternAtom(conn, true, uint16(len("EDID")), "EDID").Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("xproto.InternAtom: %w", err)
	}

	return &Prober{
		conn:     conn,
		root:     xproto.Setup(conn).DefaultScreen(conn).Root,
		edidAtom: atom.Atom,
	}, nil
}

func (p *Prober) Close() {
	p.conn.Close()
}

// ScreenResources lists the outputs of the display.
func (p *Prober) ScreenResources() (*ProbedResources, error) {
	res, err := randr.GetScreenResources(p.conn, p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr.GetScreenResources: %w", err)
	}

	outputs := make([]uint32, len(res.Outputs))
	for i, o := range res.Outputs {
		outputs[i] = uint32(o)
	}

	return &ProbedResources{
		ConfigTimestamp: uint32(res.ConfigTimestamp),
		Outputs:         outputs,
	}, nil
}

// OutputEDID fetches the raw EDID property of an output. A missing
// property or atom yields an empty slice, not an error.
func (p *Prober) OutputEDID(output uint32) ([]byte, error) {
	if p.edidAtom == xproto.AtomNone {
		return nil, nil
	}

	reply, err := randr.GetOutputProperty(p.conn, randr.Output(output), p.edidAtom,
		xproto.AtomAny, 0, edidLongLength, false, false).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr.GetOutputProperty: %w", err)
	}

	return reply.Data, nil
}

// OutputInfo queries one output against the given config timestamp.
func (p *Prober) OutputInfo(output, configTimestamp uint32) (*ProbedOutput, error) {
	info, err := randr.GetOutputInfo(p.conn, randr.Output(output), xproto.Timestamp(configTimestamp)).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr.GetOutputInfo: %w", err)
	}

	clones := make([]uint32, len(info.Clones))
	for i, c := range info.Clones {
		clones[i] = uint32(c)
	}

	return &ProbedOutput{
		Status:        info.Status,
		Timestamp:     uint32(info.Timestamp),
		Crtc:          uint32(info.Crtc),
		MmWidth:       info.MmWidth,
		MmHeight:      info.MmHeight,
		Connection:    info.Connection,
		SubpixelOrder: info.SubpixelOrder,
		Clones:        clones,
		Name:          string(info.Name),
	}, nil
}

// CrtcInfo queries one crtc against the given config timestamp.
func (p *Prober) CrtcInfo(crtc, configTimestamp uint32) (*ProbedCrtc, error) {
	info, err := randr.GetCrtcInfo(p.conn, randr.Crtc(crtc), xproto.Timestamp(configTimestamp)).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr.GetCrtcInfo: %w", err)
	}

	return &ProbedCrtc{
		Status:    info.Status,
		Timestamp: uint32(info.Timestamp),
		X:         info.X,
		Y:         info.Y,
		Width:     info.Width,
		Height:    info.Height,
		Mode:      uint32(info.Mode),
		Rotation:  info.Rotation,
		Rotations: info.Rotations,
	}, nil
}
