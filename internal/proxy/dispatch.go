package proxy

import (
	"encoding/binary"
	"fmt"

	"github.com/kndndrj/splitrandr/internal/fake"
	"github.com/kndndrj/splitrandr/internal/wire"
	"github.com/kndndrj/splitrandr/internal/xid"
)

// inspectRequest decides what the reply pump must do with the answer
// to this request and rewrites synthetic ids in place. Runs on the
// request pump with s.seq already advanced.
func (s *session) inspectRequest(frame []byte) {
	if frame[0] == wire.OpQueryExtension {
		if wire.QueryExtensionName(frame) == "RANDR" {
			s.addPending(s.seq, pending{kind: pendExtension})
		}
		return
	}

	ext := s.randr.Load()
	if ext == nil || frame[0] != ext.MajorOpcode || len(frame) < 8 {
		return
	}

	switch minor := frame[1]; minor {
	case wire.GetScreenResources, wire.GetScreenResourcesCurrent:
		s.addPending(s.seq, pending{kind: pendResources})

	case wire.GetCrtcInfo:
		id := binary.LittleEndian.Uint32(frame[4:8])
		stripAt(frame, 4)
		s.addPending(s.seq, pending{kind: pendCrtc, id: id})

	case wire.GetOutputInfo:
		id := binary.LittleEndian.Uint32(frame[4:8])
		stripAt(frame, 4)
		s.addPending(s.seq, pending{kind: pendOutput, id: id})

	default:
		stripRequest(frame, minor)
	}
}

// stripRequest rewrites synthetic ids in randr requests the proxy does
// not answer itself, so the real server never sees an id it did not
// hand out.
func stripRequest(frame []byte, minor byte) {
	switch minor {
	case wire.ListOutputProperties,
		wire.QueryOutputProperty,
		wire.ConfigureOutputProperty,
		wire.ChangeOutputProperty,
		wire.DeleteOutputProperty,
		wire.GetOutputProperty,
		wire.DestroyMode,
		wire.GetCrtcGammaSize,
		wire.GetCrtcGamma,
		wire.SetCrtcGamma,
		wire.SetCrtcTransform,
		wire.GetCrtcTransform,
		wire.GetPanning,
		wire.SetPanning:
		stripAt(frame, 4)

	case wire.AddOutputMode, wire.DeleteOutputMode:
		stripAt(frame, 4)
		stripAt(frame, 8)

	case wire.SetCrtcConfig:
		stripAt(frame, 4)  // crtc
		stripAt(frame, 20) // mode
		for off := 28; off+4 <= len(frame); off += 4 {
			stripAt(frame, off) // outputs
		}

	case wire.SetOutputPrimary:
		stripAt(frame, 8)
	}
}

func stripAt(frame []byte, off int) {
	if off+4 > len(frame) {
		return
	}
	id := binary.LittleEndian.Uint32(frame[off : off+4])
	if !xid.IsSynthetic(id) {
		return
	}
	binary.LittleEndian.PutUint32(frame[off:off+4], xid.Base(id))
}

// inspectReply substitutes or adjusts server frames that answer
// intercepted requests. Runs on the reply pump.
func (s *session) inspectReply(frame []byte) []byte {
	switch frame[0] {
	case wire.FrameReply:
		p, ok := s.takePending(wire.Seq(frame))
		if !ok {
			return frame
		}
		return s.rewriteReply(frame, p)

	case wire.FrameError:
		p, ok := s.takePending(wire.Seq(frame))
		if !ok {
			return frame
		}
		// hand the client back the id it actually asked about
		if (p.kind == pendCrtc || p.kind == pendOutput) && xid.IsSynthetic(p.id) {
			binary.LittleEndian.PutUint32(frame[4:8], p.id)
		}
		return frame
	}

	return frame
}

func (s *session) rewriteReply(frame []byte, p pending) []byte {
	switch p.kind {
	case pendExtension:
		info := wire.ParseExtensionInfo(frame)
		if info.Present {
			s.randr.Store(&info)
			s.log.WithField("opcode", info.MajorOpcode).Debug("randr bound")
		}
		return frame

	case pendResources:
		return s.rewriteResources(frame)

	case pendCrtc:
		return s.rewriteCrtc(frame, p.id)

	case pendOutput:
		return s.rewriteOutput(frame, p.id)
	}

	return frame
}

// rewriteResources runs one synthesis pass and publishes its result.
// With nothing synthesized the reply passes through untouched.
func (s *session) rewriteResources(frame []byte) []byte {
	res, err := wire.ParseScreenResources(frame)
	if err != nil {
		s.log.WithError(err).Error("malformed resources reply passed through")
		return frame
	}

	syn, err := s.synthesizer()
	if err != nil {
		s.log.WithError(err).Warn("cannot probe the display, splits disabled")
		s.agg.Store(fake.NewResources())
		return frame
	}

	agg := syn.Synthesize(res)
	s.agg.Store(agg)
	if agg.Empty() {
		return frame
	}

	agg.MergeInto(res)
	s.log.WithField("outputs", len(res.Outputs)).Debug("resources rewritten")
	return res.Encode()
}

func (s *session) rewriteCrtc(frame []byte, id uint32) []byte {
	agg := s.agg.Load()

	if !xid.IsSynthetic(id) {
		if agg.CrtcSplit(id) {
			wire.MaskCrtcReply(frame)
		}
		return frame
	}

	crtc, ok := agg.CrtcByID(id)
	if !ok {
		return s.notFound(frame, wire.BadCrtcOffset, wire.GetCrtcInfo, id)
	}
	return crtc.EncodeReply(wire.Seq(frame))
}

func (s *session) rewriteOutput(frame []byte, id uint32) []byte {
	agg := s.agg.Load()

	if !xid.IsSynthetic(id) {
		if agg.OutputSplit(id) {
			wire.MaskOutputReply(frame)
		}
		return frame
	}

	out, ok := agg.OutputByID(id)
	if !ok {
		return s.notFound(frame, wire.BadOutputOffset, wire.GetOutputInfo, id)
	}
	return out.EncodeReply(wire.Seq(frame))
}

// notFound answers a query about a synthetic id that no longer exists.
// The entity set moved on since the client learned the id, which is
// exactly what a real server's NotFound means.
func (s *session) notFound(frame []byte, codeOffset uint8, minor uint16, id uint32) []byte {
	ext := s.randr.Load()

	s.log.WithField("id", fmt.Sprintf("%#x", id)).Debug("stale synthetic id")

	e := &wire.Error{
		Code:  ext.FirstError + codeOffset,
		Seq:   wire.Seq(frame),
		Bad:   id,
		Minor: minor,
		Major: ext.MajorOpcode,
	}
	return e.Encode()
}
