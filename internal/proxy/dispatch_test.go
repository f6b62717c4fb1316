package proxy

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kndndrj/splitrandr/internal/wire"
	"github.com/kndndrj/splitrandr/internal/xid"
)

// boundSession returns a session that already knows the randr opcodes.
func boundSession() *session {
	s := newSession(testLogger(), &Config{Display: ":8", Upstream: ":0"}, nil, nil)
	s.randr.Store(&wire.ExtensionInfo{Present: true, MajorOpcode: 140, FirstEvent: 89, FirstError: 147})
	return s
}

func queryExtensionReq(name string) []byte {
	return wire.NewWriter(8 + len(name) + 3).
		U8(wire.OpQueryExtension).U8(0).U16(uint16(2 + (len(name)+3)/4)).
		U16(uint16(len(name))).U16(0).Bytes([]byte(name)).Align().Done()
}

func TestStripRequest(t *testing.T) {
	synthOut := xid.Augment(0x42, 1)
	synthCrtc := xid.Augment(0x63, 2)

	testCases := []struct {
		comment string
		frame   []byte
		want    []byte
	}{
		{
			comment: "property request strips the output",
			frame: wire.NewWriter(28).U8(140).U8(wire.GetOutputProperty).U16(7).
				U32(synthOut).U32(0x45).U32(0).U32(0).U32(96).U32(0).Done(),
			want: wire.NewWriter(28).U8(140).U8(wire.GetOutputProperty).U16(7).
				U32(0x42).U32(0x45).U32(0).U32(0).U32(96).U32(0).Done(),
		},
		{
			comment: "real ids pass unchanged",
			frame: wire.NewWriter(28).U8(140).U8(wire.GetOutputProperty).U16(7).
				U32(0x42).U32(0x45).U32(0).U32(0).U32(96).U32(0).Done(),
			want: wire.NewWriter(28).U8(140).U8(wire.GetOutputProperty).U16(7).
				U32(0x42).U32(0x45).U32(0).U32(0).U32(96).U32(0).Done(),
		},
		{
			comment: "gamma request strips the crtc",
			frame: wire.NewWriter(8).U8(140).U8(wire.GetCrtcGamma).U16(2).
				U32(synthCrtc).Done(),
			want: wire.NewWriter(8).U8(140).U8(wire.GetCrtcGamma).U16(2).
				U32(0x63).Done(),
		},
		{
			comment: "destroy mode strips the mode",
			frame: wire.NewWriter(8).U8(140).U8(wire.DestroyMode).U16(2).
				U32(synthCrtc).Done(),
			want: wire.NewWriter(8).U8(140).U8(wire.DestroyMode).U16(2).
				U32(0x63).Done(),
		},
		{
			comment: "delete output mode strips both ids",
			frame: wire.NewWriter(12).U8(140).U8(wire.DeleteOutputMode).U16(3).
				U32(synthOut).U32(synthCrtc).Done(),
			want: wire.NewWriter(12).U8(140).U8(wire.DeleteOutputMode).U16(3).
				U32(0x42).U32(0x63).Done(),
		},
		{
			comment: "set crtc config strips crtc, mode and the output list",
			frame: wire.NewWriter(36).U8(140).U8(wire.SetCrtcConfig).U16(9).
				U32(synthCrtc).U32(1000).U32(900).
				I16(0).I16(540).U32(synthCrtc).U16(1).U16(0).
				U32(synthOut).U32(0x99).Done(),
			want: wire.NewWriter(36).U8(140).U8(wire.SetCrtcConfig).U16(9).
				U32(0x63).U32(1000).U32(900).
				I16(0).I16(540).U32(0x63).U16(1).U16(0).
				U32(0x42).U32(0x99).Done(),
		},
		{
			comment: "set output primary leaves the window alone",
			frame: wire.NewWriter(12).U8(140).U8(wire.SetOutputPrimary).U16(3).
				U32(xid.Augment(0x100, 3)).U32(synthOut).Done(),
			want: wire.NewWriter(12).U8(140).U8(wire.SetOutputPrimary).U16(3).
				U32(xid.Augment(0x100, 3)).U32(0x42).Done(),
		},
		{
			comment: "create mode is not touched",
			frame: wire.NewWriter(40).U8(140).U8(wire.CreateMode).U16(10).
				U32(0x100).U32(synthCrtc).Skip(28).Done(),
			want: wire.NewWriter(40).U8(140).U8(wire.CreateMode).U16(10).
				U32(0x100).U32(synthCrtc).Skip(28).Done(),
		},
		{
			comment: "get output primary is not touched",
			frame: wire.NewWriter(8).U8(140).U8(wire.GetOutputPrimary).U16(2).
				U32(synthOut).Done(),
			want: wire.NewWriter(8).U8(140).U8(wire.GetOutputPrimary).U16(2).
				U32(synthOut).Done(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.comment, func(t *testing.T) {
			r := require.New(t)

			stripRequest(tc.frame, tc.frame[1])
			r.Equal(tc.want, tc.frame)
		})
	}
}

func TestStripAtRespectsFrameBounds(t *testing.T) {
	r := require.New(t)

	frame := wire.NewWriter(6).U8(140).U8(wire.SetPanning).U16(20).U16(0).Done()
	stripAt(frame, 4)
	r.Equal([]byte{140, wire.SetPanning, 20, 0, 0, 0}, frame)
}

func TestInspectRequestTracksExtensionQuery(t *testing.T) {
	r := require.New(t)

	s := boundSession()
	s.seq = 5
	s.inspectRequest(queryExtensionReq("RANDR"))

	p, ok := s.takePending(5)
	r.True(ok)
	r.Equal(pendExtension, p.kind)

	s.seq = 6
	s.inspectRequest(queryExtensionReq("XFIXES"))
	_, ok = s.takePending(6)
	r.False(ok)
}

func TestInspectRequestTracksResourceQueries(t *testing.T) {
	r := require.New(t)

	s := boundSession()
	for i, minor := range []uint8{wire.GetScreenResources, wire.GetScreenResourcesCurrent} {
		s.seq = uint16(i + 1)
		s.inspectRequest(randrReq(minor, 0x100))

		p, ok := s.takePending(s.seq)
		r.True(ok)
		r.Equal(pendResources, p.kind)
	}
}

func TestInspectRequestStripsTrackedQueries(t *testing.T) {
	r := require.New(t)

	s := boundSession()
	id := xid.Augment(0x63, 1)

	s.seq = 1
	frame := randrReq(wire.GetCrtcInfo, id, 900)
	s.inspectRequest(frame)

	r.Equal(uint32(0x63), binary.LittleEndian.Uint32(frame[4:8]))
	p, ok := s.takePending(1)
	r.True(ok)
	r.Equal(pendCrtc, p.kind)
	r.Equal(id, p.id, "the pending entry remembers the synthetic id")

	s.seq = 2
	outID := xid.Augment(0x42, 2)
	frame = randrReq(wire.GetOutputInfo, outID, 900)
	s.inspectRequest(frame)

	r.Equal(uint32(0x42), binary.LittleEndian.Uint32(frame[4:8]))
	p, ok = s.takePending(2)
	r.True(ok)
	r.Equal(pendOutput, p.kind)
	r.Equal(outID, p.id)
}

func TestInspectRequestIgnoresRandrBeforeBinding(t *testing.T) {
	r := require.New(t)

	s := newSession(testLogger(), &Config{Display: ":8", Upstream: ":0"}, nil, nil)
	id := xid.Augment(0x63, 1)

	s.seq = 1
	frame := randrReq(wire.GetCrtcInfo, id, 900)
	s.inspectRequest(frame)

	r.Equal(id, binary.LittleEndian.Uint32(frame[4:8]), "nothing is stripped before the opcode is known")
	_, ok := s.takePending(1)
	r.False(ok)
}

func TestInspectRequestIgnoresOtherOpcodes(t *testing.T) {
	r := require.New(t)

	s := boundSession()
	s.seq = 1

	frame := wire.NewWriter(12).U8(141).U8(wire.GetCrtcInfo).U16(3).
		U32(xid.Augment(0x63, 1)).U32(900).Done()
	want := append([]byte(nil), frame...)
	s.inspectRequest(frame)

	r.Equal(want, frame)
	_, ok := s.takePending(1)
	r.False(ok)
}

func TestInspectReplyBindsExtension(t *testing.T) {
	r := require.New(t)

	s := newSession(testLogger(), &Config{Display: ":8", Upstream: ":0"}, nil, nil)
	s.addPending(3, pending{kind: pendExtension})

	frame := wire.NewWriter(32).
		U8(wire.FrameReply).U8(0).U16(3).U32(0).
		U8(1).U8(140).U8(89).U8(147).Skip(20).Done()
	got := s.inspectReply(frame)
	r.Equal(frame, got)

	ext := s.randr.Load()
	r.NotNil(ext)
	r.Equal(uint8(140), ext.MajorOpcode)
	r.Equal(uint8(147), ext.FirstError)
}

func TestInspectReplySkipsAbsentExtension(t *testing.T) {
	r := require.New(t)

	s := newSession(testLogger(), &Config{Display: ":8", Upstream: ":0"}, nil, nil)
	s.addPending(3, pending{kind: pendExtension})

	frame := wire.NewWriter(32).
		U8(wire.FrameReply).U8(0).U16(3).U32(0).
		U8(0).U8(0).U8(0).U8(0).Skip(20).Done()
	s.inspectReply(frame)

	r.Nil(s.randr.Load())
}

func TestInspectReplyLeavesUntrackedFramesAlone(t *testing.T) {
	r := require.New(t)

	s := boundSession()

	frame := wire.NewWriter(32).U8(wire.FrameReply).U8(0).U16(9).U32(0).Skip(24).Done()
	want := append([]byte(nil), frame...)
	r.Equal(want, s.inspectReply(frame))

	errFrame := (&wire.Error{Code: 148, Seq: 9, Bad: 0x63, Minor: wire.GetCrtcInfo, Major: 140}).Encode()
	want = append([]byte(nil), errFrame...)
	r.Equal(want, s.inspectReply(errFrame))
}

func TestInspectReplyLeavesResourceErrorsAlone(t *testing.T) {
	r := require.New(t)

	s := boundSession()
	s.addPending(4, pending{kind: pendResources})

	errFrame := (&wire.Error{Code: 3, Seq: 4, Bad: 0x100, Minor: wire.GetScreenResources, Major: 140}).Encode()
	want := append([]byte(nil), errFrame...)
	r.Equal(want, s.inspectReply(errFrame))

	_, ok := s.takePending(4)
	r.False(ok, "the error consumed the pending entry")
}
