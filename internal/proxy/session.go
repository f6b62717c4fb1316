package proxy

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kndndrj/splitrandr/internal/core"
	"github.com/kndndrj/splitrandr/internal/fake"
	"github.com/kndndrj/splitrandr/internal/synth"
	"github.com/kndndrj/splitrandr/internal/wire"
	"github.com/kndndrj/splitrandr/internal/xid"
	"github.com/kndndrj/splitrandr/internal/xsock"
)

// Synth derives the synthetic aggregate for a resources reply.
type Synth interface {
	Synthesize(*wire.ScreenResources) *fake.Resources
}

type pendKind int

const (
	pendExtension pendKind = iota + 1
	pendResources
	pendCrtc
	pendOutput
)

// pending is one in-flight request the session cares about, keyed by
// its sequence number.
type pending struct {
	kind pendKind
	id   uint32
}

// session relays one client connection to the upstream display and
// rewrites the randr traffic passing through it.
type session struct {
	log *logrus.Entry
	cfg *Config

	client net.Conn
	server net.Conn

	// synthesizer and its sidecar connection, created on the first
	// resources reply
	synth      Synth
	probeClose func()

	mu   sync.Mutex
	pend map[uint16]pending

	seq       uint16
	relayOnly bool

	randr atomic.Pointer[wire.ExtensionInfo]
	agg   atomic.Pointer[fake.Resources]
}

func newSession(logger *logrus.Entry, cfg *Config, client, server net.Conn) *session {
	s := &session{
		log:    logger,
		cfg:    cfg,
		client: client,
		server: server,
		pend:   make(map[uint16]pending),
	}
	s.agg.Store(fake.NewResources())
	return s
}

// run drives the session until either side hangs up or the context is
// canceled. A clean disconnect is not an error.
func (s *session) run(ctx context.Context) error {
	defer s.client.Close()

	if s.server == nil {
		server, err := xsock.Dial(s.cfg.Upstream)
		if err != nil {
			return fmt.Errorf("xsock.Dial: %w", err)
		}
		s.server = server
	}
	defer s.server.Close()

	defer func() {
		if s.probeClose != nil {
			s.probeClose()
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		s.client.Close()
		s.server.Close()
	})
	defer stop()

	if err := s.handshake(); err != nil {
		if ctx.Err() != nil || ignoreClosed(err) == nil {
			return nil
		}
		return fmt.Errorf("s.handshake: %w", err)
	}

	var group errgroup.Group
	if s.relayOnly {
		group.Go(func() error {
			defer s.server.Close()
			return relay(s.server, s.client)
		})
		group.Go(func() error {
			defer s.client.Close()
			return relay(s.client, s.server)
		})
	} else {
		group.Go(func() error {
			defer s.server.Close()
			return s.pumpRequests()
		})
		group.Go(func() error {
			defer s.client.Close()
			return s.pumpReplies()
		})
	}

	err := group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handshake relays the connection setup and decides whether the
// session can intercept at all. Big endian clients and servers whose
// resource id mask collides with the split bits get a plain relay.
func (s *session) handshake() error {
	setupReq, err := wire.ReadSetupRequest(s.client)
	if err != nil {
		return fmt.Errorf("wire.ReadSetupRequest: %w", err)
	}
	if _, err := s.server.Write(setupReq); err != nil {
		return fmt.Errorf("s.server.Write: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if setupReq[0] == 'B' {
		order = binary.BigEndian
		s.relayOnly = true
		s.log.Warn("big endian client, relaying without interception")
	}

	setup, err := wire.ReadSetupReply(s.server, order)
	if err != nil {
		return fmt.Errorf("wire.ReadSetupReply: %w", err)
	}
	if _, err := s.client.Write(setup); err != nil {
		return fmt.Errorf("s.client.Write: %w", err)
	}

	if s.relayOnly {
		return nil
	}

	mask, ok := wire.SetupResourceIDMask(setup)
	if !ok {
		// refused or multi-step auth, nothing to intercept
		s.relayOnly = true
		return nil
	}
	if mask&xid.SplitMask != 0 {
		s.relayOnly = true
		s.log.Warnf("resource id mask %#x collides with split ids, relaying without interception", mask)
	}

	return nil
}

// pumpRequests moves client requests to the server, numbering them the
// way the server will and stripping synthetic ids on the way.
func (s *session) pumpRequests() error {
	src := bufio.NewReaderSize(s.client, 64<<10)
	for {
		frame, err := wire.ReadRequest(src)
		if err != nil {
			return ignoreClosed(fmt.Errorf("wire.ReadRequest: %w", err))
		}

		s.seq++
		s.inspectRequest(frame)

		if _, err := s.server.Write(frame); err != nil {
			return ignoreClosed(fmt.Errorf("s.server.Write: %w", err))
		}
	}
}

// pumpReplies moves server frames to the client, substituting the ones
// that answer intercepted requests.
func (s *session) pumpReplies() error {
	src := bufio.NewReaderSize(s.server, 64<<10)
	for {
		frame, err := wire.ReadServerFrame(src)
		if err != nil {
			return ignoreClosed(fmt.Errorf("wire.ReadServerFrame: %w", err))
		}

		frame = s.inspectReply(frame)

		if _, err := s.client.Write(frame); err != nil {
			return ignoreClosed(fmt.Errorf("s.client.Write: %w", err))
		}
	}
}

// synthesizer hands out the session's synthesizer, dialing the sidecar
// probe connection on first use.
func (s *session) synthesizer() (Synth, error) {
	if s.synth != nil {
		return s.synth, nil
	}

	probe, err := core.NewProber(s.cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("core.NewProber: %w", err)
	}

	s.probeClose = probe.Close
	s.synth = synth.NewSynthesizer(s.log, probe, s.cfg.ConfigPath)
	return s.synth, nil
}

func (s *session) addPending(seq uint16, p pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pend[seq]; ok {
		// the client lapped the whole sequence space with an
		// intercepted request still unanswered
		s.log.Warnf("sequence %d reused while kind %d still pending", seq, old.kind)
	}
	s.pend[seq] = p
}

func (s *session) takePending(seq uint16) (pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pend[seq]
	if ok {
		delete(s.pend, seq)
	}
	return p, ok
}

func relay(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	return ignoreClosed(err)
}

// ignoreClosed maps the errors of a torn down connection to a clean
// exit.
func ignoreClosed(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return nil
	}
	return err
}
