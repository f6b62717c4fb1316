package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kndndrj/splitrandr/internal/xsock"
)

// Server accepts clients on the served display and runs one session
// per connection.
type Server struct {
	log      *logrus.Entry
	cfg      *Config
	listener net.Listener
}

func NewServer(logger *logrus.Entry, cfg *Config) (*Server, error) {
	listener, err := xsock.Listen(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("xsock.Listen: %w", err)
	}

	return &Server{
		log:      logger,
		cfg:      cfg,
		listener: listener,
	}, nil
}

func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts clients until the context is canceled, then waits for
// the running sessions to wind down.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.log.WithFields(logrus.Fields{
		"display":  s.cfg.Display,
		"upstream": s.cfg.Upstream,
	}).Info("relaying display")

	for id := 0; ; id++ {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener.Accept: %w", err)
			}
			s.log.WithError(err).Error("listener.Accept")
			continue
		}

		sess := newSession(s.log.WithField("session", id), s.cfg, conn, nil)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.run(ctx); err != nil {
				sess.log.WithError(err).Error("session failed")
			}
		}()
	}
}
