package nxtcp

import (
	"log/slog"
	"net"

	"github.com/roel-gerrits/nervix/internal/reactor"
)

// Service owns one listening socket and spawns a Connection per accepted
// client.
type Service struct {
	listener net.Listener
	reactor  *reactor.Reactor
	clock    reactor.Clock
	log      *slog.Logger
}

// Listen starts accepting NXTCP connections on addr. Call Serve in its own
// goroutine; Close stops accepting and closes the listener.
func Listen(addr string, r *reactor.Reactor, clock reactor.Clock, log *slog.Logger) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Service{listener: ln, reactor: r, clock: clock, log: log}, nil
}

// Addr returns the bound listen address, useful when the configured port
// was 0.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Service) Serve() error {
	s.log.Info("nxtcp service started", slog.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go Serve(conn, s.reactor, s.clock, s.log)
	}
}

// Close stops accepting new connections.
func (s *Service) Close() error {
	s.log.Info("nxtcp service stopped", slog.String("addr", s.listener.Addr().String()))
	return s.listener.Close()
}
