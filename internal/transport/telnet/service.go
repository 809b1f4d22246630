package telnet

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

// Listen starts accepting telnet connections on addr.
func Listen(addr string, r *reactor.Reactor, clock reactor.Clock, log *slog.Logger) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Service{listener: ln, reactor: r, clock: clock, log: log}, nil
}

// Addr returns the bound listen address.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Service) Serve() error {
	s.log.Info("telnet service started", slog.String("addr", s.listener.Addr().String()))
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
	s.log.Info("telnet service stopped", slog.String("addr", s.listener.Addr().String()))
	return s.listener.Close()
}
