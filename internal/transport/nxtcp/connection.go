package nxtcp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/roel-gerrits/nervix/internal/keepalive"
	"github.com/roel-gerrits/nervix/internal/reactor"
)

// outboxSize bounds how far the writer goroutine may lag the reactor
// before a slow client is disconnected; send never blocks. It is generous
// enough to absorb a burst without ever being mistaken for a queueing
// policy: a connection that cannot keep up is disconnected, not buffered
// indefinitely.
const outboxSize = 256

// Connection binds one accepted net.Conn to a reactor.Channel, translating
// NXTCP packets to and from verbs and driving the shared keepalive
// watchdog.
type Connection struct {
	conn    net.Conn
	channel *reactor.Channel
	r       *reactor.Reactor
	log     *slog.Logger

	enc *Encoder
	dec *Decoder
	ka  *keepalive.KeepAlive

	outbox chan Packet
	done   chan struct{}

	closeOnce sync.Once
}

// Serve accepts conn, performs the NXTCP handshake, and blocks (reading)
// until the connection closes. Call it in its own goroutine per accepted
// connection.
func Serve(conn net.Conn, r *reactor.Reactor, clock reactor.Clock, log *slog.Logger) {
	c := &Connection{
		conn: conn,
		r:    r,
		log:  log,
		enc:  NewEncoder(conn),
		dec:  NewDecoder(conn),
	}
	c.channel = r.Channel(fmt.Sprintf("nxtcp/%s", conn.RemoteAddr()))
	c.channel.SetDownstreamHandler(c.onDownstream)
	c.outbox = make(chan Packet, outboxSize)
	c.done = make(chan struct{})

	c.ka = keepalive.New(clock)
	c.ka.SetWarningHandler(func() { c.send(PingPacket{}) })
	c.ka.SetDeadHandler(func() {
		r.ClientUnresponsive(c.channel)
		c.send(ByeByePacket{})
		c.Close()
	})

	go c.writeLoop()

	if err := c.enc.Encode(WelcomePacket{Major: ProtocolMajor, Minor: ProtocolMinor}); err != nil {
		c.Close()
		return
	}

	c.readLoop()
}

func (c *Connection) readLoop() {
	defer c.Close()
	for {
		pkt, err := c.dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("nxtcp read error", slog.String("remote", c.conn.RemoteAddr().String()), slog.String("err", err.Error()))
			}
			return
		}
		c.ka.Tickle()

		switch pkt.(type) {
		case PongPacket:
			continue
		case QuitPacket:
			return
		}

		verb, ok, err := packetToVerb(pkt)
		if err != nil || !ok {
			continue
		}
		if err := c.channel.PutUpstream(verb); err != nil {
			return
		}
	}
}

// onDownstream is the Channel drain callback: pop one verb, translate it,
// and hand it to the writer goroutine. Called synchronously from inside
// the reactor's critical section, so it must never block on socket I/O
// itself -- that's what the buffered outbox + writeLoop split is for.
func (c *Connection) onDownstream() {
	verb, ok := c.channel.PopDownstream()
	if !ok {
		return
	}
	pkt, err := verbToPacket(verb)
	if err != nil {
		c.log.Error("nxtcp encode error", slog.String("err", err.Error()))
		return
	}
	c.send(pkt)
}

func (c *Connection) send(p Packet) {
	select {
	case c.outbox <- p:
	case <-c.done:
	default:
		c.log.Warn("nxtcp outbox full, disconnecting slow client", slog.String("remote", c.conn.RemoteAddr().String()))
		go c.Close()
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case pkt := <-c.outbox:
			if err := c.enc.Encode(pkt); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close tears down the channel, keepalive, and socket. Safe to call more
// than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		// Close the reactor side first so its final downstream verbs
		// (e.g. SESSION ENDED) still reach writeLoop before done is
		// closed under it.
		c.channel.Close()
		close(c.done)
		c.ka.Destroy()
		c.conn.Close()
	})
}
