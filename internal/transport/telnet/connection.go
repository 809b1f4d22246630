package telnet

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

const outboxSize = 256

// Connection binds one accepted net.Conn to a reactor.Channel using the
// line-based protocol.
type Connection struct {
	conn    net.Conn
	channel *reactor.Channel
	log     *slog.Logger

	reader *Reader
	writer *Writer
	ka     *keepalive.KeepAlive

	outbox chan string
	done   chan struct{}

	closeOnce sync.Once
}

// Serve accepts conn and blocks until the connection closes. Call it in
// its own goroutine per accepted connection.
func Serve(conn net.Conn, r *reactor.Reactor, clock reactor.Clock, log *slog.Logger) {
	c := &Connection{
		conn:   conn,
		log:    log,
		reader: NewReader(conn),
		writer: NewWriter(conn),
		outbox: make(chan string, outboxSize),
		done:   make(chan struct{}),
	}
	c.channel = r.Channel(fmt.Sprintf("telnet/%s", conn.RemoteAddr()))
	c.channel.SetDownstreamHandler(c.onDownstream)

	c.ka = keepalive.New(clock)
	c.ka.SetWarningHandler(func() { c.sendLine("+PING") })
	c.ka.SetDeadHandler(func() {
		r.ClientUnresponsive(c.channel)
		c.sendLine("+BYE")
		c.Close()
	})

	go c.writeLoop()
	c.writer.WriteLine("+WELCOME nervix 1.1")

	c.readLoop()
}

func (c *Connection) readLoop() {
	defer c.Close()
	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("telnet read error", slog.String("remote", c.conn.RemoteAddr().String()), slog.String("err", err.Error()))
			}
			return
		}
		if line == "" {
			continue
		}
		c.ka.Tickle()

		verb, ok, quit, err := ParseLine(line)
		if quit {
			return
		}
		if err != nil {
			c.sendLine(fmt.Sprintf("-ERR %s", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		if err := c.channel.PutUpstream(verb); err != nil {
			return
		}
	}
}

func (c *Connection) onDownstream() {
	verb, ok := c.channel.PopDownstream()
	if !ok {
		return
	}
	line, err := FormatVerb(verb)
	if err != nil {
		c.log.Error("telnet encode error", slog.String("err", err.Error()))
		return
	}
	c.sendLine(line)
}

func (c *Connection) sendLine(line string) {
	select {
	case c.outbox <- line:
	case <-c.done:
	default:
		c.log.Warn("telnet outbox full, disconnecting slow client", slog.String("remote", c.conn.RemoteAddr().String()))
		go c.Close()
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.outbox:
			if err := c.writer.WriteLine(line); err != nil {
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
