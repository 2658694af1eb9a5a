package smtpd

import (
	"bufio"
	"net"
	"time"

	"github.com/ExPixel/mercury/lalog"
	"github.com/ExPixel/mercury/smtp"
)

// DefaultReadTimeout and DefaultWriteTimeout bound every individual read and
// write on a connection; a client that stalls mid-command or mid-DATA is
// disconnected rather than held open indefinitely.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// ConnConfig tunes a single Connection's timeouts.
type ConnConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c ConnConfig) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return c.ReadTimeout
}

func (c ConnConfig) writeTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return c.WriteTimeout
}

// Connection drives one accepted TCP socket through its Session, reading
// terminator-delimited chunks and writing back the Session's replies.
//
// Unlike net/textproto's dot-reader, the read loop here never unstuffs
// leading dots from a DATA payload: it only looks for the literal
// "\r\n.\r\n" suffix and hands the raw bytes between it to the Session
// untouched.
type Connection struct {
	conn    net.Conn
	reader  *bufio.Reader
	session *Session
	cfg     ConnConfig
	logger  *lalog.Logger
}

// NewConnection wraps an accepted socket. onNewMail is forwarded to a fresh
// Session for this connection.
func NewConnection(conn net.Conn, cfg ConnConfig, onNewMail OnNewMail, logger *lalog.Logger) *Connection {
	if logger == nil {
		logger = &lalog.Logger{ComponentName: "smtpd"}
	}
	return &Connection{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		session: NewSession(onNewMail),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run drives the connection until the session closes, the peer disconnects,
// or a read/write deadline is exceeded. It always closes the underlying
// socket before returning.
func (c *Connection) Run() {
	defer c.conn.Close()

	var reply smtp.Reply
	c.session.OnRecv(&reply)
	reply.Finish()
	if !c.writeReply(&reply) {
		return
	}
	reply.Clear()

	for !c.session.Closed() {
		chunk, ok := c.readUntil(c.session.Terminator())
		if !ok {
			return
		}
		c.session.BufferAppend(chunk)
		c.session.OnRecv(&reply)
		reply.Finish()
		if !c.writeReply(&reply) {
			return
		}
		reply.Clear()
	}
}

// readUntil reads from the connection until the accumulated bytes end with
// term, returning everything read (including term). It honours the read
// timeout on every underlying read call, since a slow client could
// otherwise stall a single read indefinitely.
func (c *Connection) readUntil(term []byte) ([]byte, bool) {
	var buf []byte
	last := term[len(term)-1]
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout())); err != nil {
			c.logger.MaybeMinorError(err)
			return nil, false
		}
		chunk, err := c.reader.ReadBytes(last)
		buf = append(buf, chunk...)
		if hasSuffix(buf, term) {
			return buf, true
		}
		if err != nil {
			return nil, false
		}
	}
}

func (c *Connection) writeReply(reply *smtp.Reply) bool {
	if reply.IsEmpty() {
		return true
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout())); err != nil {
		c.logger.MaybeMinorError(err)
		return false
	}
	if _, err := c.conn.Write(reply.Bytes()); err != nil {
		c.logger.MaybeMinorError(err)
		return false
	}
	return true
}
