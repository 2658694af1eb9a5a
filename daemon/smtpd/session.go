// Package smtpd implements the per-connection SMTP session state machine
// (session.go), the connection I/O driver (connection.go), and the
// listener/supervisor that ties them to a TCP socket (smtpd.go).
package smtpd

import (
	"github.com/ExPixel/mercury/smtp"
)

// Mode is the session's current framing state.
type Mode int

const (
	// ModeOpen is the state immediately after accept, before any bytes have
	// been exchanged.
	ModeOpen Mode = iota
	// ModeLine awaits a CRLF-terminated command line.
	ModeLine
	// ModeData awaits a "\r\n.\r\n"-terminated DATA payload.
	ModeData
)

var (
	lineTerminator = []byte("\r\n")
	dataTerminator = []byte("\r\n.\r\n")
)

// RawMessage is the envelope and body captured from one completed DATA
// transaction, handed off to the ingest sink.
type RawMessage struct {
	ReversePath string
	ForwardPath []string
	Data        []byte
}

// OnNewMail is invoked once per completed DATA transaction. Implementations
// must not block indefinitely: per §4.7, a slow ingest sink delays the SMTP
// reply to the final "." by design, but the session itself assumes the
// callback eventually returns.
type OnNewMail func(RawMessage)

// Session drives the OPEN -> LINE -> DATA transitions of one SMTP
// connection. It owns its two buffers exclusively; the connection driver
// never touches them directly.
type Session struct {
	mode Mode

	lineBuffer []byte
	dataBuffer []byte

	reversePath string
	forwardPath []string

	closed bool

	onNewMail OnNewMail
}

// NewSession returns a Session in the Open state.
func NewSession(onNewMail OnNewMail) *Session {
	return &Session{
		mode:       ModeOpen,
		lineBuffer: make([]byte, 0, 64),
		onNewMail:  onNewMail,
	}
}

// OnRecv processes whatever the current buffer holds (or, in Open state,
// nothing at all) and writes the resulting reply. It is the sole entry
// point the connection driver calls.
func (s *Session) OnRecv(reply *smtp.Reply) {
	switch s.mode {
	case ModeOpen:
		s.onOpen(reply)
	case ModeLine:
		s.onLine(reply)
	case ModeData:
		s.onData(reply)
	}
}

func (s *Session) onOpen(reply *smtp.Reply) {
	reply.SetCode(smtp.CodeServiceReady)
	s.mode = ModeLine
}

func (s *Session) onLine(reply *smtp.Reply) {
	cmd, code, ok := smtp.ParseCommand(s.lineBuffer)
	if !ok {
		reply.SetCode(code)
	} else {
		s.handleCommand(reply, cmd)
	}
	s.lineBuffer = s.lineBuffer[:0]
}

func (s *Session) onData(reply *smtp.Reply) {
	data := s.dataBuffer
	s.dataBuffer = nil

	// Per the connection driver's DATA terminator detection, the buffer's
	// trailing "\r\n.\r\n" is stripped here; dots are otherwise left exactly
	// as received (no dot-unstuffing).
	if hasSuffix(data, dataTerminator) {
		data = data[:len(data)-len(dataTerminator)]
	}

	msg := RawMessage{
		ReversePath: s.reversePath,
		ForwardPath: s.forwardPath,
		Data:        data,
	}
	s.reversePath = ""
	s.forwardPath = nil

	if s.onNewMail != nil {
		s.onNewMail(msg)
	}

	s.mode = ModeLine
	reply.SetCode(smtp.CodeMailActionOkay)
}

func (s *Session) handleCommand(reply *smtp.Reply, cmd smtp.Command) {
	switch cmd.Kind {
	case smtp.CmdEHLO:
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdHELO:
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdMAIL:
		s.forwardPath = nil
		s.dataBuffer = nil
		s.reversePath = cmd.ReversePath
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdRCPT:
		s.forwardPath = append(s.forwardPath, cmd.ForwardPath)
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdDATA:
		s.mode = ModeData
		reply.SetCode(smtp.CodeStartMailInput)
	case smtp.CmdRSET:
		s.reversePath = ""
		s.forwardPath = nil
		s.dataBuffer = nil
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdNOOP:
		reply.SetCode(smtp.CodeMailActionOkay)
	case smtp.CmdVRFY, smtp.CmdEXPN, smtp.CmdHELP:
		reply.SetCode(smtp.CodeCommandNotImplemented)
	case smtp.CmdQUIT:
		s.closed = true
		reply.SetCode(smtp.CodeServiceClosing)
	}
}

// Terminator returns the byte sequence the connection driver must read up
// to. It is a programmer error to call this in Open state.
func (s *Session) Terminator() []byte {
	switch s.mode {
	case ModeLine:
		return lineTerminator
	case ModeData:
		return dataTerminator
	default:
		panic("smtpd: Terminator called in Open state")
	}
}

// BufferAppend appends p to whichever buffer is active. It is a programmer
// error to call this in Open state.
func (s *Session) BufferAppend(p []byte) {
	switch s.mode {
	case ModeLine:
		s.lineBuffer = append(s.lineBuffer, p...)
	case ModeData:
		s.dataBuffer = append(s.dataBuffer, p...)
	default:
		panic("smtpd: BufferAppend called in Open state")
	}
}

// BufferHasTerminator reports whether the active buffer currently ends with
// Terminator().
func (s *Session) BufferHasTerminator() bool {
	switch s.mode {
	case ModeLine:
		return hasSuffix(s.lineBuffer, lineTerminator)
	case ModeData:
		return hasSuffix(s.dataBuffer, dataTerminator)
	default:
		return false
	}
}

// Closed reports whether the session has reached its terminal state.
func (s *Session) Closed() bool { return s.closed }

// MarkClosed forces the session closed, used by the connection driver when
// a fatal transport error aborts the connection.
func (s *Session) MarkClosed() { s.closed = true }

func hasSuffix(b, suffix []byte) bool {
	if len(b) < len(suffix) {
		return false
	}
	tail := b[len(b)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}
