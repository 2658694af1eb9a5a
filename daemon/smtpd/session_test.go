package smtpd

import (
	"testing"

	"github.com/ExPixel/mercury/smtp"
)

func runLine(t *testing.T, s *Session, line string) *smtp.Reply {
	t.Helper()
	s.BufferAppend([]byte(line))
	var reply smtp.Reply
	s.OnRecv(&reply)
	return &reply
}

func TestSessionGreetsOnOpen(t *testing.T) {
	s := NewSession(nil)
	var reply smtp.Reply
	s.OnRecv(&reply)
	reply.Finish()
	if got := string(reply.Bytes()); got != "220 service ready\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSessionFullTransaction(t *testing.T) {
	var captured RawMessage
	var gotMail bool
	s := NewSession(func(m RawMessage) {
		captured = m
		gotMail = true
	})

	// Skip past the greeting.
	var greet smtp.Reply
	s.OnRecv(&greet)

	runLine(t, s, "EHLO client.example\r\n")
	runLine(t, s, "MAIL FROM:<a@b.test>\r\n")
	runLine(t, s, "RCPT TO:<c@d.test>\r\n")
	dataReply := runLine(t, s, "DATA\r\n")
	dataReply.Finish()
	if string(dataReply.Bytes()) != "354 start mail input\r\n" {
		t.Fatalf("unexpected DATA reply: %q", dataReply.Bytes())
	}

	s.BufferAppend([]byte("Subject: hi\r\n\r\nbody\r\n.\r\n"))
	var final smtp.Reply
	s.OnRecv(&final)
	final.Finish()

	if !gotMail {
		t.Fatalf("expected OnNewMail to fire")
	}
	if captured.ReversePath != "a@b.test" {
		t.Fatalf("got reverse path %q", captured.ReversePath)
	}
	if len(captured.ForwardPath) != 1 || captured.ForwardPath[0] != "c@d.test" {
		t.Fatalf("got forward path %+v", captured.ForwardPath)
	}
	if string(captured.Data) != "Subject: hi\r\n\r\nbody" {
		t.Fatalf("got data %q", captured.Data)
	}
}

func TestSessionQuitClosesSession(t *testing.T) {
	s := NewSession(nil)
	var greet smtp.Reply
	s.OnRecv(&greet)

	reply := runLine(t, s, "QUIT\r\n")
	reply.Finish()
	if !s.Closed() {
		t.Fatalf("expected session to be closed after QUIT")
	}
	if string(reply.Bytes()) != "221 service closing transmission channel\r\n" {
		t.Fatalf("got %q", reply.Bytes())
	}
}

func TestSessionUnknownCommandDoesNotAdvanceMode(t *testing.T) {
	s := NewSession(nil)
	var greet smtp.Reply
	s.OnRecv(&greet)

	reply := runLine(t, s, "BOGUS\r\n")
	reply.Finish()
	if s.mode != ModeLine {
		t.Fatalf("expected session to remain in line mode")
	}
	if string(reply.Bytes()) != "500 syntax error, command unrecognized\r\n" {
		t.Fatalf("got %q", reply.Bytes())
	}
}
