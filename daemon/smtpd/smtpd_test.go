package smtpd

import (
	"net"
	"testing"
)

// freePort asks the OS for an ephemeral port and immediately releases it.
// There is an inherent TOCTOU race between the close below and Daemon
// binding the same port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestSMTPDEndToEnd(t *testing.T) {
	d := &Daemon{Address: "127.0.0.1", Port: freePort(t)}
	if err := d.Initialise(); err != nil {
		t.Fatal(err)
	}
	TestSMTPD(d, t)
}
