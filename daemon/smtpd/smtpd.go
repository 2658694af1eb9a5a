package smtpd

import (
	"fmt"
	"net"
	netSMTP "net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/ExPixel/mercury/lalog"
	"github.com/ExPixel/mercury/rdns"
	"github.com/ExPixel/mercury/testingstub"
)

// Daemon listens for SMTP connections and hands each one to its own
// Connection/Session pair. It never inspects or rewrites the captured
// mail; everything past acceptance is handed to OnNewMail.
type Daemon struct {
	Address        string        `json:"Address"`        // network address to listen on, e.g. 0.0.0.0
	Port           int           `json:"Port"`            // TCP port number to listen on
	MaxConnections int           `json:"MaxConnections"`  // 0 means unlimited
	ReadTimeout    time.Duration `json:"-"`
	WriteTimeout   time.Duration `json:"-"`

	// OnNewMail receives one RawMessage per completed DATA transaction
	// across all connections accepted by this daemon.
	OnNewMail OnNewMail `json:"-"`

	// Resolver, if set, is used to look up the connecting peer's PTR
	// record for the connection's opening log line. A nil Resolver
	// skips reverse DNS entirely.
	Resolver *rdns.Resolver `json:"-"`

	listener net.Listener
	logger   *lalog.Logger

	// activeConnections is exported to the caller's Prometheus registry as
	// a gauge; it is bumped directly rather than through a channel since
	// goroutine-per-connection handling makes a single atomic counter
	// sufficient.
	activeConnections func(delta int)
}

// Initialise validates configuration and prepares the logger. It must be
// called before StartAndBlock.
func (d *Daemon) Initialise() error {
	if d.Address == "" {
		return fmt.Errorf("smtpd: listen address must not be empty")
	}
	if d.Port < 1 {
		return fmt.Errorf("smtpd: listen port must be greater than 0")
	}
	d.logger = &lalog.Logger{ComponentName: "smtpd", ComponentID: []lalog.LoggerIDField{
		{Key: "addr", Value: fmt.Sprintf("%s:%d", d.Address, d.Port)},
	}}
	if d.activeConnections == nil {
		d.activeConnections = func(int) {}
	}
	return nil
}

// SetConnectionGauge installs a callback invoked with +1 on accept and -1
// on disconnect, used by the HTTP boundary to expose a live connection
// count via Prometheus.
func (d *Daemon) SetConnectionGauge(fn func(delta int)) {
	d.activeConnections = fn
}

// StartAndBlock listens and serves connections until Stop is called or the
// listener otherwise fails. When MaxConnections is positive the listener is
// wrapped with netutil.LimitListener so that accept itself blocks once the
// cap is reached, rather than admitting connections only to starve them.
func (d *Daemon) StartAndBlock() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", d.Address, d.Port))
	if err != nil {
		return fmt.Errorf("smtpd: failed to listen on %s:%d: %w", d.Address, d.Port, err)
	}
	if d.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, d.MaxConnections)
	}
	d.listener = listener
	defer listener.Close()

	d.logger.Info("StartAndBlock", nil, "listening for SMTP connections")
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "closed") {
				return nil
			}
			return fmt.Errorf("smtpd: accept failed: %w", err)
		}
		go d.handle(conn)
	}
}

func (d *Daemon) handle(conn net.Conn) {
	d.activeConnections(1)
	defer d.activeConnections(-1)

	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warning(remote, nil, "recovered from panic in connection handler: %v", r)
		}
	}()

	if d.Resolver != nil {
		if host, _, err := net.SplitHostPort(remote); err == nil {
			if ip := net.ParseIP(host); ip != nil {
				if name := d.Resolver.LookupPTR(ip); name != "" {
					d.logger.Info(remote, nil, "accepted connection from %s", name)
				}
			}
		}
	}

	c := NewConnection(conn, ConnConfig{ReadTimeout: d.ReadTimeout, WriteTimeout: d.WriteTimeout}, d.OnNewMail, d.logger)
	c.Run()
}

// Stop closes the listener, which causes StartAndBlock's accept loop to
// return. Already-accepted connections are left to finish on their own.
func (d *Daemon) Stop() {
	if d.listener != nil {
		if err := d.listener.Close(); err != nil {
			d.logger.Warning("Stop", err, "failed to close listener")
		}
	}
}

// TestSMTPD drives a live Daemon end to end over a real TCP connection: it
// starts the daemon, delivers one message to two recipients with net/smtp, and
// checks that everything handed to net/smtp's SendMail successfully arrives
// at OnNewMail with the envelope intact. It is kept here, rather than in a
// _test.go file, so that both this package's own tests and a future
// whole-binary integration test (cmd/mercurysmtpd) can run it against a
// fully wired Daemon without pulling the "testing" package's global flag
// registration into a production build - see testingstub.T.
func TestSMTPD(d *Daemon, t testingstub.T) {
	var mu sync.Mutex
	var captured []RawMessage
	d.OnNewMail = func(msg RawMessage) {
		mu.Lock()
		captured = append(captured, msg)
		mu.Unlock()
	}

	go func() {
		if err := d.StartAndBlock(); err != nil {
			t.Fatal(err)
		}
	}()
	// The listener goroutine above needs a moment to bind before the first
	// dial; StartAndBlock itself does not signal readiness.
	time.Sleep(200 * time.Millisecond)
	defer d.Stop()

	addr := net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
	testMessage := "Content-type: text/plain; charset=utf-8\r\nFrom: sender@example.com\r\nTo: recipient@example.com\r\nSubject: test subject\r\n\r\ntest body"
	if err := netSMTP.SendMail(addr, nil, "sender@example.com", []string{"recipient@example.com", "second@example.com"}, []byte(testMessage)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(captured)
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("OnNewMail was not invoked within the deadline")
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	msg := captured[0]
	if msg.ReversePath != "sender@example.com" {
		t.Fatalf("unexpected reverse path %q", msg.ReversePath)
	}
	if len(msg.ForwardPath) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(msg.ForwardPath))
	}
	if len(msg.Data) == 0 {
		t.Fatal("captured message body was empty")
	}
}
