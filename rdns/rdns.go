// Package rdns resolves the PTR record of a connecting peer's IP address so
// it can be attached to the SMTP daemon's connection log line. Resolution is
// strictly best-effort: a failed or timed-out lookup is not reported to the
// caller as an error, only logged through Info, and an answer without a PTR
// record (such as NXDOMAIN) yields an empty name without a log entry, since
// a missing reverse record must never block or fail mail acceptance.
package rdns

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/ExPixel/mercury/lalog"
)

// DefaultTimeout bounds how long a single PTR lookup may take before it is
// abandoned.
const DefaultTimeout = 2 * time.Second

// DefaultServer is used when the caller does not configure one explicitly.
// It resolves from the host's own /etc/resolv.conf when empty.
const DefaultServer = ""

// Resolver looks up PTR records for peer IP addresses using a fixed
// upstream DNS server, falling back to the host's configured resolver when
// none is given.
type Resolver struct {
	// Server is "host:port" of the resolver to query. Empty uses the
	// system's /etc/resolv.conf.
	Server  string
	Timeout time.Duration

	logger *lalog.Logger
}

// NewResolver returns a Resolver that logs lookup failures (at Info only)
// through logger.
func NewResolver(server string, logger *lalog.Logger) *Resolver {
	timeout := DefaultTimeout
	if logger == nil {
		logger = &lalog.Logger{ComponentName: "rdns"}
	}
	return &Resolver{Server: server, Timeout: timeout, logger: logger}
}

func (r *Resolver) resolveServer() (string, error) {
	if r.Server != "" {
		return r.Server, nil
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return "", err
	}
	if len(cfg.Servers) == 0 {
		return "", fmt.Errorf("rdns: no nameservers configured")
	}
	port := cfg.Port
	if port == "" {
		port = "53"
	}
	return net.JoinHostPort(cfg.Servers[0], port), nil
}

// LookupPTR returns the first PTR target for ip, or "" if the lookup failed
// or returned no answer. Failures are logged through the Resolver's logger
// and never returned to the caller.
func (r *Resolver) LookupPTR(ip net.IP) string {
	server, err := r.resolveServer()
	if err != nil {
		r.logger.Info(ip.String(), err, "reverse DNS resolver unavailable")
		return ""
	}

	reverseName, err := dns.ReverseAddr(ip.String())
	if err != nil {
		r.logger.Info(ip.String(), err, "could not build reverse lookup name")
		return ""
	}

	client := &dns.Client{Timeout: r.Timeout}
	query := new(dns.Msg)
	query.SetQuestion(reverseName, dns.TypePTR)

	resp, _, err := client.Exchange(query, server)
	if err != nil {
		r.logger.Info(ip.String(), err, "reverse DNS lookup failed")
		return ""
	}
	for _, ans := range resp.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			return ptr.Ptr
		}
	}
	return ""
}
