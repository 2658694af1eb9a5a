// Package mailhttpd exposes the captured mailbox over HTTP: a JSON listing
// and single-message endpoints, a raw gzip-decompressed body download, a
// websocket stream of new-mail notifications, and a Prometheus scrape
// endpoint.
package mailhttpd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ExPixel/mercury/eventbus"
	"github.com/ExPixel/mercury/ingest"
	"github.com/ExPixel/mercury/lalog"
)

// Daemon wraps Handler with an http.Server and the Initialise/StartAndBlock/
// Stop lifecycle shared by this module's other daemons.
type Daemon struct {
	Address string `json:"Address"`
	Port    int    `json:"Port"`

	Store *ingest.Store  `json:"-"`
	Bus   *eventbus.Bus  `json:"-"`
	Logger *lalog.Logger `json:"-"`

	// SubscriberGauge, if set, is handed to every Handler this daemon
	// constructs; see Handler.SubscriberGauge.
	SubscriberGauge func(delta int) `json:"-"`

	server *http.Server
}

// Initialise validates configuration and prepares the logger.
func (d *Daemon) Initialise() error {
	if d.Address == "" {
		return fmt.Errorf("mailhttpd: listen address must not be empty")
	}
	if d.Port < 1 {
		return fmt.Errorf("mailhttpd: listen port must be greater than 0")
	}
	if d.Store == nil || d.Bus == nil {
		return fmt.Errorf("mailhttpd: Store and Bus must be set before Initialise")
	}
	d.Logger = &lalog.Logger{ComponentName: "mailhttpd", ComponentID: []lalog.LoggerIDField{
		{Key: "addr", Value: fmt.Sprintf("%s:%d", d.Address, d.Port)},
	}}
	return nil
}

// StartAndBlock serves HTTP until Stop is called.
func (d *Daemon) StartAndBlock() error {
	h := &Handler{Store: d.Store, Bus: d.Bus, Logger: d.Logger, SubscriberGauge: d.SubscriberGauge}
	d.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.Address, d.Port),
		Handler: h.Routes(),
	}
	d.Logger.Info("StartAndBlock", nil, "listening for HTTP connections")
	err := d.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (d *Daemon) Stop() {
	if d.server != nil {
		if err := d.server.Shutdown(context.Background()); err != nil {
			d.Logger.Warning("Stop", err, "failed to shut down HTTP server")
		}
	}
}
