// Command mercurysmtpd runs the mail capture server: an SMTP receiver that
// accepts any message without validating recipients, and an HTTP boundary
// that lets a developer browse, download, and watch for what was received.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ExPixel/mercury/config"
	"github.com/ExPixel/mercury/daemon/mailhttpd"
	"github.com/ExPixel/mercury/daemon/smtpd"
	"github.com/ExPixel/mercury/eventbus"
	"github.com/ExPixel/mercury/ingest"
	"github.com/ExPixel/mercury/lalog"
	"github.com/ExPixel/mercury/metrics"
	"github.com/ExPixel/mercury/rdns"
)

var logger = &lalog.Logger{ComponentName: "main", ComponentID: []lalog.LoggerIDField{{Key: "PID", Value: os.Getpid()}}}

// autoRestart keeps fun running, restarting it with a growing back-off
// whenever it returns an error. A nil return is treated as an intentional
// shutdown and is not restarted.
func autoRestart(logActorName string, fun func() error) {
	delaySec := 0
	for {
		err := fun()
		if err == nil {
			logger.Info(logActorName, nil, "stopped without error")
			return
		}
		logger.Warning(logActorName, err, "restarting in %d seconds", delaySec)
		time.Sleep(time.Duration(delaySec) * time.Second)
		if delaySec < 60 {
			delaySec += 10
		}
	}
}

func main() {
	configPath := flag.String("config", "", "path to configuration file (JSON, or YAML with a .yaml/.yml extension)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			logger.Abort("main", err, "failed to load configuration from %s", *configPath)
		}
		cfg = loaded
	}

	metricsReg := metrics.New()
	if err := metricsReg.RegisterGlobally(); err != nil {
		logger.Abort("main", err, "failed to register prometheus metrics")
	}

	storeLogger := &lalog.Logger{ComponentName: "store"}
	store, err := ingest.OpenStore(cfg.Storage.SQLitePath, storeLogger)
	if err != nil {
		logger.Abort("main", err, "failed to open storage at %s", cfg.Storage.SQLitePath)
	}
	defer store.Close()

	bus := eventbus.NewBus()

	var archiver *ingest.Archiver
	if cfg.S3Enabled() {
		archiveLogger := &lalog.Logger{ComponentName: "archive"}
		archiver, err = ingest.NewArchiver(cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix, archiveLogger)
		if err != nil {
			logger.Abort("main", err, "failed to initialise S3 archiver")
		}
	}

	sinkLogger := &lalog.Logger{ComponentName: "sink"}
	sink, err := ingest.NewSink(store, bus, cfg.Storage.MailDirectory, archiver, sinkLogger)
	if err != nil {
		logger.Abort("main", err, "failed to start ingest sink")
	}
	sink.MessagesIngested = metricsReg.MessagesIngested
	sink.IngestErrors = metricsReg.IngestErrors
	defer sink.Close()

	resolver := rdns.NewResolver(rdns.DefaultServer, &lalog.Logger{ComponentName: "rdns"})

	smtpDaemon := &smtpd.Daemon{
		Address:        cfg.SMTP.Address,
		Port:           cfg.SMTP.Port,
		MaxConnections: cfg.SMTP.MaxConnections,
		ReadTimeout:    cfg.SMTP.ReadTimeout,
		WriteTimeout:   cfg.SMTP.WriteTimeout,
		OnNewMail:      sink.Submit,
		Resolver:       resolver,
	}
	if err := smtpDaemon.Initialise(); err != nil {
		logger.Abort("main", err, "failed to initialise smtp daemon")
	}
	smtpDaemon.SetConnectionGauge(metricsReg.ConnectionGauge())

	httpDaemon := &mailhttpd.Daemon{
		Address: cfg.HTTP.Address,
		Port:    cfg.HTTP.Port,
		Store:   store,
		Bus:     bus,
	}
	if err := httpDaemon.Initialise(); err != nil {
		logger.Abort("main", err, "failed to initialise http daemon")
	}
	httpDaemon.SubscriberGauge = func(delta int) {
		metricsReg.ActiveSubscribers.Add(float64(delta))
	}

	go autoRestart("smtpd", smtpDaemon.StartAndBlock)
	go autoRestart("mailhttpd", httpDaemon.StartAndBlock)

	logger.Info("main", nil, "mercurysmtpd listening: smtp on %s:%d, http on %s:%d",
		cfg.SMTP.Address, cfg.SMTP.Port, cfg.HTTP.Address, cfg.HTTP.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "mercurysmtpd: shutting down")
	smtpDaemon.Stop()
	httpDaemon.Stop()
}
