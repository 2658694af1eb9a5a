package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ExPixel/mercury/daemon/smtpd"
	"github.com/ExPixel/mercury/eventbus"
	"github.com/ExPixel/mercury/imf"
	"github.com/ExPixel/mercury/lalog"
)

// queueDepth bounds how many captured messages may be waiting for the
// single ingest worker before a connection's OnNewMail callback blocks.
const queueDepth = 64

// Sink is the single-writer ingest worker: every smtpd.RawMessage handed to
// it by any connection goroutine is processed in submission order by one
// goroutine, so header parsing, body compression, and the storage insert
// never run concurrently with each other.
type Sink struct {
	queue    chan smtpd.RawMessage
	store    *Store
	bus      *eventbus.Bus
	bodyDir  string
	archiver *Archiver
	logger   *lalog.Logger
	done     chan struct{}

	// MessagesIngested and IngestErrors are optional Prometheus counters,
	// wired in by the caller after construction (see metrics.Metrics).
	MessagesIngested prometheus.Counter
	IngestErrors     prometheus.Counter
}

// NewSink starts the worker goroutine. bodyDir is created if it does not
// already exist. archiver may be nil, in which case bodies are never
// mirrored off-host.
func NewSink(store *Store, bus *eventbus.Bus, bodyDir string, archiver *Archiver, logger *lalog.Logger) (*Sink, error) {
	if err := os.MkdirAll(bodyDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: creating body directory: %w", err)
	}
	if logger == nil {
		logger = &lalog.Logger{ComponentName: "ingest"}
	}
	s := &Sink{
		queue:    make(chan smtpd.RawMessage, queueDepth),
		store:    store,
		bus:      bus,
		bodyDir:  bodyDir,
		archiver: archiver,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// Submit is the smtpd.OnNewMail callback: it blocks only long enough to
// enqueue the message, applying backpressure to the connection goroutine
// once queueDepth messages are already waiting.
func (s *Sink) Submit(msg smtpd.RawMessage) {
	s.queue <- msg
}

// Close stops accepting new work once the queue drains.
func (s *Sink) Close() {
	close(s.queue)
	<-s.done
}

func (s *Sink) loop() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.process(msg); err != nil {
			s.logger.Warning(msg.ReversePath, err, "failed to ingest message")
			if s.IngestErrors != nil {
				s.IngestErrors.Inc()
			}
			continue
		}
		if s.MessagesIngested != nil {
			s.MessagesIngested.Inc()
		}
	}
}

func (s *Sink) process(msg smtpd.RawMessage) error {
	headerEnd := findHeaderBlockEnd(msg.Data)
	hm, err := imf.ParseHeaderBlock(msg.Data[:headerEnd])
	if err != nil {
		return fmt.Errorf("parsing header block: %w", err)
	}

	headers := make(map[string]string, hm.Len())
	for _, name := range hm.Names() {
		v, _ := hm.Get(name)
		headers[name.String()] = v
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}
	forwardPathJSON, err := json.Marshal(msg.ForwardPath)
	if err != nil {
		return fmt.Errorf("encoding forward path: %w", err)
	}

	createdAt := time.Now().UTC()
	id, err := s.store.Insert(msg.ReversePath, string(forwardPathJSON), string(headersJSON), "", createdAt)
	if err != nil {
		return fmt.Errorf("inserting mail record: %w", err)
	}

	bodyPath := filepath.Join(s.bodyDir, fmt.Sprintf("%d.mail.gz", id))
	compressed, err := gzipBody(msg.Data)
	if err != nil {
		return fmt.Errorf("compressing body: %w", err)
	}
	if err := os.WriteFile(bodyPath, compressed, 0o644); err != nil {
		return fmt.Errorf("writing body file: %w", err)
	}
	if err := s.store.UpdateBodyPath(id, bodyPath); err != nil {
		return fmt.Errorf("recording body path: %w", err)
	}

	if s.archiver != nil {
		s.archiver.Upload(id, bytes.NewReader(compressed))
	}

	s.bus.Publish(int64(id))
	return nil
}

func gzipBody(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// findHeaderBlockEnd returns the offset just past the CRLFCRLF (or bare
// LFLF) that separates headers from body, or len(data) if none is found.
func findHeaderBlockEnd(data []byte) int {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return len(data)
}
