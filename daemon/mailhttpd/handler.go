package mailhttpd

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ExPixel/mercury/eventbus"
	"github.com/ExPixel/mercury/ingest"
	"github.com/ExPixel/mercury/lalog"
)

const defaultListMax = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler exposes the HTTP boundary: mail listing, single-message lookup,
// raw body download, the websocket notification stream, and a Prometheus
// scrape endpoint.
type Handler struct {
	Store  *ingest.Store
	Bus    *eventbus.Bus
	Logger *lalog.Logger

	// SubscriberGauge, if set, is invoked with +1 when a websocket
	// subscriber connects and -1 when it disconnects.
	SubscriberGauge func(delta int)
}

// Routes builds the mux for this handler.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/mail", h.listMail)
	mux.HandleFunc("/mail/", h.mailByID)
	mux.HandleFunc("/mail/listen", h.listen)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Handler) listMail(w http.ResponseWriter, r *http.Request) {
	max := defaultListMax
	if v := r.URL.Query().Get("max"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	var after ingest.MessageID
	if v := r.URL.Query().Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			after = ingest.MessageID(n)
		}
	}

	list, err := h.Store.List(after, max)
	if err != nil {
		h.Logger.Warning(r.RemoteAddr, err, "failed to list mail")
		http.Error(w, "error occurred while fetching list", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// mailByID dispatches "/mail/{id}" and "/mail/{id}/raw" since net/http's
// ServeMux has no path parameters in the version this module targets.
func (h *Handler) mailByID(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/mail/"):]
	idStr, raw := rest, false
	if len(rest) > 4 && rest[len(rest)-4:] == "/raw" {
		idStr, raw = rest[:len(rest)-4], true
	}
	n, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	id := ingest.MessageID(n)

	msg, ok, err := h.Store.Get(id)
	if err != nil {
		h.Logger.Warning(r.RemoteAddr, err, "failed to fetch mail %d", id)
		http.Error(w, "error occurred while fetching mail", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	if !raw {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msg)
		return
	}

	h.serveRawBody(w, r, msg)
}

func (h *Handler) serveRawBody(w http.ResponseWriter, r *http.Request, msg ingest.StoredMessage) {
	f, err := os.Open(msg.BodyPath)
	if err != nil {
		http.Error(w, "mail file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		h.Logger.Warning(r.RemoteAddr, err, "failed to decompress mail %d", msg.ID)
		http.Error(w, "error occurred while reading mail", http.StatusInternalServerError)
		return
	}
	defer gz.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"mail.txt\"")
	if _, err := io.Copy(w, gz); err != nil {
		h.Logger.MaybeMinorError(err)
	}
}

func (h *Handler) listen(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.MaybeMinorError(err)
		return
	}
	go serveSubscriber(conn, h.Bus, h.Logger, h.SubscriberGauge)
}
