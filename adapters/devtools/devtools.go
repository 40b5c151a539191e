// Package devtools exposes the state of a query.Client over HTTP for
// debugging. It is strictly read-only: nothing served here starts a fetch
// or changes a query.
//
//	GET /queries       all live queries, most recently fetched first
//	GET /queries/{id}  one query
//	GET /events        registry events as a server-sent event stream
package devtools

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/codewandler/query-go/core/query"
	"github.com/codewandler/query-go/internal/codec"
)

const defaultEventBuffer = 64

type options struct {
	log         *slog.Logger
	eventBuffer int
}

type Option func(*options)

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithEventBuffer sets how many events a slow /events client may lag behind
// before further events are dropped for it.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

type handler struct {
	c       *query.Client
	log     *slog.Logger
	buffer  int
	pretty  codec.Codec
	compact codec.Codec
}

// NewHandler returns the devtools handler for c. Mount it with
// http.StripPrefix when serving it below a path.
func NewHandler(c *query.Client, opts ...Option) http.Handler {
	o := options{
		log:         slog.New(slog.DiscardHandler),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	h := &handler{
		c:       c,
		log:     o.log.With(slog.String("component", "devtools")),
		buffer:  o.eventBuffer,
		pretty:  codec.JSONCodec{},
		compact: codec.CompactJSONCodec{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /queries", h.handleList)
	mux.HandleFunc("GET /queries/{id}", h.handleGet)
	mux.HandleFunc("GET /events", h.handleEvents)
	return mux
}

func (h *handler) handleList(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.c.Queries())
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.c.Query(r.PathValue("id"))
	if !ok {
		http.Error(w, "query not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, s)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	b, err := h.pretty.Marshal(v)
	if err != nil {
		http.Error(w, "encode: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan query.Event, h.buffer)
	unsubscribe, err := h.c.Subscribe(func(ev query.Event) {
		select {
		case events <- ev:
		default:
			h.log.Warn("event dropped for slow client", slog.String("query", ev.Query.Hash))
		}
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := h.log.With(slog.String("remote", r.RemoteAddr))
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			b, err := h.compact.Marshal(ev)
			if err != nil {
				log.Error("failed to encode event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Render writes a text listing of snaps: for each query its key, followed
// by its state as JSON.
func Render(w io.Writer, snaps []query.Snapshot) error {
	c := codec.JSONCodec{}
	for _, s := range snaps {
		b, err := c.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", s.Key, b); err != nil {
			return err
		}
	}
	return nil
}
