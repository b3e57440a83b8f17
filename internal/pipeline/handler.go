package pipeline

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"videofetch/internal/media"
	"videofetch/internal/status"
)

// Handler exposes the pipeline HTTP endpoints.
type Handler struct {
	svc *Service
	reg *status.Registry
	log *slog.Logger

	keepAliveInterval time.Duration
	maxKeepAlives     int
}

// NewHandler returns a Handler over the given Service and status Registry.
func NewHandler(svc *Service, reg *status.Registry, log *slog.Logger, keepAliveInterval time.Duration, maxKeepAlives int) *Handler {
	return &Handler{
		svc:               svc,
		reg:               reg,
		log:               log,
		keepAliveInterval: keepAliveInterval,
		maxKeepAlives:     maxKeepAlives,
	}
}

// errorBody is the wire shape of every failure response.
type errorBody struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, errorBody{OK: false, Reason: reason})
}

// Download handles GET /download?url=&format=&quality=&session=.
// On success the full payload is returned with content type, the dual-form
// Content-Disposition header and the session id that streamed its progress.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	output := media.OutputVideo
	if q.Get("format") == "mp3" || q.Get("format") == "audio" {
		output = media.OutputAudio
	}

	req := Request{
		SourceURL: rawURL,
		Output:    output,
		Quality:   q.Get("quality"),
		SessionID: q.Get("session"),
	}

	res, err := h.svc.Handle(r.Context(), req)
	if err != nil {
		writeError(w, HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(res.Filename))
	w.Header().Set("X-Session-Id", res.SessionID)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// Status handles GET /status?session=: a stream of individually flushed
// JSON lines. The connection-established marker comes first, then the
// session's replay buffer, then live events. Idle periods are bridged with
// keep-alive markers until either a terminal event arrives or the keep-alive
// budget runs out. A client write failure just ends this stream's loop; the
// pipeline worker is unaffected.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session parameter")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	write := func(ev status.Event) bool {
		if err := enc.Encode(ev); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write(status.Event{Status: "connected"}) {
		return
	}

	sub := h.reg.Subscribe(sessionID)
	defer h.reg.Unsubscribe(sessionID, sub)

	for _, ev := range sub.Replay() {
		if !write(ev) {
			return
		}
		if ev.Terminal() {
			return
		}
	}

	keepAlives := 0
	for keepAlives < h.maxKeepAlives {
		select {
		case ev, open := <-sub.Live():
			if !open {
				// Session cleaned up; the terminal event was
				// already delivered via replay or live.
				return
			}
			keepAlives = 0
			if !write(ev) {
				return
			}
			if ev.Terminal() {
				return
			}
		case <-time.After(h.keepAliveInterval):
			keepAlives++
			if !write(status.Event{Status: "keepalive"}) {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// Formats handles GET /formats?url=: the ordered list of selectable
// formats with human-readable labels.
func (h *Handler) Formats(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	options, err := h.svc.ListFormats(r.Context(), rawURL)
	if err != nil {
		writeError(w, HTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		OK      bool           `json:"ok"`
		Formats []FormatOption `json:"formats"`
	}{OK: true, Formats: options})
}

// InvalidateCache handles POST /cache/invalidate?url=: best-effort removal
// of every cached variant for the URL. Always reports success.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	removed, err := h.svc.InvalidateCache(rawURL)
	if err != nil {
		h.log.Warn("cache invalidation incomplete",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, struct {
		OK      bool `json:"ok"`
		Removed int  `json:"removed"`
	}{OK: true, Removed: removed})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
	}{OK: true})
}
