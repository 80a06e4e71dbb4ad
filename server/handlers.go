package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/chat-replay/replay"
	"github.com/onnwee/chat-replay/telemetry"
)

// Handlers carries the dependencies of the HTTP endpoints. db is nil when
// the archive is disabled; health checks then skip it.
type Handlers struct {
	session *replay.Session
	db      *sql.DB
}

func NewHandlers(session *replay.Session, db *sql.DB) *Handlers {
	return &Handlers{session: session, db: db}
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests. The service is ready
// when its session exists and, if an archive is configured, the database
// answers a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.session == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready", "failed_check": "session"})
		return
	}
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "not_ready", "failed_check": "database", "error": err.Error(),
			})
			return
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleTranscript renders every message in [from, to].
// GET /transcript?from=RFC3339&to=RFC3339
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	msgs, err := h.session.Transcript(r.Context(), from, to)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("transcript failed", slog.Any("err", err))
		http.Error(w, "transcript unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// HandleWindow renders the chat visible at one instant. The instant comes
// from ?at=RFC3339, ?position_ms=N (relative to the VOD start), or, with
// neither, the session's live player position. ?next=1 appends the single
// upcoming message.
func (h *Handlers) HandleWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	includeNext := r.URL.Query().Get("next") == "1"

	var msgs []replay.RenderedMessage
	var err error
	switch {
	case r.URL.Query().Get("at") != "":
		var at time.Time
		if at, err = parseTimeParam(r, "at"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msgs, err = h.session.WindowAt(r.Context(), at, includeNext)
	case r.URL.Query().Get("position_ms") != "":
		var ms int64
		if ms, err = strconv.ParseInt(r.URL.Query().Get("position_ms"), 10, 64); err != nil || ms < 0 {
			http.Error(w, "invalid position_ms", http.StatusBadRequest)
			return
		}
		msgs, err = h.session.WindowAtOffset(r.Context(), ms, includeNext)
	default:
		msgs, err = h.session.WindowNow(r.Context(), includeNext)
		if errors.Is(err, replay.ErrNoPosition) {
			http.Error(w, "no playback position; pass at= or position_ms=", http.StatusConflict)
			return
		}
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("window failed", slog.Any("err", err))
		http.Error(w, "window unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// HandlePrefetch warms the cache for an upcoming range, e.g. ahead of a
// seek. POST /prefetch?from=RFC3339&to=RFC3339
func (h *Handlers) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.session.Prefetch(r.Context(), from, to); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("prefetch failed", slog.Any("err", err))
		http.Error(w, "prefetch failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, errors.New("missing " + name + " parameter")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New("invalid " + name + " (want RFC3339)")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}
