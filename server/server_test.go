package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-replay/logcache"
	"github.com/onnwee/chat-replay/replay"
)

var testDay = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type fixedSource struct{ raw string }

func (f *fixedSource) FetchDay(ctx context.Context, channel string, day time.Time) (string, error) {
	return f.raw, nil
}

func (f *fixedSource) FetchRange(ctx context.Context, channel string, from, to time.Time) (string, error) {
	return f.raw, nil
}

func testMux(t *testing.T) http.Handler {
	t.Helper()
	ts := func(sec int) int64 { return testDay.Add(18*time.Hour + time.Duration(sec)*time.Second).UnixMilli() }
	raw := strings.Join([]string{
		fmt.Sprintf("@id=m1;tmi-sent-ts=%d :alice!alice@a PRIVMSG #chan :hello", ts(0)),
		fmt.Sprintf("@id=m2;tmi-sent-ts=%d :bob!bob@b PRIVMSG #chan :world", ts(10)),
	}, "\n")
	store := logcache.New(&fixedSource{raw: raw},
		logcache.WithClock(func() time.Time { return testDay.AddDate(0, 0, 2) }))
	session, err := replay.NewSession(replay.Options{
		Channel:  "chan",
		Store:    store,
		VODStart: testDay.Add(18 * time.Hour),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return NewMux(session, nil)
}

func decodeMessages(t *testing.T, rec *httptest.ResponseRecorder) []replay.RenderedMessage {
	t.Helper()
	var body struct {
		Messages []replay.RenderedMessage `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Messages
}

func TestHealthz(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation id header")
	}
}

func TestReadyzWithoutDB(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	mux := testMux(t)
	from := testDay.Add(17 * time.Hour).Format(time.RFC3339)
	to := testDay.Add(19 * time.Hour).Format(time.RFC3339)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transcript?from="+from+"&to="+to, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript = %d: %s", rec.Code, rec.Body.String())
	}
	msgs := decodeMessages(t, rec)
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestTranscriptRejectsBadParams(t *testing.T) {
	mux := testMux(t)
	for _, target := range []string{
		"/transcript",
		"/transcript?from=notatime&to=2024-03-10T19:00:00Z",
		"/transcript?from=2024-03-10T19:00:00Z&to=2024-03-10T18:00:00Z",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, rec.Code)
		}
	}
}

func TestWindowEndpoint(t *testing.T) {
	mux := testMux(t)
	at := testDay.Add(18*time.Hour + 5*time.Second).Format(time.RFC3339)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/window?at="+at, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("window = %d: %s", rec.Code, rec.Body.String())
	}
	msgs := decodeMessages(t, rec)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestWindowByOffset(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/window?position_ms=11000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("window = %d: %s", rec.Code, rec.Body.String())
	}
	msgs := decodeMessages(t, rec)
	if len(msgs) != 2 || msgs[1].ID != "m2" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestWindowWithoutPosition(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/window", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("window without position = %d, want 409", rec.Code)
	}
}

func TestPrefetchEndpoint(t *testing.T) {
	mux := testMux(t)
	from := testDay.Add(18 * time.Hour).Format(time.RFC3339)
	to := testDay.Add(18*time.Hour + 10*time.Minute).Format(time.RFC3339)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prefetch?from="+from+"&to="+to, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("prefetch = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prefetch?from="+from+"&to="+to, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET prefetch = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux := testMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/transcript", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing CORS header in permissive mode")
	}
}
