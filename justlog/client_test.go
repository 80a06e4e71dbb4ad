package justlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/chat-replay/logcache"
	"github.com/onnwee/chat-replay/testutil"
)

func TestFetchDay(t *testing.T) {
	const raw = "@id=a;tmi-sent-ts=100 :alice!alice@a PRIVMSG #somechannel :hi\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channel/somechannel/2024/3/10" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if _, ok := r.URL.Query()["raw"]; !ok {
			t.Error("missing raw query flag")
		}
		w.Write([]byte(raw))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	day := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	got, err := c.FetchDay(context.Background(), "SomeChannel", day)
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if got != raw {
		t.Fatalf("FetchDay = %q, want %q", got, raw)
	}
}

func TestFetchDayNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, err := c.FetchDay(context.Background(), "chan", time.Now())
	if !errors.Is(err, logcache.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestFetchDayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	_, err := c.FetchDay(context.Background(), "chan", time.Now())
	if err == nil || errors.Is(err, logcache.ErrNoData) {
		t.Fatalf("err = %v, want a server error", err)
	}
}

func TestFetchDayAgainstMockServer(t *testing.T) {
	m := testutil.NewMockLogServer(t)
	m.MockDay("/channel/chan/2024/3/10", "one line\n")
	m.MockError("/channel/chan/2024/3/11", http.StatusInternalServerError)

	c := New(m.URL, m.Client())
	got, err := c.FetchDay(context.Background(), "chan", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if got != "one line\n" {
		t.Fatalf("FetchDay = %q", got)
	}

	if _, err := c.FetchDay(context.Background(), "chan", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error from 500 day")
	}
	// Unregistered days are the no-data case.
	if _, err := c.FetchDay(context.Background(), "chan", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)); !errors.Is(err, logcache.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestFetchDayJSONResponse(t *testing.T) {
	const (
		line1 = "@id=a;tmi-sent-ts=100 :alice!alice@a PRIVMSG #chan :hi"
		line2 = "@id=b;tmi-sent-ts=200 :bob!bob@b PRIVMSG #chan :yo"
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": "a", "raw": line1},
				{"id": "b", "raw": line2},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	got, err := c.FetchDay(context.Background(), "chan", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if want := line1 + "\n" + line2; got != want {
		t.Fatalf("FetchDay = %q, want %q", got, want)
	}
}

func TestFetchDayJSONWithoutRawLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"a","text":"hi","username":"alice","timestamp":"2024-03-10T12:00:00Z","type":1}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if _, err := c.FetchDay(context.Background(), "chan", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for a json message without a raw line")
	}
}

func TestFetchRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channel/chan/range" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
			t.Error("missing from/to query parameters")
		}
		w.Write([]byte("line\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	from := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	got, err := c.FetchRange(context.Background(), "chan", from, from.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if got != "line\n" {
		t.Fatalf("FetchRange = %q", got)
	}
}
