package replay

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-replay/logcache"
	"github.com/onnwee/chat-replay/player"
	"github.com/onnwee/chat-replay/segment"
)

var sessionDay = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type scriptedSource struct {
	raw string
}

func (s *scriptedSource) FetchDay(ctx context.Context, channel string, day time.Time) (string, error) {
	return s.raw, nil
}

func (s *scriptedSource) FetchRange(ctx context.Context, channel string, from, to time.Time) (string, error) {
	return "", logcache.ErrNoData
}

func ts(offset time.Duration) int64 { return sessionDay.Add(18*time.Hour + offset).UnixMilli() }

func fixtureLog() string {
	lines := []string{
		fmt.Sprintf("@id=m1;tmi-sent-ts=%d;display-name=Alice;color=#FF0000;emotes=25:0-4 :alice!alice@a PRIVMSG #chan :Kappa nice run", ts(0)),
		fmt.Sprintf("@tmi-sent-ts=%d;ban-duration=600 :tmi.twitch.tv CLEARCHAT #chan :bob", ts(10*time.Second)),
		fmt.Sprintf("@id=m2;tmi-sent-ts=%d :carol!carol@c PRIVMSG #chan :see https://clips.example/x @alice", ts(20*time.Second)),
		fmt.Sprintf("@id=m3;tmi-sent-ts=%d :dave!dave@d PRIVMSG #chan :catJAM", ts(30*time.Second)),
	}
	return strings.Join(lines, "\n")
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	store := logcache.New(&scriptedSource{raw: fixtureLog()},
		logcache.WithClock(func() time.Time { return sessionDay.AddDate(0, 0, 2) }))
	opts.Channel = "chan"
	opts.Store = store
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func lookupCatJAM(name string) (segment.EmoteRef, bool) {
	if name == "catJAM" {
		return segment.EmoteRef{ID: "x1", Name: "catJAM", Provider: "7tv"}, true
	}
	return segment.EmoteRef{}, false
}

func TestTranscriptRendersAllKinds(t *testing.T) {
	s := newTestSession(t, Options{Emotes: lookupCatJAM})

	got, err := s.Transcript(context.Background(), sessionDay.Add(17*time.Hour), sessionDay.Add(19*time.Hour))
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Transcript returned %d messages, want 4", len(got))
	}

	// m1: leading Twitch emote then plain text.
	m1 := got[0]
	if m1.Kind != "chat" || m1.DisplayName != "Alice" || m1.Color != "#FF0000" {
		t.Fatalf("m1 = %+v", m1)
	}
	if len(m1.Segments) < 2 {
		t.Fatalf("m1 segments = %+v", m1.Segments)
	}
	if m1.Segments[0].Type != "twitch-emote" || m1.Segments[0].Text != "Kappa" || m1.Segments[0].EmoteID != "25" {
		t.Fatalf("m1.Segments[0] = %+v", m1.Segments[0])
	}

	// The CLEARCHAT renders as a system entry with no segments.
	sys := got[1]
	if sys.Kind != "system" || len(sys.Segments) != 0 {
		t.Fatalf("system entry = %+v", sys)
	}
	if sys.SystemText != "bob was timed out for 10 minutes" {
		t.Fatalf("SystemText = %q", sys.SystemText)
	}

	// m2: URL and mention detected.
	var sawURL, sawMention bool
	for _, seg := range got[2].Segments {
		if seg.Type == "url" && seg.URL == "https://clips.example/x" {
			sawURL = true
		}
		if seg.Type == "mention" && seg.Mention == "alice" {
			sawMention = true
		}
	}
	if !sawURL || !sawMention {
		t.Fatalf("m2 segments = %+v", got[2].Segments)
	}

	// m3: external emote resolved through the lookup.
	m3 := got[3]
	if len(m3.Segments) == 0 || m3.Segments[0].Type != "external-emote" || m3.Segments[0].Provider != "7tv" {
		t.Fatalf("m3 segments = %+v", m3.Segments)
	}
}

func TestWindowAtRespectsLimit(t *testing.T) {
	s := newTestSession(t, Options{WindowLimit: 2})

	got, err := s.WindowAt(context.Background(), sessionDay.Add(18*time.Hour+25*time.Second), false)
	if err != nil {
		t.Fatalf("WindowAt: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("window has %d messages, want 2", len(got))
	}
	// The two most recent at-or-before entries are the system event and m2.
	if got[0].Kind != "system" || got[1].ID != "m2" {
		t.Fatalf("window = %+v", got)
	}
	for _, m := range got {
		if m.Timestamp > ts(25*time.Second) {
			t.Fatalf("window includes future message %+v", m)
		}
	}
}

func TestWindowAtIncludeNext(t *testing.T) {
	s := newTestSession(t, Options{})

	got, err := s.WindowAt(context.Background(), sessionDay.Add(18*time.Hour+25*time.Second), true)
	if err != nil {
		t.Fatalf("WindowAt: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].ID != "m3" {
		t.Fatalf("window = %+v, want trailing upcoming m3", got)
	}
}

func TestWindowNowFollowsPlayer(t *testing.T) {
	var pos player.Fixed
	s := newTestSession(t, Options{
		VODStart: sessionDay.Add(18 * time.Hour),
		Position: &pos,
	})

	if _, err := s.WindowNow(context.Background(), false); err != ErrNoPosition {
		t.Fatalf("err = %v, want ErrNoPosition before playback", err)
	}

	pos.Set(21 * 1000) // 21s into the VOD
	got, err := s.WindowNow(context.Background(), false)
	if err != nil {
		t.Fatalf("WindowNow: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].ID != "m2" {
		t.Fatalf("window = %+v, want m2 as most recent", got)
	}
}
