// Package replay exposes the user-facing replay engine: one Session per
// (channel, viewer) pairing that turns raw cached chat into rendered
// transcript entries synchronized to a playback position.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/onnwee/chat-replay/chatlog"
	"github.com/onnwee/chat-replay/logcache"
	"github.com/onnwee/chat-replay/player"
	"github.com/onnwee/chat-replay/segment"
	"github.com/onnwee/chat-replay/telemetry"
)

// ErrNoPosition is returned by WindowNow before the player has reported a
// playback position.
var ErrNoPosition = errors.New("replay: no playback position available")

// windowLookback bounds how far back WindowAt reaches for context messages.
const windowLookback = 6 * time.Hour

// RenderedSegment is the wire shape of one segment of a message.
type RenderedSegment struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	HTML      string   `json:"html"`
	EmoteID   string   `json:"emote_id,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	URL       string   `json:"url,omitempty"`
	Mention   string   `json:"mention,omitempty"`
	ZeroWidth []string `json:"zero_width,omitempty"`
}

// RenderedMessage is the wire shape of one transcript entry.
type RenderedMessage struct {
	ID           string            `json:"id"`
	Timestamp    int64             `json:"timestamp"`
	Kind         string            `json:"kind"`
	Username     string            `json:"username,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	Color        string            `json:"color,omitempty"`
	Bits         int               `json:"bits,omitempty"`
	SystemText   string            `json:"system_text,omitempty"`
	SystemDetail string            `json:"system_detail,omitempty"`
	Segments     []RenderedSegment `json:"segments,omitempty"`
}

// Options configures a Session. Store and Channel are required; everything
// else degrades gracefully when absent.
type Options struct {
	Channel        string
	Store          *logcache.Store
	Emotes         segment.EmoteLookup
	HighlightTerms []string
	WindowLimit    int
	VODStart       time.Time
	Position       player.PositionSource
}

// Session renders chat for one channel replay. Safe for concurrent use.
type Session struct {
	channel  string
	store    *logcache.Store
	detector segment.Detector
	limit    int
	start    time.Time
	pos      player.PositionSource

	mu        sync.Mutex
	roomState map[string]string
}

func NewSession(opts Options) (*Session, error) {
	if opts.Channel == "" {
		return nil, errors.New("replay: channel required")
	}
	if opts.Store == nil {
		return nil, errors.New("replay: store required")
	}
	limit := opts.WindowLimit
	if limit <= 0 {
		limit = 150
	}
	return &Session{
		channel: opts.Channel,
		store:   opts.Store,
		detector: segment.Detector{
			Emotes:     opts.Emotes,
			Highlights: opts.HighlightTerms,
		},
		limit:     limit,
		start:     opts.VODStart,
		pos:       opts.Position,
		roomState: make(map[string]string),
	}, nil
}

// Transcript renders every message with timestamps in [from, to].
func (s *Session) Transcript(ctx context.Context, from, to time.Time) ([]RenderedMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "replay", "transcript")
	defer span.End()

	var out []RenderedMessage
	var err error
	telemetry.TimeFunc(telemetry.RenderDuration, func() {
		var msgs []chatlog.Message
		msgs, err = s.store.Messages(ctx, s.channel, from, to)
		if err != nil {
			return
		}
		out = s.renderAll(msgs)
	})
	if err != nil {
		return nil, err
	}
	telemetry.Count(telemetry.TranscriptRenders)
	return out, nil
}

// WindowAt renders the chat visible at one instant: the most recent messages
// at or before `at`, capped at the session's window limit, optionally with
// the single next upcoming message appended.
func (s *Session) WindowAt(ctx context.Context, at time.Time, includeNext bool) ([]RenderedMessage, error) {
	from := at.Add(-windowLookback)
	to := at.Add(time.Minute) // headroom for the upcoming message
	msgs, err := s.store.Messages(ctx, s.channel, from, to)
	if err != nil {
		return nil, err
	}
	window := chatlog.Window(msgs, at.UTC().UnixMilli(), s.limit, includeNext)
	return s.renderAll(window), nil
}

// WindowAtOffset renders the window at a playback offset from the VOD start.
func (s *Session) WindowAtOffset(ctx context.Context, ms int64, includeNext bool) ([]RenderedMessage, error) {
	return s.WindowAt(ctx, s.start.Add(time.Duration(ms)*time.Millisecond), includeNext)
}

// WindowNow maps the player's current position onto the VOD's absolute
// timeline and renders the window there.
func (s *Session) WindowNow(ctx context.Context, includeNext bool) ([]RenderedMessage, error) {
	if s.pos == nil {
		return nil, ErrNoPosition
	}
	ms, ok := s.pos.Position()
	if !ok {
		return nil, ErrNoPosition
	}
	at := s.start.Add(time.Duration(ms) * time.Millisecond)
	return s.WindowAt(ctx, at, includeNext)
}

// Prefetch warms the cache around a playback position, e.g. ahead of a seek.
func (s *Session) Prefetch(ctx context.Context, from, to time.Time) error {
	return s.store.Prefetch(ctx, s.channel, from, to)
}

func (s *Session) renderAll(msgs []chatlog.Message) []RenderedMessage {
	out := make([]RenderedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.render(m))
	}
	return out
}

func (s *Session) render(m chatlog.Message) RenderedMessage {
	r := RenderedMessage{
		ID:        m.ID,
		Timestamp: m.Timestamp,
		Kind:      string(m.Kind),
		Username:  m.Username,
	}
	if m.Kind == chatlog.KindSystem {
		s.mu.Lock()
		r.SystemText, r.SystemDetail = chatlog.SystemText(m, s.roomState)
		if m.Command == "ROOMSTATE" {
			for k, v := range m.Tags {
				s.roomState[k] = v
			}
		}
		s.mu.Unlock()
		return r
	}

	r.DisplayName = m.DisplayName()
	r.Color = m.Color()
	r.Bits = m.Bits()

	runes := []rune(m.Text)
	var base []segment.Annotation
	for _, er := range m.EmoteRanges() {
		// Protocol ranges are inclusive rune indices.
		if er.Start < 0 || er.End >= len(runes) || er.Start > er.End {
			continue
		}
		base = append(base, segment.Annotation{
			Category: segment.TwitchEmote,
			Start:    er.Start,
			End:      er.End + 1,
			Emote: segment.EmoteRef{
				ID:       er.ID,
				Name:     string(runes[er.Start : er.End+1]),
				Provider: "twitch",
			},
		})
	}
	for _, seg := range segment.Render(m.Text, s.detector.Annotate(m.Text, base)) {
		r.Segments = append(r.Segments, toWire(seg))
	}
	return r
}

func toWire(seg segment.Segment) RenderedSegment {
	w := RenderedSegment{
		Type:    seg.Category.String(),
		Text:    seg.DisplayText,
		HTML:    seg.EscapedText,
		URL:     seg.URL,
		Mention: seg.Mention,
	}
	if seg.Emote.ID != "" || seg.Emote.Name != "" {
		w.EmoteID = seg.Emote.ID
		w.Provider = seg.Emote.Provider
	}
	for _, z := range seg.Attached {
		w.ZeroWidth = append(w.ZeroWidth, z.Name)
	}
	return w
}

// Describe names the session for logs.
func (s *Session) Describe() string {
	return fmt.Sprintf("replay of #%s anchored at %s", s.channel, s.start.UTC().Format(time.RFC3339))
}
