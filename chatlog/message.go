// Package chatlog defines the message model built from parsed protocol lines
// or from a remote JSON log payload, plus binary-search timeline queries over
// timestamp-ordered message slices.
package chatlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/chat-replay/irc"
)

// Kind discriminates the two message variants.
type Kind string

const (
	KindChat   Kind = "chat"
	KindSystem Kind = "system"
)

// Message is a tagged union over chat and system entries. Chat entries carry
// a server-assigned ID, username and text; system entries carry a command
// and an optional payload. Both retain the tag map for on-demand attribute
// lookup and the raw line for exact reproduction.
type Message struct {
	Kind      Kind
	ID        string
	Timestamp int64 // unix milliseconds
	Channel   string
	Username  string
	Text      string
	Command   string
	Tags      map[string]string
	Raw       string
}

var (
	ErrNoID        = errors.New("chatlog: message has no id tag")
	ErrNoTimestamp = errors.New("chatlog: message has no tmi-sent-ts tag")
	ErrNoUsername  = errors.New("chatlog: message has no username")
	ErrNotSystem   = errors.New("chatlog: chat-post command is not a system entry")
)

// ChatFromIRC builds a chat entry. The id tag, timestamp tag and username
// are all mandatory.
func ChatFromIRC(m irc.Message) (Message, error) {
	id := m.Tags["id"]
	if id == "" {
		return Message{}, ErrNoID
	}
	ts, err := timestampTag(m.Tags)
	if err != nil {
		return Message{}, err
	}
	if m.Username == "" {
		return Message{}, ErrNoUsername
	}
	return Message{
		Kind:      KindChat,
		ID:        id,
		Timestamp: ts,
		Channel:   m.Channel,
		Username:  m.Username,
		Text:      m.Text,
		Command:   m.Command,
		Tags:      m.Tags,
		Raw:       m.Raw,
	}, nil
}

// SystemFromIRC builds a system entry for any non-PRIVMSG command. When the
// server supplied no id tag the identity is synthesized from timestamp,
// command, channel and payload; it is stable for the process lifetime but
// not globally unique.
func SystemFromIRC(m irc.Message) (Message, error) {
	if m.Command == "PRIVMSG" {
		return Message{}, ErrNotSystem
	}
	ts, err := timestampTag(m.Tags)
	if err != nil {
		return Message{}, err
	}
	id := m.Tags["id"]
	if id == "" {
		id = fmt.Sprintf("%d-%s-%s-%s", ts, m.Command, m.Channel, m.Text)
	}
	return Message{
		Kind:      KindSystem,
		ID:        id,
		Timestamp: ts,
		Channel:   m.Channel,
		Username:  m.Username,
		Text:      m.Text,
		Command:   m.Command,
		Tags:      m.Tags,
		Raw:       m.Raw,
	}, nil
}

// FromIRC dispatches on the command: PRIVMSG becomes a chat entry,
// everything else a system entry.
func FromIRC(m irc.Message) (Message, error) {
	if m.Command == "PRIVMSG" {
		return ChatFromIRC(m)
	}
	return SystemFromIRC(m)
}

// ParseBlock parses a newline-delimited block of raw log lines into messages.
// A parse failure on any line fails the whole block.
func ParseBlock(block string) ([]Message, error) {
	lines, err := irc.ParseLines(block)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(lines))
	for _, ln := range lines {
		msg, err := FromIRC(ln)
		if err != nil {
			return nil, fmt.Errorf("%w (line %q)", err, ln.Raw)
		}
		out = append(out, msg)
	}
	return out, nil
}

func timestampTag(tags map[string]string) (int64, error) {
	raw := tags["tmi-sent-ts"]
	if raw == "" {
		raw = tags["rm-received-ts"]
	}
	if raw == "" {
		return 0, ErrNoTimestamp
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q", ErrNoTimestamp, raw)
	}
	return ts, nil
}

// EmoteRange is one occurrence of a protocol-tagged emote. Indices are
// inclusive codepoint positions in the message text.
type EmoteRange struct {
	ID    string
	Start int
	End   int
}

// EmoteRanges parses the emotes tag (id:start-end,start-end/id2:...).
// Malformed numeric ranges are skipped rather than failing the whole parse.
func (m Message) EmoteRanges() []EmoteRange {
	raw := m.Tags["emotes"]
	if raw == "" {
		return nil
	}
	var out []EmoteRange
	for _, group := range strings.Split(raw, "/") {
		id, ranges, ok := strings.Cut(group, ":")
		if !ok || id == "" {
			continue
		}
		for _, r := range strings.Split(ranges, ",") {
			startRaw, endRaw, ok := strings.Cut(r, "-")
			if !ok {
				continue
			}
			start, err1 := strconv.Atoi(startRaw)
			end, err2 := strconv.Atoi(endRaw)
			if err1 != nil || err2 != nil || start < 0 || end < start {
				continue
			}
			out = append(out, EmoteRange{ID: id, Start: start, End: end})
		}
	}
	return out
}

// DisplayName returns the display-name tag, falling back to the login name.
func (m Message) DisplayName() string {
	if dn := irc.UnescapeTag(m.Tags["display-name"]); dn != "" {
		return dn
	}
	return m.Username
}

// Color returns the user's chat color tag, if any.
func (m Message) Color() string { return m.Tags["color"] }

// Bits returns the cheered bits amount, zero when absent or malformed.
func (m Message) Bits() int {
	n, _ := strconv.Atoi(m.Tags["bits"])
	return n
}

// ReplyParent returns the quoted parent message of a reply, decoded from its
// tag escapes, with ok=false when the message is not a reply.
func (m Message) ReplyParent() (user, body string, ok bool) {
	body, ok = m.Tags["reply-parent-msg-body"]
	if !ok {
		return "", "", false
	}
	user = m.Tags["reply-parent-display-name"]
	if user == "" {
		user = m.Tags["reply-parent-user-login"]
	}
	return irc.UnescapeTag(user), irc.UnescapeTag(body), true
}

// Equal reports identity between two messages: matching ids when both carry
// one, else structural equality of timestamp, channel, username and text.
// The structural fallback can under- or over-merge identical messages sent
// within the same millisecond; that behavior is intentional.
func (m Message) Equal(o Message) bool {
	if m.ID != "" && o.ID != "" {
		return m.ID == o.ID
	}
	return m.Timestamp == o.Timestamp && m.Channel == o.Channel &&
		m.Username == o.Username && m.Text == o.Text
}
