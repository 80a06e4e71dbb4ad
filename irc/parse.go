// Package irc parses IRCv3-style chat log lines (tags, prefix, command,
// channel, trailing parameter) into structured messages. It performs a single
// forward scan with no backtracking and keeps tag values verbatim; use
// UnescapeTag when a decoded value is needed.
package irc

import (
	"errors"
	"fmt"
	"strings"
)

// Message is one parsed protocol line. Fields are populated once at parse
// time and never mutated.
type Message struct {
	Raw      string
	Tags     map[string]string
	Command  string
	Channel  string
	Username string
	Text     string
}

var (
	ErrMissingCommand  = errors.New("missing command")
	ErrMissingChannel  = errors.New("missing channel")
	ErrMissingTrailing = errors.New("missing trailing text")
)

// Parse converts a single raw log line into a Message. The channel token is
// mandatory; PRIVMSG additionally requires a trailing parameter.
func Parse(line string) (Message, error) {
	msg := Message{Raw: line, Tags: map[string]string{}}
	rest := line

	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingCommand)
		}
		tagPart := rest[1:idx]
		rest = rest[idx+1:]
		for _, kv := range strings.Split(tagPart, ";") {
			if kv == "" {
				continue
			}
			parts := strings.SplitN(kv, "=", 2)
			val := ""
			if len(parts) == 2 {
				val = parts[1]
			}
			msg.Tags[parts[0]] = val
		}
	}

	if strings.HasPrefix(rest, ":") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingCommand)
		}
		prefix := rest[1:idx]
		rest = rest[idx+1:]
		if bang := strings.Index(prefix, "!"); bang != -1 {
			msg.Username = prefix[:bang]
		}
	}

	rest = strings.TrimLeft(rest, " ")
	if rest == "" {
		return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingCommand)
	}
	if idx := strings.Index(rest, " "); idx != -1 {
		msg.Command = rest[:idx]
		rest = strings.TrimLeft(rest[idx+1:], " ")
	} else {
		msg.Command = rest
		rest = ""
	}

	if !strings.HasPrefix(rest, "#") {
		return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingChannel)
	}
	if idx := strings.Index(rest, " "); idx != -1 {
		msg.Channel = rest[1:idx]
		rest = rest[idx+1:]
	} else {
		msg.Channel = rest[1:]
		rest = ""
	}
	if msg.Channel == "" {
		return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingChannel)
	}

	if strings.HasPrefix(rest, ":") {
		msg.Text = rest[1:]
	} else if msg.Command == "PRIVMSG" {
		return Message{}, fmt.Errorf("parse %q: %w", line, ErrMissingTrailing)
	}

	return msg, nil
}

// ParseLines splits a newline-delimited block, drops blank lines, and parses
// each remaining line. The first parse failure aborts the whole block so an
// unparseable day is never mistaken for an empty one.
func ParseLines(block string) ([]Message, error) {
	lines := strings.Split(block, "\n")
	out := make([]Message, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// UnescapeTag decodes IRCv3 tag-value escapes (\s, \n, \r, \:, \\).
func UnescapeTag(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case ':':
			b.WriteByte(';')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
