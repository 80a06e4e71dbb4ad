package chatlog

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// remoteMessage matches the JSON shape served by justlog-style archives.
type remoteMessage struct {
	Text        string            `json:"text"`
	DisplayName string            `json:"displayName"`
	Username    string            `json:"username"`
	Channel     string            `json:"channel"`
	Timestamp   time.Time         `json:"timestamp"`
	ID          string            `json:"id"`
	Type        int               `json:"type"`
	Raw         string            `json:"raw"`
	Tags        map[string]string `json:"tags"`
}

// DecodeJSON reads a {"messages": [...]} payload. When a record carries its
// raw protocol line that line is authoritative and is re-parsed; otherwise
// the message is assembled from the JSON fields directly.
func DecodeJSON(r io.Reader) ([]Message, error) {
	var payload struct {
		Messages []remoteMessage `json:"messages"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode log payload: %w", err)
	}
	out := make([]Message, 0, len(payload.Messages))
	for i, rm := range payload.Messages {
		msg, err := fromRemote(rm)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func fromRemote(rm remoteMessage) (Message, error) {
	if rm.Raw != "" {
		msgs, err := ParseBlock(rm.Raw)
		if err != nil {
			return Message{}, err
		}
		if len(msgs) == 1 {
			return msgs[0], nil
		}
	}

	kind := KindChat
	if rm.Type != 1 { // justlog type 1 = PRIVMSG
		kind = KindSystem
	}
	tags := rm.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	msg := Message{
		Kind:      kind,
		ID:        rm.ID,
		Timestamp: rm.Timestamp.UnixMilli(),
		Channel:   rm.Channel,
		Username:  rm.Username,
		Text:      rm.Text,
		Command:   "PRIVMSG",
		Tags:      tags,
		Raw:       rm.Raw,
	}
	if kind == KindSystem {
		msg.Command = tags["command"]
		if msg.Command == "" {
			msg.Command = "NOTICE"
		}
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("%d-%s-%s-%s", msg.Timestamp, msg.Command, msg.Channel, msg.Text)
		}
	}
	return msg, nil
}
