package chatlog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/chat-replay/irc"
)

// SystemText renders a system entry into a headline plus an optional literal
// secondary message (for example the deleted message quoted by a moderation
// event). roomState holds the last-known ROOMSTATE tags for the channel and
// may be nil. Every known command and sub-type yields some string; unknown
// ones fall back to a generic rendering. The function never fails.
func SystemText(m Message, roomState map[string]string) (headline, secondary string) {
	switch m.Command {
	case "CLEARCHAT":
		return clearChatText(m), ""
	case "CLEARMSG":
		login := m.Tags["login"]
		if login == "" {
			login = "a user"
		}
		return fmt.Sprintf("A message from %s was deleted", login), m.Text
	case "NOTICE":
		if m.Text != "" {
			return m.Text, ""
		}
		return "Notice: " + m.Tags["msg-id"], ""
	case "USERNOTICE":
		return userNoticeText(m), m.Text
	case "ROOMSTATE":
		return roomStateText(m, roomState), ""
	case "HOSTTARGET":
		target, _, _ := strings.Cut(m.Text, " ")
		if target == "" || target == "-" {
			return "Exited host mode", ""
		}
		return "Now hosting " + target, ""
	default:
		if m.Text != "" {
			return m.Command + ": " + m.Text, ""
		}
		return m.Command, ""
	}
}

func clearChatText(m Message) string {
	// The trailing parameter names the banned user; without one the whole
	// chat was cleared.
	target := strings.TrimSpace(m.Text)
	if target == "" {
		return "Chat was cleared by a moderator"
	}
	if secs, err := strconv.Atoi(m.Tags["ban-duration"]); err == nil && secs > 0 {
		return fmt.Sprintf("%s was timed out for %s", target, durationText(secs))
	}
	return target + " was permanently banned"
}

func durationText(secs int) string {
	switch {
	case secs >= 86400 && secs%86400 == 0:
		return plural(secs/86400, "day")
	case secs >= 3600 && secs%3600 == 0:
		return plural(secs/3600, "hour")
	case secs >= 60 && secs%60 == 0:
		return plural(secs/60, "minute")
	default:
		return plural(secs, "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func userNoticeText(m Message) string {
	// Twitch ships a prebuilt headline in system-msg for most sub-types.
	if sys := irc.UnescapeTag(m.Tags["system-msg"]); sys != "" {
		return sys
	}
	name := m.Tags["display-name"]
	if name == "" {
		name = m.Tags["login"]
	}
	if name == "" {
		name = "Someone"
	}
	switch m.Tags["msg-id"] {
	case "sub":
		return name + " just subscribed!"
	case "resub":
		months := m.Tags["msg-param-cumulative-months"]
		if months == "" {
			return name + " resubscribed!"
		}
		return fmt.Sprintf("%s resubscribed for %s months!", name, months)
	case "subgift":
		recipient := m.Tags["msg-param-recipient-display-name"]
		if recipient == "" {
			recipient = m.Tags["msg-param-recipient-user-name"]
		}
		return fmt.Sprintf("%s gifted a sub to %s!", name, recipient)
	case "submysterygift":
		count := m.Tags["msg-param-mass-gift-count"]
		if count == "" {
			count = "some"
		}
		return fmt.Sprintf("%s is gifting %s subs to the community!", name, count)
	case "raid":
		raider := m.Tags["msg-param-displayName"]
		if raider == "" {
			raider = name
		}
		viewers := m.Tags["msg-param-viewerCount"]
		if viewers == "" {
			viewers = "some"
		}
		return fmt.Sprintf("%s is raiding with a party of %s", raider, viewers)
	case "unraid":
		return "The raid has been canceled"
	case "announcement":
		return "Announcement"
	case "ritual":
		return name + " is new here. Say hello!"
	case "bitsbadgetier":
		return name + " just earned a new bits badge!"
	default:
		return name + ": " + m.Tags["msg-id"]
	}
}

// roomStateText renders the delta between the last-known room state and this
// update; with no prior state it summarizes every mode present on the tags.
func roomStateText(m Message, prev map[string]string) string {
	modes := []struct {
		tag string
		on  func(v string) string
		off string
	}{
		{"emote-only", func(string) string { return "Emote-only mode enabled" }, "Emote-only mode disabled"},
		{"subs-only", func(string) string { return "Subscribers-only mode enabled" }, "Subscribers-only mode disabled"},
		{"r9k", func(string) string { return "Unique-chat mode enabled" }, "Unique-chat mode disabled"},
		{"followers-only", followersOnlyText, "Followers-only mode disabled"},
		{"slow", slowModeText, "Slow mode disabled"},
	}

	var parts []string
	for _, mode := range modes {
		v, present := m.Tags[mode.tag]
		if !present {
			continue
		}
		if prev != nil && prev[mode.tag] == v {
			continue
		}
		if modeDisabled(mode.tag, v) {
			// An initial full ROOMSTATE lists disabled modes too; only
			// report a disable when it flips a previously enabled mode.
			if prev != nil && prev[mode.tag] != "" && !modeDisabled(mode.tag, prev[mode.tag]) {
				parts = append(parts, mode.off)
			}
			continue
		}
		parts = append(parts, mode.on(v))
	}
	if len(parts) == 0 {
		return "Chat settings updated"
	}
	return strings.Join(parts, ", ")
}

func modeDisabled(tag, v string) bool {
	if tag == "followers-only" {
		return v == "-1"
	}
	return v == "0" || v == ""
}

func followersOnlyText(v string) string {
	if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
		return fmt.Sprintf("Followers-only mode enabled (%s)", durationText(mins*60))
	}
	return "Followers-only mode enabled"
}

func slowModeText(v string) string {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return fmt.Sprintf("Slow mode enabled (%s)", durationText(secs))
	}
	return "Slow mode enabled"
}
