package segment

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://[^\s]+`)
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
)

// EmoteLookup resolves an external (dictionary) emote by its code.
type EmoteLookup func(name string) (EmoteRef, bool)

// Detector collects annotations for one message text: external emote
// matches, URL and @mention pattern matches, and case-insensitive search
// highlights. Protocol-tag emote ranges are supplied by the caller as
// ready-made annotations.
type Detector struct {
	Emotes     EmoteLookup
	Highlights []string
}

// Annotate returns base plus every span the detector finds. All ranges are
// rune indices into text.
func (d Detector) Annotate(text string, base []Annotation) []Annotation {
	anns := append([]Annotation(nil), base...)
	anns = append(anns, d.externalEmotes(text)...)
	anns = append(anns, urls(text)...)
	anns = append(anns, mentions(text)...)
	anns = append(anns, d.highlights(text)...)
	return anns
}

// byteToRune maps every byte offset of s (plus len(s)) to its rune offset.
func byteToRune(s string) map[int]int {
	m := make(map[int]int, len(s)+1)
	i := 0
	for bi := range s {
		m[bi] = i
		i++
	}
	m[len(s)] = i
	return m
}

func urls(text string) []Annotation {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	offs := byteToRune(text)
	out := make([]Annotation, 0, len(matches))
	for _, m := range matches {
		out = append(out, Annotation{
			Category: URL,
			Start:    offs[m[0]],
			End:      offs[m[1]],
			URL:      text[m[0]:m[1]],
		})
	}
	return out
}

func mentions(text string) []Annotation {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	offs := byteToRune(text)
	out := make([]Annotation, 0, len(matches))
	for _, m := range matches {
		out = append(out, Annotation{
			Category: Mention,
			Start:    offs[m[0]],
			End:      offs[m[1]],
			Mention:  text[m[2]:m[3]],
		})
	}
	return out
}

// externalEmotes matches whole space-delimited words against the dictionary.
func (d Detector) externalEmotes(text string) []Annotation {
	if d.Emotes == nil {
		return nil
	}
	var out []Annotation
	runes := []rune(text)
	start := -1
	flush := func(end int) {
		if start == -1 {
			return
		}
		word := string(runes[start:end])
		if ref, ok := d.Emotes(word); ok {
			out = append(out, Annotation{Category: ExternalEmote, Start: start, End: end, Emote: ref})
		}
		start = -1
	}
	for i, r := range runes {
		if isSpace(r) {
			flush(i)
			continue
		}
		if start == -1 {
			start = i
		}
	}
	flush(len(runes))
	return out
}

// highlights finds every case-insensitive occurrence of each search term.
func (d Detector) highlights(text string) []Annotation {
	if len(d.Highlights) == 0 {
		return nil
	}
	lower := []rune(strings.ToLower(text))
	var out []Annotation
	for _, term := range d.Highlights {
		needle := []rune(strings.ToLower(strings.TrimSpace(term)))
		if len(needle) == 0 {
			continue
		}
		for i := 0; i+len(needle) <= len(lower); i++ {
			if !runesEqual(lower[i:i+len(needle)], needle) {
				continue
			}
			out = append(out, Annotation{Category: Highlight, Start: i, End: i + len(needle)})
			i += len(needle) - 1
		}
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
