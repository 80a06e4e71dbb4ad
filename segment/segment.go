// Package segment resolves independently detected, possibly overlapping
// annotation ranges over a message text into an ordered, losslessly
// reconstructable sequence of typed display segments. Annotation boundaries
// are spliced into the text as reserved private-use-area sentinel runes,
// balanced, and then split out per category; the sentinel encoding never
// leaks past EscapedText.
package segment

// Category classifies a segment or annotation. The declaration order of the
// annotated categories is their nesting priority: when two ranges share
// exact boundaries the earlier category nests innermost.
type Category int

const (
	Plain Category = iota
	TwitchEmote
	ExternalEmote
	URL
	Highlight
	Mention
)

func (c Category) String() string {
	switch c {
	case Plain:
		return "plain"
	case TwitchEmote:
		return "twitch-emote"
	case ExternalEmote:
		return "external-emote"
	case URL:
		return "url"
	case Highlight:
		return "highlight"
	case Mention:
		return "mention"
	default:
		return "unknown"
	}
}

// splitOrder is the fixed priority order used for nesting and for the
// per-category split passes.
var splitOrder = [...]Category{TwitchEmote, ExternalEmote, URL, Highlight, Mention}

// EmoteRef identifies one emote image, either from the protocol's emote tag
// or from an external emote directory.
type EmoteRef struct {
	ID        string
	Name      string
	Provider  string
	ZeroWidth bool
}

// Annotation is one detected span [Start, End) of the original text, in rune
// indices, with a category-specific payload.
type Annotation struct {
	Category Category
	Start    int
	End      int
	Emote    EmoteRef
	URL      string
	Mention  string
}

// Segment is one display unit. FullText preserves the marked input exactly
// (concatenating all FullText values of a render reproduces it), DisplayText
// is the sentinel-free visible text, and EscapedText is HTML-escaped with
// highlight boundaries substituted as literal markup.
type Segment struct {
	Category    Category
	FullText    string
	DisplayText string
	EscapedText string
	Emote       EmoteRef
	URL         string
	Mention     string
	Attached    []EmoteRef
}

// Marker runes live in the BMP private use area, one open/close pair per
// annotated category.
const markerBase = 0xE000

func openMarker(c Category) rune  { return rune(markerBase + 2*(int(c)-1)) }
func closeMarker(c Category) rune { return rune(markerBase + 2*(int(c)-1) + 1) }

// markerInfo reports whether r is a sentinel, and if so for which category
// and direction.
func markerInfo(r rune) (cat Category, open bool, ok bool) {
	n := int(r) - markerBase
	if n < 0 || n >= 2*len(splitOrder) {
		return 0, false, false
	}
	return Category(n/2 + 1), n%2 == 0, true
}

func isEmoteCategory(c Category) bool { return c == TwitchEmote || c == ExternalEmote }

// weight maps a category to its nesting priority; lower wraps tighter.
func weight(c Category) int {
	for i, cat := range splitOrder {
		if cat == c {
			return i
		}
	}
	return len(splitOrder)
}
