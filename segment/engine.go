package segment

import (
	"html"
	"log/slog"
	"sort"
	"strings"

	"github.com/onnwee/chat-replay/telemetry"
)

// piece is the internal working form of a segment: full carries the exact
// reconstruction slice, nested the displayable text with sentinel runes
// still present.
type piece struct {
	cat      Category
	full     []rune
	nested   []rune
	ann      Annotation
	attached []EmoteRef
}

// Render runs the full segmentation pipeline over text and its annotations.
// It never fails: inconsistencies degrade to plain-text segments and are
// reported as warnings, not errors.
func Render(text string, anns []Annotation) []Segment {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	anns = dedupeAnnotations(clampAnnotations(anns, len(runes)))

	marked := balance(splice(runes, anns))
	pieces := []piece{{cat: Plain, full: marked, nested: marked}}
	payloads := newPayloadQueues(anns)
	for _, cat := range splitOrder {
		pieces = splitCategory(pieces, cat, payloads)
	}
	pieces = foldZeroWidth(pieces)

	if got := concatFull(pieces); string(got) != string(marked) {
		slog.Warn("segment reconstruction mismatch",
			slog.Int("got_len", len(got)), slog.Int("want_len", len(marked)))
		telemetry.SegmentationWarning()
	}

	carryOver(pieces)
	applyDepth(pieces)

	out := make([]Segment, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, finish(p))
	}
	return out
}

func clampAnnotations(anns []Annotation, n int) []Annotation {
	out := make([]Annotation, 0, len(anns))
	for _, a := range anns {
		if a.Category == Plain {
			continue
		}
		if a.Start < 0 {
			a.Start = 0
		}
		if a.End > n {
			a.End = n
		}
		if a.Start >= a.End {
			continue
		}
		out = append(out, a)
	}
	return out
}

func dedupeAnnotations(anns []Annotation) []Annotation {
	type span struct {
		cat        Category
		start, end int
	}
	seen := make(map[span]bool, len(anns))
	out := anns[:0]
	for _, a := range anns {
		k := span{a.Category, a.Start, a.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// boundary is one open or close marker event; pair is the position of its
// counterpart.
type boundary struct {
	pos  int
	pair int
	cat  Category
	open bool
}

// splice inserts marker runes right to left so earlier insertions are never
// shifted by later ones. At equal positions opens sort before closes, then
// events order by paired position and finally by category priority, which
// yields well-formed bracket nesting for spans sharing boundaries.
func splice(runes []rune, anns []Annotation) []rune {
	evs := make([]boundary, 0, 2*len(anns))
	for _, a := range anns {
		evs = append(evs, boundary{pos: a.Start, pair: a.End, cat: a.Category, open: true})
		evs = append(evs, boundary{pos: a.End, pair: a.Start, cat: a.Category, open: false})
	}
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.pos != b.pos {
			return a.pos > b.pos
		}
		if a.open != b.open {
			return a.open
		}
		if a.pair != b.pair {
			return a.pair < b.pair
		}
		if a.open {
			return weight(a.cat) < weight(b.cat)
		}
		return weight(a.cat) > weight(b.cat)
	})

	type markerAt struct {
		pos  int
		cat  Category
		open bool
	}
	seen := make(map[markerAt]bool, len(evs))
	out := append(make([]rune, 0, len(runes)+len(evs)), runes...)
	for _, ev := range evs {
		key := markerAt{ev.pos, ev.cat, ev.open}
		if seen[key] {
			continue
		}
		seen[key] = true
		m := closeMarker(ev.cat)
		if ev.open {
			m = openMarker(ev.cat)
		}
		out = append(out, 0)
		copy(out[ev.pos+1:], out[ev.pos:])
		out[ev.pos] = m
	}
	return out
}

// balance pairs every marker: a close with no open on the stack gets a
// synthetic open prepended to the text, and opens left on the stack at the
// end get synthetic closes appended.
func balance(runes []rune) []rune {
	var stack []Category
	var prefix []rune
	for _, r := range runes {
		cat, open, ok := markerInfo(r)
		if !ok {
			continue
		}
		if open {
			stack = append(stack, cat)
			continue
		}
		found := -1
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == cat {
				found = i
				break
			}
		}
		if found >= 0 {
			stack = append(stack[:found], stack[found+1:]...)
		} else {
			prefix = append([]rune{openMarker(cat)}, prefix...)
		}
	}
	var suffix []rune
	for i := len(stack) - 1; i >= 0; i-- {
		suffix = append(suffix, closeMarker(stack[i]))
	}
	if len(prefix) == 0 && len(suffix) == 0 {
		return runes
	}
	out := make([]rune, 0, len(prefix)+len(runes)+len(suffix))
	out = append(out, prefix...)
	out = append(out, runes...)
	return append(out, suffix...)
}

// payloadQueues hands out annotation payloads in text order per category, so
// the n-th emitted segment of a category receives the n-th annotation
// encountered.
type payloadQueues struct {
	byCat map[Category][]Annotation
}

func newPayloadQueues(anns []Annotation) *payloadQueues {
	sorted := append([]Annotation(nil), anns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})
	q := &payloadQueues{byCat: make(map[Category][]Annotation)}
	for _, a := range sorted {
		q.byCat[a.Category] = append(q.byCat[a.Category], a)
	}
	return q
}

func (q *payloadQueues) next(cat Category) (Annotation, bool) {
	list := q.byCat[cat]
	if len(list) == 0 {
		return Annotation{}, false
	}
	q.byCat[cat] = list[1:]
	return list[0], true
}

// splitCategory re-splits all still-plain pieces on one category's marker
// pair. An open without a close in the same piece (clipped by an earlier
// split pass) degrades to a best-effort segment running to the piece's end.
func splitCategory(pieces []piece, cat Category, payloads *payloadQueues) []piece {
	open, cls := openMarker(cat), closeMarker(cat)
	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		if p.cat != Plain {
			out = append(out, p)
			continue
		}
		runes := p.nested
		start := 0
		i := 0
		for i < len(runes) {
			if runes[i] != open {
				i++
				continue
			}
			if i > start {
				out = append(out, plainPiece(runes[start:i]))
			}
			depth := 0
			j := i + 1
			for ; j < len(runes); j++ {
				if runes[j] == open {
					depth++
				} else if runes[j] == cls {
					if depth == 0 {
						break
					}
					depth--
				}
			}
			typed := piece{cat: cat}
			if j < len(runes) {
				typed.full = runes[i : j+1]
				i = j + 1
			} else {
				typed.full = runes[i:]
				i = len(runes)
			}
			typed.nested = typed.full
			if ann, ok := payloads.next(cat); ok {
				typed.ann = ann
			} else {
				// Unresolved annotation: keep the text, lose the typing.
				typed.cat = Plain
			}
			out = append(out, typed)
			start = i
		}
		if start < len(runes) {
			out = append(out, plainPiece(runes[start:]))
		}
	}
	return out
}

func plainPiece(runes []rune) piece {
	return piece{cat: Plain, full: runes, nested: runes}
}

// foldZeroWidth collapses the pattern (emote, whitespace-only text,
// zero-width emote) into the first emote as an attached annotation.
func foldZeroWidth(pieces []piece) []piece {
	out := make([]piece, 0, len(pieces))
	i := 0
	for i < len(pieces) {
		p := pieces[i]
		if isEmoteCategory(p.cat) {
			for i+2 < len(pieces) &&
				pieces[i+1].cat == Plain && whitespaceOnly(pieces[i+1].nested) &&
				isEmoteCategory(pieces[i+2].cat) && pieces[i+2].ann.Emote.ZeroWidth {
				p.attached = append(p.attached, pieces[i+2].ann.Emote)
				p.full = concat(p.full, pieces[i+1].full, pieces[i+2].full)
				i += 2
			}
		}
		out = append(out, p)
		i++
	}
	return out
}

func whitespaceOnly(runes []rune) bool {
	seen := false
	for _, r := range runes {
		if _, _, ok := markerInfo(r); ok {
			return false
		}
		if !isSpace(r) {
			return false
		}
		seen = true
	}
	return seen
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ' '
}

func concat(slices ...[]rune) []rune {
	n := 0
	for _, s := range slices {
		n += len(s)
	}
	out := make([]rune, 0, n)
	for _, s := range slices {
		out = append(out, s...)
	}
	return out
}

func concatFull(pieces []piece) []rune {
	var out []rune
	for _, p := range pieces {
		out = append(out, p.full...)
	}
	return out
}

// carryOver migrates stray boundary markers off segment edges: a trailing
// open marker moves forward into the next piece, a leading close marker
// backward into the previous one. Loops until stable.
func carryOver(pieces []piece) {
	for changed := true; changed; {
		changed = false
		for i := range pieces {
			if pieces[i].cat != Plain {
				continue
			}
			n := pieces[i].nested
			for len(n) > 0 {
				if _, open, ok := markerInfo(n[len(n)-1]); ok && open && i+1 < len(pieces) {
					pieces[i+1].nested = concat(n[len(n)-1:], pieces[i+1].nested)
					n = n[:len(n)-1]
					changed = true
					continue
				}
				break
			}
			for len(n) > 0 {
				if _, open, ok := markerInfo(n[0]); ok && !open && i > 0 {
					pieces[i-1].nested = concat(pieces[i-1].nested, n[:1])
					n = n[1:]
					changed = true
					continue
				}
				break
			}
			pieces[i].nested = n
		}
	}
}

// applyDepth threads per-category open depth across segments: a piece
// rendered while a category is still open gets that many raw open markers
// prefixed, so escaping sees a consistent nesting context.
func applyDepth(pieces []piece) {
	depth := make(map[Category]int, len(splitOrder))
	for i := range pieces {
		var prefix []rune
		for _, cat := range splitOrder {
			for k := 0; k < depth[cat]; k++ {
				prefix = append(prefix, openMarker(cat))
			}
		}
		for _, r := range pieces[i].nested {
			cat, open, ok := markerInfo(r)
			if !ok {
				continue
			}
			if open {
				depth[cat]++
			} else if depth[cat] > 0 {
				depth[cat]--
			}
		}
		if len(prefix) > 0 {
			pieces[i].nested = concat(prefix, pieces[i].nested)
		}
	}
}

// finish produces the public segment: HTML-escape the displayable text,
// substitute highlight markers with literal markup (closing any highlight
// still open at the segment edge so every segment is well-formed on its
// own), and strip all remaining sentinels.
func finish(p piece) Segment {
	seg := Segment{
		Category: p.cat,
		FullText: string(p.full),
		Emote:    p.ann.Emote,
		URL:      p.ann.URL,
		Mention:  p.ann.Mention,
		Attached: p.attached,
	}

	var display strings.Builder
	var escaped strings.Builder
	var chunk []rune
	flush := func() {
		if len(chunk) > 0 {
			escaped.WriteString(html.EscapeString(string(chunk)))
			chunk = chunk[:0]
		}
	}
	highlightDepth := 0
	for _, r := range p.nested {
		cat, open, ok := markerInfo(r)
		if !ok {
			display.WriteRune(r)
			chunk = append(chunk, r)
			continue
		}
		if cat != Highlight {
			continue
		}
		flush()
		if open {
			highlightDepth++
			escaped.WriteString(`<mark class="highlight">`)
		} else if highlightDepth > 0 {
			highlightDepth--
			escaped.WriteString(`</mark>`)
		}
	}
	flush()
	for ; highlightDepth > 0; highlightDepth-- {
		escaped.WriteString(`</mark>`)
	}

	seg.DisplayText = display.String()
	seg.EscapedText = escaped.String()
	return seg
}
