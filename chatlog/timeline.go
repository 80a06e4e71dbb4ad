package chatlog

import "sort"

// Timeline queries operate on slices sorted ascending by Timestamp. Ordering
// is the caller's responsibility and is not re-validated here.

// Between returns the maximal contiguous sub-slice whose timestamps lie in
// [start, end]. The result aliases the input.
func Between(msgs []Message, start, end int64) []Message {
	if len(msgs) == 0 || start > end {
		return nil
	}
	lo := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp >= start })
	if lo == len(msgs) {
		return nil
	}
	hi := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp > end })
	if lo >= hi {
		return nil
	}
	return msgs[lo:hi]
}

// Window returns up to limit messages ending at the rightmost message with
// timestamp <= current, or nil when no such message exists. With includeNext
// the window is extended by one later message when one exists, to support
// look-ahead toward the next message.
func Window(msgs []Message, current int64, limit int, includeNext bool) []Message {
	if len(msgs) == 0 || limit <= 0 {
		return nil
	}
	// Index one past the rightmost message with Timestamp <= current.
	end := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp > current })
	if end == 0 {
		return nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	if includeNext && end < len(msgs) {
		end++
	}
	return msgs[start:end]
}
