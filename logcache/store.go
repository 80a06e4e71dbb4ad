// Package logcache fetches, caches and incrementally merges per-day chat
// logs for a channel. Entries are keyed by (channel, UTC day); only the
// current UTC day is provisional, every other day is immutable once fetched.
// Concurrent requests for the same key share one in-flight fetch.
package logcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/chat-replay/chatlog"
	"github.com/onnwee/chat-replay/telemetry"
)

// ErrNoData is the "no chat logged for this day/range" outcome. Sources
// return it for 404-equivalent responses; it is a legitimate result, not a
// failure.
var ErrNoData = errors.New("logcache: no chat data")

// Source supplies raw newline-delimited protocol lines for a channel day or
// time range.
type Source interface {
	FetchDay(ctx context.Context, channel string, day time.Time) (string, error)
	FetchRange(ctx context.Context, channel string, from, to time.Time) (string, error)
}

// Archive is an optional persistent layer below the in-memory cache. It only
// ever holds complete days. LoadDay returns ErrNoData when the day is not
// archived.
type Archive interface {
	LoadDay(ctx context.Context, channel string, day time.Time) ([]chatlog.Message, error)
	SaveDay(ctx context.Context, channel string, day time.Time, msgs []chatlog.Message) error
}

// MaxPrefetchSpan bounds range prefetches; wider windows are ignored.
const MaxPrefetchSpan = time.Hour

// Key identifies one cache entry.
type Key struct {
	Channel string
	Day     string // UTC calendar day, 2006-01-02
}

func (k Key) String() string { return k.Channel + "|" + k.Day }

// DayKey builds the cache key covering t.
func DayKey(channel string, t time.Time) Key {
	return Key{Channel: channel, Day: t.UTC().Format("2006-01-02")}
}

// Entry is one cached day. Messages are sorted ascending by timestamp; once
// Complete flips true the entry is treated as immutable.
type Entry struct {
	Messages []chatlog.Message
	Complete bool
}

// Store is the cache and merge engine. All maps are guarded by mu; fetches
// happen outside the lock, serialized per key by the singleflight group.
type Store struct {
	src     Source
	archive Archive
	now     func() time.Time

	mu      sync.Mutex
	entries map[Key]*Entry

	group      singleflight.Group
	rangeGroup singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithArchive adds a persistent archive below the in-memory cache.
func WithArchive(a Archive) Option { return func(s *Store) { s.archive = a } }

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns a Store reading from src.
func New(src Source, opts ...Option) *Store {
	s := &Store{
		src:     src,
		now:     time.Now,
		entries: make(map[Key]*Entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Day returns the cache entry for the given channel day, fetching and
// merging as needed. On a fetch or parse failure it returns whatever was
// previously cached for the day (possibly an empty provisional entry)
// together with the error, so callers can degrade to partial data.
func (s *Store) Day(ctx context.Context, channel string, day time.Time) (Entry, error) {
	key := DayKey(channel, day)

	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.Complete {
		s.mu.Unlock()
		telemetry.Count(telemetry.CacheHits)
		return *e, nil
	}
	s.mu.Unlock()
	telemetry.Count(telemetry.CacheMisses)

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		return s.fetchDay(ctx, key, day)
	})
	entry, _ := v.(Entry)
	return entry, err
}

// fetchDay runs inside the per-key singleflight and implements the merge
// protocol: re-check completeness, resolve the archive, fetch, merge, store.
func (s *Store) fetchDay(ctx context.Context, key Key, day time.Time) (Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "logcache", "fetch-day")
	defer span.End()

	// Another caller may have completed the entry while we waited.
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.Complete {
		s.mu.Unlock()
		return *e, nil
	}
	var prev Entry
	if e, ok := s.entries[key]; ok {
		prev = *e
	}
	s.mu.Unlock()

	complete := key.Day != DayKey(key.Channel, s.now()).Day

	if complete && s.archive != nil {
		msgs, err := s.archive.LoadDay(ctx, key.Channel, day)
		switch {
		case err == nil:
			return s.store(key, Entry{Messages: msgs, Complete: true}), nil
		case errors.Is(err, ErrNoData):
			// fall through to the network
		default:
			slog.Warn("archive load failed", slog.String("key", key.String()), slog.Any("err", err))
		}
	}

	telemetry.Count(telemetry.LogFetches)
	var raw string
	var err error
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		raw, err = s.src.FetchDay(ctx, key.Channel, day)
	})
	if err != nil && !errors.Is(err, ErrNoData) {
		telemetry.Count(telemetry.LogFetchErrors)
		return prev, fmt.Errorf("fetch day %s: %w", key, err)
	}
	if errors.Is(err, ErrNoData) {
		telemetry.Count(telemetry.LogFetchNoData)
		raw = ""
	}

	fresh, perr := chatlog.ParseBlock(raw)
	if perr != nil {
		// An unparseable day counts as a failed fetch, not an empty channel.
		telemetry.Count(telemetry.LogFetchErrors)
		return prev, fmt.Errorf("parse day %s: %w", key, perr)
	}
	sortByTimestamp(fresh)

	merged := fresh
	if len(prev.Messages) > 0 {
		var appended int
		var conflict bool
		merged, appended, conflict = mergeDay(prev.Messages, fresh)
		telemetry.Add(telemetry.MessagesMerged, appended)
		if conflict {
			telemetry.Count(telemetry.MergeConflicts)
			slog.Warn("day merge overlap mismatch, using fetched data as authoritative",
				slog.String("key", key.String()))
		}
	}

	entry := s.store(key, Entry{Messages: merged, Complete: complete})
	if complete && s.archive != nil && len(merged) > 0 {
		if err := s.archive.SaveDay(ctx, key.Channel, day, merged); err != nil {
			slog.Warn("archive save failed", slog.String("key", key.String()), slog.Any("err", err))
		}
	}
	return entry, nil
}

func (s *Store) store(key Key, e Entry) Entry {
	s.mu.Lock()
	s.entries[key] = &e
	telemetry.SetCachedDays(len(s.entries))
	s.mu.Unlock()
	return e
}

// mergeDay appends the new tail of fresh onto prev. Messages strictly after
// prev's last timestamp are taken as-is; messages sharing that timestamp are
// taken only when not already present in prev's trailing equal-timestamp
// group, compared by id when both sides have one and structurally otherwise.
// conflict reports that fresh disagrees with the already-cached overlap.
func mergeDay(prev, fresh []chatlog.Message) (merged []chatlog.Message, appended int, conflict bool) {
	if len(prev) == 0 {
		return fresh, len(fresh), false
	}
	lastTs := prev[len(prev)-1].Timestamp
	trailStart := len(prev)
	for trailStart > 0 && prev[trailStart-1].Timestamp == lastTs {
		trailStart--
	}
	trailing := prev[trailStart:]

	var equal, after []chatlog.Message
	freshBefore := 0
	for _, m := range fresh {
		switch {
		case m.Timestamp > lastTs:
			after = append(after, m)
		case m.Timestamp == lastTs:
			dup := false
			for _, t := range trailing {
				if t.Equal(m) {
					dup = true
					break
				}
			}
			if !dup {
				equal = append(equal, m)
			}
		default:
			freshBefore++
		}
	}
	if freshBefore < trailStart {
		conflict = true
	}

	merged = make([]chatlog.Message, 0, len(prev)+len(equal)+len(after))
	merged = append(merged, prev...)
	merged = append(merged, equal...)
	merged = append(merged, after...)
	return merged, len(equal) + len(after), conflict
}

// Prefetch warms the cache for [from, to] with a single range fetch. Spans
// wider than MaxPrefetchSpan are ignored, fully covered windows are no-ops,
// and overlapping requests for an in-flight range share one fetch.
func (s *Store) Prefetch(ctx context.Context, channel string, from, to time.Time) error {
	span := to.Sub(from)
	if span <= 0 || span > MaxPrefetchSpan {
		slog.Debug("skipping prefetch outside span bounds", slog.Duration("span", span))
		return nil
	}

	keys := coveringKeys(channel, from, to)
	s.mu.Lock()
	covered := true
	for _, k := range keys {
		if e, ok := s.entries[k]; !ok || !e.Complete {
			covered = false
			break
		}
	}
	s.mu.Unlock()
	if covered {
		return nil
	}

	// Key the in-flight dedup by the covering day set rather than the exact
	// bounds, so overlapping seeks into the same day(s) share one fetch.
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	rangeKey := strings.Join(parts, ",")
	_, err, _ := s.rangeGroup.Do(rangeKey, func() (any, error) {
		return nil, s.prefetchRange(ctx, channel, from, to)
	})
	return err
}

func (s *Store) prefetchRange(ctx context.Context, channel string, from, to time.Time) error {
	telemetry.Count(telemetry.LogFetches)
	raw, err := s.src.FetchRange(ctx, channel, from, to)
	if errors.Is(err, ErrNoData) {
		telemetry.Count(telemetry.LogFetchNoData)
		return nil
	}
	if err != nil {
		telemetry.Count(telemetry.LogFetchErrors)
		return fmt.Errorf("fetch range: %w", err)
	}
	msgs, err := chatlog.ParseBlock(raw)
	if err != nil {
		telemetry.Count(telemetry.LogFetchErrors)
		return fmt.Errorf("parse range: %w", err)
	}
	sortByTimestamp(msgs)

	// Bucket by UTC day and merge each bucket into its (provisional) entry.
	// Range data never completes a day: only a full day fetch may do that.
	buckets := make(map[Key][]chatlog.Message)
	for _, m := range msgs {
		k := DayKey(channel, time.UnixMilli(m.Timestamp))
		buckets[k] = append(buckets[k], m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, fresh := range buckets {
		e, ok := s.entries[k]
		if !ok {
			s.entries[k] = &Entry{Messages: fresh}
			continue
		}
		if e.Complete {
			continue
		}
		merged, appended, _ := mergeDay(e.Messages, fresh)
		telemetry.Add(telemetry.MessagesMerged, appended)
		s.entries[k] = &Entry{Messages: merged}
	}
	telemetry.SetCachedDays(len(s.entries))
	return nil
}

// Messages returns the channel's messages with timestamps in [from, to],
// fetching every covering day concurrently. A day that cannot be fetched
// contributes whatever was previously cached for it; the result is always
// the best currently available union.
func (s *Store) Messages(ctx context.Context, channel string, from, to time.Time) ([]chatlog.Message, error) {
	keys := coveringKeys(channel, from, to)
	days := make([]Entry, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range keys {
		day, err := time.Parse("2006-01-02", k.Day)
		if err != nil {
			return nil, fmt.Errorf("bad day key %s: %w", k, err)
		}
		g.Go(func() error {
			entry, err := s.Day(gctx, channel, day)
			if err != nil {
				slog.Warn("day fetch degraded to cached data",
					slog.String("key", k.String()), slog.Any("err", err))
			}
			days[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Day entries usually cover disjoint ascending ranges, but the source is
	// trusted verbatim and a day's block may straddle its boundary. The read
	// path re-establishes a total order with a stable k-way merge.
	var all []chatlog.Message
	for _, e := range days {
		all = mergeOrdered(all, e.Messages)
	}
	return chatlog.Between(all, from.UTC().UnixMilli(), to.UTC().UnixMilli()), nil
}

// mergeOrdered merges two timestamp-sorted slices. Stable: on equal
// timestamps a's messages come first.
func mergeOrdered(a, b []chatlog.Message) []chatlog.Message {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]chatlog.Message, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Timestamp < a[i].Timestamp {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func coveringKeys(channel string, from, to time.Time) []Key {
	var keys []Key
	day := time.Date(from.UTC().Year(), from.UTC().Month(), from.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := to.UTC()
	for !day.After(end) {
		keys = append(keys, DayKey(channel, day))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}

func sortByTimestamp(msgs []chatlog.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
}
