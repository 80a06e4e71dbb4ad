package chatlog

import "testing"

func seq(timestamps ...int64) []Message {
	msgs := make([]Message, len(timestamps))
	for i, ts := range timestamps {
		msgs[i] = Message{Timestamp: ts}
	}
	return msgs
}

func timestamps(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Timestamp
	}
	return out
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBetween(t *testing.T) {
	msgs := seq(10, 20, 20, 30, 40, 50)
	tests := []struct {
		name       string
		start, end int64
		want       []int64
	}{
		{"inner range", 20, 40, []int64{20, 20, 30, 40}},
		{"exact bounds", 10, 50, []int64{10, 20, 20, 30, 40, 50}},
		{"between elements", 21, 29, nil},
		{"before all", 0, 5, nil},
		{"after all", 60, 100, nil},
		{"inverted", 40, 20, nil},
		{"single element", 30, 30, []int64{30}},
		{"open start", 0, 20, []int64{10, 20, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timestamps(Between(msgs, tt.start, tt.end))
			if !equalInt64(got, tt.want) {
				t.Errorf("Between(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
	if Between(nil, 0, 100) != nil {
		t.Error("Between(nil) != nil")
	}
}

func TestWindow(t *testing.T) {
	msgs := seq(10, 20, 30, 40, 50)
	tests := []struct {
		name        string
		current     int64
		limit       int
		includeNext bool
		want        []int64
	}{
		{"plain window", 30, 2, false, []int64{20, 30}},
		{"window at tail", 100, 3, false, []int64{30, 40, 50}},
		{"limit exceeds length", 30, 10, false, []int64{10, 20, 30}},
		{"before first", 5, 3, false, nil},
		{"include next", 30, 2, true, []int64{20, 30, 40}},
		{"include next at tail", 50, 2, true, []int64{40, 50}},
		{"exact timestamp", 40, 1, false, []int64{40}},
		{"between timestamps", 35, 2, false, []int64{20, 30}},
		{"zero limit", 30, 0, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timestamps(Window(msgs, tt.current, tt.limit, tt.includeNext))
			if !equalInt64(got, tt.want) {
				t.Errorf("Window(%d, %d, %v) = %v, want %v", tt.current, tt.limit, tt.includeNext, got, tt.want)
			}
		})
	}
}

func TestWindowNeverExceedsLimit(t *testing.T) {
	msgs := seq(1, 2, 3, 4, 5, 6, 7, 8)
	for current := int64(0); current <= 9; current++ {
		for limit := 1; limit <= 4; limit++ {
			got := Window(msgs, current, limit, false)
			if len(got) > limit {
				t.Fatalf("Window(%d, %d) returned %d messages", current, limit, len(got))
			}
			for _, m := range got {
				if m.Timestamp > current {
					t.Fatalf("Window(%d, %d) returned future timestamp %d", current, limit, m.Timestamp)
				}
			}
			ext := Window(msgs, current, limit, true)
			if len(ext) > limit+1 {
				t.Fatalf("Window(%d, %d, next) returned %d messages", current, limit, len(ext))
			}
		}
	}
}
