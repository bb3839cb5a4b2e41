package msglog

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var base = time.Unix(1_700_000_000, 0)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func texts(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func sequences(msgs []Message) []uint64 {
	out := make([]uint64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sequence)
	}
	return out
}

func TestAppendAssignsSequences(t *testing.T) {
	l := New(10)

	if got := l.CurrentMaxSequence(); got != 0 {
		t.Fatalf("empty log max sequence = %d, want 0", got)
	}

	for i := 1; i <= 5; i++ {
		m := l.Append(at(i), "", "", fmt.Sprintf("m%d", i))
		if m.Sequence != uint64(i) {
			t.Errorf("append %d got sequence %d", i, m.Sequence)
		}
	}

	if got := l.CurrentMaxSequence(); got != 5 {
		t.Errorf("max sequence = %d, want 5", got)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3, 4, 5}, sequences(l.SinceSequence(0))); diff != "" {
		t.Errorf("sequence order mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendTruncatesToSeconds(t *testing.T) {
	l := New(10)
	m := l.Append(base.Add(1500*time.Millisecond), "", "", "x")
	if !m.Timestamp.Equal(at(1)) {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, at(1))
	}
}

func TestSequenceOrderIsAppendOrder(t *testing.T) {
	l := New(100)
	// Timestamps deliberately out of order.
	for i, sec := range []int{30, 10, 20, 10, 50, 0} {
		l.Append(at(sec), "", "", fmt.Sprintf("m%d", i))
	}

	want := []string{"m0", "m1", "m2", "m3", "m4", "m5"}
	if diff := cmp.Diff(want, texts(l.SinceSequence(0))); diff != "" {
		t.Errorf("by-sequence order mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeOrderIsStable(t *testing.T) {
	l := New(100)
	for i, sec := range []int{30, 10, 20, 10, 50, 0, 20} {
		l.Append(at(sec), "", "", fmt.Sprintf("m%d", i))
	}

	// Before the oldest timestamp: whole log in time order, ties by arrival.
	want := []string{"m5", "m1", "m3", "m2", "m6", "m0", "m4"}
	if diff := cmp.Diff(want, texts(l.SinceTime(at(-1)))); diff != "" {
		t.Errorf("by-time order mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeOrderMatchesStableSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New(1000)

	var appended []Message
	for i := 0; i < 500; i++ {
		appended = append(appended, l.Append(at(rng.Intn(40)), "", "", fmt.Sprintf("m%d", i)))
	}

	want := make([]Message, len(appended))
	copy(want, appended)
	sort.SliceStable(want, func(i, j int) bool {
		return want[i].Timestamp.Before(want[j].Timestamp)
	})

	if diff := cmp.Diff(texts(want), texts(l.SinceTime(at(-1)))); diff != "" {
		t.Errorf("by-time order is not a stable sort (-want +got):\n%s", diff)
	}
}

func TestCapacityEvictsOldestTimestamp(t *testing.T) {
	l := New(2)
	l.Append(at(10), "", "", "A")
	l.Append(at(20), "", "", "B")
	l.Append(at(30), "", "", "C")

	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
	if diff := cmp.Diff([]string{"B", "C"}, texts(l.SinceSequence(0))); diff != "" {
		t.Errorf("after eviction (-want +got):\n%s", diff)
	}
	if got := l.CurrentMaxSequence(); got != 3 {
		t.Errorf("max sequence = %d, want 3", got)
	}
}

func TestEvictionRemovesTimeHeadNotSequenceHead(t *testing.T) {
	l := New(3)
	l.Append(at(50), "", "", "late")
	l.Append(at(10), "", "", "early")
	l.Append(at(30), "", "", "middle")
	l.Append(at(60), "", "", "newest")

	if diff := cmp.Diff([]string{"late", "middle", "newest"}, texts(l.SinceSequence(0))); diff != "" {
		t.Errorf("by-sequence after eviction (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"middle", "late", "newest"}, texts(l.SinceTime(at(0)))); diff != "" {
		t.Errorf("by-time after eviction (-want +got):\n%s", diff)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New(16)

	for i := 0; i < 200; i++ {
		l.Append(at(rng.Intn(100)), "", "", "x")
		if l.Len() > 16 {
			t.Fatalf("after %d appends len = %d, exceeds capacity", i+1, l.Len())
		}
		if seq := len(l.SinceSequence(0)); seq != l.Len() {
			t.Fatalf("sequence index has %d entries, log has %d", seq, l.Len())
		}
		if tm := len(l.SinceTime(at(-1))); tm != l.Len() {
			t.Fatalf("time index has %d entries, log has %d", tm, l.Len())
		}
	}

	st := l.Stats()
	if st.Evicted != 200-16 {
		t.Errorf("evicted = %d, want %d", st.Evicted, 200-16)
	}
}

func TestSinceSequence(t *testing.T) {
	l := New(3)
	for i := 1; i <= 5; i++ {
		l.Append(at(i), "", "", fmt.Sprintf("m%d", i))
	}
	// Live: m3 m4 m5.

	tests := []struct {
		name string
		n    uint64
		want []string
	}{
		{"from zero resends everything live", 0, []string{"m3", "m4", "m5"}},
		{"evicted cursor resends everything live", 1, []string{"m3", "m4", "m5"}},
		{"just before oldest live", 2, []string{"m3", "m4", "m5"}},
		{"partial", 3, []string{"m4", "m5"}},
		{"caught up", 5, nil},
		{"beyond max", 99, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(l.SinceSequence(tt.n))
			if len(tt.want) == 0 && len(got) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SinceSequence(%d) (-want +got):\n%s", tt.n, diff)
			}
		})
	}
}

func TestSinceTime(t *testing.T) {
	l := New(10)
	l.Append(at(10), "", "", "a")
	l.Append(at(20), "", "", "b1")
	l.Append(at(20), "", "", "b2")
	l.Append(at(30), "", "", "c")

	tests := []struct {
		name string
		t    time.Time
		want []string
	}{
		{"before everything", at(5), []string{"a", "b1", "b2", "c"}},
		{"exact match starts at last equal", at(20), []string{"b2", "c"}},
		{"between entries includes boundary", at(25), []string{"b2", "c"}},
		{"after everything returns newest", at(99), []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, texts(l.SinceTime(tt.t))); diff != "" {
				t.Errorf("SinceTime (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmptyLog(t *testing.T) {
	l := New(0)
	if l.Capacity() != DefaultCapacity {
		t.Errorf("capacity = %d, want default %d", l.Capacity(), DefaultCapacity)
	}
	if got := l.SinceSequence(0); got != nil {
		t.Errorf("SinceSequence on empty log = %v", got)
	}
	if got := l.SinceTime(base); got != nil {
		t.Errorf("SinceTime on empty log = %v", got)
	}
	st := l.Stats()
	if st.Live != 0 || !st.Oldest.IsZero() || !st.Newest.IsZero() {
		t.Errorf("unexpected stats on empty log: %+v", st)
	}
}

func TestMessageFieldsPreserved(t *testing.T) {
	l := New(10)
	l.Append(at(1), "me@example.com", "you@example.com", "(you) hi")

	got := l.SinceSequence(0)
	want := []Message{{
		Sequence:  1,
		Timestamp: at(1),
		Account:   "me@example.com",
		Origin:    "you@example.com",
		Text:      "(you) hi",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}
