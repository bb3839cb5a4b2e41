package msglog

import (
	"math"
	"time"

	"github.com/google/btree"
)

// DefaultCapacity is the number of live messages a Log holds before it
// starts evicting.
const DefaultCapacity = 5000

// btreeDegree is the branching factor of both indexes.
const btreeDegree = 32

// Message is a single rendered entry in the log. Messages are immutable once
// appended; the log hands out copies.
type Message struct {
	Sequence  uint64    // 1-based, strictly increasing, never reused
	Timestamp time.Time // second resolution, caller supplied
	Account   string    // account the message arrived on, "" if none
	Origin    string    // correspondent the message is from, "" if none
	Text      string
}

// Stats is a point-in-time summary of the log.
type Stats struct {
	Live        int       `json:"live"`
	Capacity    int       `json:"capacity"`
	MaxSequence uint64    `json:"max_sequence"`
	Evicted     uint64    `json:"evicted"`
	Oldest      time.Time `json:"oldest,omitzero"`
	Newest      time.Time `json:"newest,omitzero"`
}

// Log is a capacity-bounded store of messages kept in two orders at once:
// by sequence (append order) and by timestamp (stable on arrival).
//
// Log is not safe for concurrent use. The relay serializes all access.
type Log struct {
	capacity int
	lastSeq  uint64
	evicted  uint64

	bySeq  *btree.BTreeG[*Message]
	byTime *btree.BTreeG[*Message]
}

// New returns an empty log holding at most capacity messages. A capacity
// below 1 selects DefaultCapacity.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		bySeq:    btree.NewG(btreeDegree, lessSequence),
		byTime:   btree.NewG(btreeDegree, lessTime),
	}
}

func lessSequence(a, b *Message) bool {
	return a.Sequence < b.Sequence
}

// lessTime orders by timestamp, then by sequence. Sequence is assigned in
// insertion order, so equal timestamps keep their arrival order.
func lessTime(a, b *Message) bool {
	at, bt := a.Timestamp.Unix(), b.Timestamp.Unix()
	if at != bt {
		return at < bt
	}
	return a.Sequence < b.Sequence
}

// Append assigns the next sequence number to a new message and inserts it in
// both orders. When the log is full the message with the oldest timestamp is
// evicted first.
func (l *Log) Append(ts time.Time, account, origin, text string) Message {
	if l.bySeq.Len() >= l.capacity {
		l.evictOldest()
	}

	l.lastSeq++
	m := &Message{
		Sequence:  l.lastSeq,
		Timestamp: ts.Truncate(time.Second),
		Account:   account,
		Origin:    origin,
		Text:      text,
	}
	l.bySeq.ReplaceOrInsert(m)
	l.byTime.ReplaceOrInsert(m)
	return *m
}

func (l *Log) evictOldest() {
	head, ok := l.byTime.DeleteMin()
	if !ok {
		return
	}
	l.bySeq.Delete(head)
	l.evicted++
}

// SinceSequence returns every live message with a sequence greater than n,
// in sequence order. If n predates the oldest live message the whole log is
// returned: evicted-but-seen and evicted-and-missed look the same, and the
// log resends what it still holds.
func (l *Log) SinceSequence(n uint64) []Message {
	if n >= l.lastSeq {
		return nil
	}

	var out []Message
	l.bySeq.AscendGreaterOrEqual(&Message{Sequence: n + 1}, func(m *Message) bool {
		out = append(out, *m)
		return true
	})
	return out
}

// SinceTime returns messages in time order starting at the last live message
// stamped at or before t. That boundary message is included, so consecutive
// time polls overlap by one entry. If every live message is newer than t the
// whole log is returned.
func (l *Log) SinceTime(t time.Time) []Message {
	pivot := &Message{Timestamp: t, Sequence: math.MaxUint64}

	var start *Message
	l.byTime.DescendLessOrEqual(pivot, func(m *Message) bool {
		start = m
		return false
	})

	out := make([]Message, 0, l.byTime.Len())
	collect := func(m *Message) bool {
		out = append(out, *m)
		return true
	}
	if start != nil {
		l.byTime.AscendGreaterOrEqual(start, collect)
	} else {
		l.byTime.Ascend(collect)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CurrentMaxSequence returns the most recently assigned sequence number, or 0
// if nothing was ever appended. It does not go down when messages are evicted.
func (l *Log) CurrentMaxSequence() uint64 {
	return l.lastSeq
}

// Len returns the number of live messages.
func (l *Log) Len() int {
	return l.bySeq.Len()
}

// Capacity returns the eviction ceiling.
func (l *Log) Capacity() int {
	return l.capacity
}

// Stats summarizes the log.
func (l *Log) Stats() Stats {
	s := Stats{
		Live:        l.bySeq.Len(),
		Capacity:    l.capacity,
		MaxSequence: l.lastSeq,
		Evicted:     l.evicted,
	}
	if m, ok := l.byTime.Min(); ok {
		s.Oldest = m.Timestamp
	}
	if m, ok := l.byTime.Max(); ok {
		s.Newest = m.Timestamp
	}
	return s
}
