// Package window keeps the rolling set of accepted records a session can see
package window

import (
	"fmt"
	"strings"

	"github.com/wonny/salespulse/internal/sales"
)

// Retention selects how much history a Buffer keeps
type Retention string

const (
	// RetentionSliding keeps only the most recent K records
	RetentionSliding Retention = "sliding"
	// RetentionUnbounded keeps every record since the last reset
	RetentionUnbounded Retention = "unbounded"
)

// DefaultSize is the sliding window length used by the dashboard
const DefaultSize = 200

// ParseRetention validates a retention policy name
func ParseRetention(s string) (Retention, error) {
	switch Retention(strings.ToLower(strings.TrimSpace(s))) {
	case RetentionSliding:
		return RetentionSliding, nil
	case RetentionUnbounded:
		return RetentionUnbounded, nil
	default:
		return "", fmt.Errorf("unknown retention policy %q", s)
	}
}

// Buffer is an ordered ring of clean records with FIFO eviction
// Not safe for concurrent use; the owning session serialises access
type Buffer struct {
	items    []sales.CleanRecord
	head     int // index of the oldest record
	size     int
	capacity int // <= 0 means unbounded

	appended int64
	evicted  int64
}

// New creates a buffer holding at most capacity records
// capacity <= 0 keeps everything
func New(capacity int) *Buffer {
	b := &Buffer{capacity: capacity}
	if capacity > 0 {
		b.items = make([]sales.CleanRecord, capacity)
	}
	return b
}

// NewWithPolicy builds a buffer from a retention policy and window size
func NewWithPolicy(policy Retention, size int) *Buffer {
	if policy == RetentionUnbounded {
		return New(0)
	}
	if size <= 0 {
		size = DefaultSize
	}
	return New(size)
}

// Append adds rec as the newest record, evicting the oldest when full
func (b *Buffer) Append(rec sales.CleanRecord) {
	b.appended++

	if b.capacity <= 0 {
		b.items = append(b.items, rec)
		b.size++
		return
	}

	if b.size < b.capacity {
		b.items[(b.head+b.size)%b.capacity] = rec
		b.size++
		return
	}

	// full: overwrite the oldest slot and advance head
	b.items[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	b.evicted++
}

// Reset empties the buffer and its counters
func (b *Buffer) Reset() {
	if b.capacity > 0 {
		clear(b.items)
	} else {
		b.items = nil
	}
	b.head = 0
	b.size = 0
	b.appended = 0
	b.evicted = 0
}

// Snapshot returns a copy of the buffered records, oldest first
func (b *Buffer) Snapshot() []sales.CleanRecord {
	out := make([]sales.CleanRecord, b.size)
	if b.capacity <= 0 {
		copy(out, b.items)
		return out
	}
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}

// Len returns the number of buffered records
func (b *Buffer) Len() int { return b.size }

// Cap returns the configured capacity, 0 when unbounded
func (b *Buffer) Cap() int {
	if b.capacity <= 0 {
		return 0
	}
	return b.capacity
}

// Empty reports whether the buffer holds no records
func (b *Buffer) Empty() bool { return b.size == 0 }

// Appended counts records appended since the last reset
func (b *Buffer) Appended() int64 { return b.appended }

// Evicted counts records dropped by the sliding window since the last reset
func (b *Buffer) Evicted() int64 { return b.evicted }

// Retention reports the policy this buffer applies
func (b *Buffer) Retention() Retention {
	if b.capacity <= 0 {
		return RetentionUnbounded
	}
	return RetentionSliding
}
