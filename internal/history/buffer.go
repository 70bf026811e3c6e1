// Package history maintains the rolling sample window the decision
// engine reads its short-window statistics from, and batches committed
// rows out to the flat log file so the hot path never touches the
// filesystem per sample.
package history

import (
	"fmt"
	"time"

	"github.com/saeidbarati157/poet/internal/numeric"
)

// Sample is one reported host iteration. Samples are immutable once
// appended.
type Sample struct {
	Iteration uint64
	Perf      numeric.Real
	Power     numeric.Real
	StateID   uint
	At        time.Time
}

// Buffer is a bounded ring of the most recent samples. Every
// flushEvery appended samples it commits that batch to the log writer,
// if one is configured; retention for statistics continues regardless.
type Buffer struct {
	capacity   int
	flushEvery int

	samples []Sample
	head    int // next write position
	size    int

	pending []Sample // rows appended since the last flush
	writer  *logWriter

	appended     uint64
	rowsWritten  uint64
	flushesTotal uint64
}

// NewBuffer opens a buffer retaining capacity samples. If logPath is
// non-empty the file is created or truncated and one batch of
// flushEvery rows is appended per flushEvery samples.
func NewBuffer(capacity, flushEvery int, logPath string) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history: capacity must be > 0, got %d", capacity)
	}
	b := &Buffer{
		capacity:   capacity,
		flushEvery: flushEvery,
		samples:    make([]Sample, capacity),
	}
	if logPath != "" {
		if flushEvery <= 0 {
			return nil, fmt.Errorf("history: flush depth must be > 0 when logging, got %d", flushEvery)
		}
		w, err := newLogWriter(logPath)
		if err != nil {
			return nil, fmt.Errorf("history: open log: %w", err)
		}
		b.writer = w
		b.pending = make([]Sample, 0, flushEvery)
	}
	return b, nil
}

// Append records one sample, evicting the oldest when full, and flushes
// a log batch when the flush depth is reached.
func (b *Buffer) Append(s Sample) error {
	b.samples[b.head] = s
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.appended++

	if b.writer == nil {
		return nil
	}
	b.pending = append(b.pending, s)
	if len(b.pending) < b.flushEvery {
		return nil
	}
	return b.flush()
}

func (b *Buffer) flush() error {
	if b.writer == nil || len(b.pending) == 0 {
		return nil
	}
	if err := b.writer.writeBatch(b.pending); err != nil {
		return fmt.Errorf("history: flush log batch: %w", err)
	}
	b.rowsWritten += uint64(len(b.pending))
	b.flushesTotal++
	b.pending = b.pending[:0]
	return nil
}

// Window returns the mean performance and power over the most recent n
// samples (fewer if that many have not arrived yet). ok is false when
// the buffer is empty.
func (b *Buffer) Window(n int) (meanPerf, meanPower numeric.Real, ok bool) {
	if b.size == 0 || n <= 0 {
		return 0, 0, false
	}
	if n > b.size {
		n = b.size
	}
	perfs := make([]numeric.Real, 0, n)
	powers := make([]numeric.Real, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.capacity*2) % b.capacity
		perfs = append(perfs, b.samples[idx].Perf)
		powers = append(powers, b.samples[idx].Power)
	}
	return numeric.Mean(perfs), numeric.Mean(powers), true
}

// Len returns the number of retained samples.
func (b *Buffer) Len() int { return b.size }

// Appended returns the total number of samples ever appended.
func (b *Buffer) Appended() uint64 { return b.appended }

// RowsWritten returns the total number of rows committed to the log.
func (b *Buffer) RowsWritten() uint64 { return b.rowsWritten }

// Flushes returns the number of committed log batches.
func (b *Buffer) Flushes() uint64 { return b.flushesTotal }

// Close flushes any partial batch and closes the log file. Safe to call
// on a buffer with no writer and safe to call twice.
func (b *Buffer) Close() error {
	if b.writer == nil {
		return nil
	}
	flushErr := b.flush()
	closeErr := b.writer.close()
	b.writer = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
