// Package stream batches incrementally produced text before it is emitted
// downstream. LLM tokens arrive a few characters at a time; forwarding each
// fragment to the client individually wastes network round-trips and makes
// the UI flicker. The accumulator releases text in semantically sized
// batches without letting any buffered character wait past a latency bound.
package stream

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultDelimiters are the sentence and clause terminators that trigger an
// early batch emit, covering English and CJK punctuation plus newlines.
const DefaultDelimiters = ".!?;\n。！？；…"

// Accumulator buffers text and releases it in batches. Safe for concurrent
// use, although a single stream normally feeds it from one goroutine.
type Accumulator struct {
	mu sync.Mutex

	minChunkSize int
	maxWait      time.Duration
	delimiters   string

	buf     strings.Builder
	firstAt time.Time // when the oldest buffered character arrived
	emitted uint64

	// now is replaceable in tests.
	now func() time.Time
}

// NewAccumulator creates an Accumulator that emits once the buffer reaches
// minChunkSize bytes, ends in a sentence delimiter, or has held text longer
// than maxWait.
func NewAccumulator(minChunkSize int, maxWait time.Duration) *Accumulator {
	return &Accumulator{
		minChunkSize: minChunkSize,
		maxWait:      maxWait,
		delimiters:   DefaultDelimiters,
		now:          time.Now,
	}
}

// SetDelimiters replaces the delimiter set. Intended for configuration at
// construction time, before the accumulator receives text.
func (a *Accumulator) SetDelimiters(delims string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delimiters = delims
}

// Add appends text to the buffer. If the addition completes a batch — by
// size, by a sentence-ending tail, or by age of the oldest buffered
// character — the batch is returned and the buffer cleared. Otherwise it
// returns ("", false) and keeps accumulating.
func (a *Accumulator) Add(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf.Len() == 0 {
		a.firstAt = a.now()
	}
	a.buf.WriteString(text)

	if a.shouldEmitLocked() {
		return a.emitLocked(), true
	}
	return "", false
}

// Flush forces emission of whatever is buffered, clearing the buffer.
// Returns ("", false) if the buffer is empty. Used at stream end.
func (a *Accumulator) Flush() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.buf.Len() == 0 {
		return "", false
	}
	return a.emitLocked(), true
}

// EmittedBatches returns the number of batches emitted so far.
func (a *Accumulator) EmittedBatches() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emitted
}

// Pending returns the number of bytes currently buffered.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Len()
}

// shouldEmitLocked checks the three emit triggers. Caller holds a.mu.
func (a *Accumulator) shouldEmitLocked() bool {
	if a.buf.Len() >= a.minChunkSize {
		return true
	}

	if r, size := utf8.DecodeLastRuneInString(a.buf.String()); size > 0 &&
		strings.ContainsRune(a.delimiters, r) {
		return true
	}

	return a.now().Sub(a.firstAt) >= a.maxWait
}

// emitLocked returns the buffered text and resets the buffer.
// Caller holds a.mu.
func (a *Accumulator) emitLocked() string {
	batch := a.buf.String()
	a.buf.Reset()
	a.emitted++
	return batch
}
