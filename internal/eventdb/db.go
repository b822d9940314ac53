// Package eventdb implements C8, the append-only event log the collector
// writes to and the reassembler (C9) reads from.
package eventdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rizsotto/Bear-sub001/internal/event"
)

// entry pairs an Event with the monotonic sequence number assigned at
// insertion, used to break ties between events sharing a timestamp
// (spec.md §4.8: "Assigns an internal sequence number for deterministic
// tie-breaking when timestamps collide").
type entry struct {
	seq int64
	ev  event.Event
}

// DB is C8: a mutex-serialized, append-only event log. Durability is
// optional — spec.md §4.8 says implementations MAY back it with an
// on-disk file or an in-process structure, and only requires the ordered
// iteration contract. DB always keeps an in-memory copy for fast
// iteration; when constructed with a backing file it also appends each
// record as a newline-delimited JSON line, so a build that crashes mid-
// run still leaves a recoverable partial database on disk.
type DB struct {
	mu      sync.Mutex
	entries []entry
	nextSeq int64
	file    *os.File
}

// NewInMemory returns a DB with no on-disk backing, suitable for a build
// the supervisor can fully drain before reading the database back.
func NewInMemory() *DB {
	return &DB{}
}

// NewFile returns a DB that also appends each inserted event to path as
// newline-delimited JSON, truncating any prior contents.
func NewFile(path string) (*DB, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventdb: opening %s: %w", path, err)
	}
	return &DB{file: f}, nil
}

// Insert appends e to the log, assigning it the next sequence number.
// Insertion is O(1) amortized, per spec.md §4.8.
func (db *DB) Insert(e event.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.nextSeq++
	db.entries = append(db.entries, entry{seq: db.nextSeq, ev: e})

	if db.file != nil {
		payload, err := event.Marshal(e)
		if err != nil {
			return fmt.Errorf("eventdb: marshaling event: %w", err)
		}
		if _, err := db.file.Write(append(payload, '\n')); err != nil {
			return fmt.Errorf("eventdb: appending to file: %w", err)
		}
	}
	return nil
}

// IterateByTimestamp returns every inserted event ordered by
// (timestamp, sequence), per spec.md §4.8. The returned slice is a
// snapshot; it is only meaningful to call this after all writers have
// been joined (i.e. after the collector has shut down), per spec.md §5's
// concurrency note — DB does not protect against concurrent Insert and
// IterateByTimestamp producing an inconsistent snapshot by design, since
// that overlap should never happen.
func (db *DB) IterateByTimestamp() []event.Event {
	db.mu.Lock()
	defer db.mu.Unlock()

	sorted := make([]entry, len(db.entries))
	copy(sorted, db.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ev.Timestamp.Equal(sorted[j].ev.Timestamp) {
			return sorted[i].ev.Timestamp.Before(sorted[j].ev.Timestamp)
		}
		return sorted[i].seq < sorted[j].seq
	})

	out := make([]event.Event, len(sorted))
	for i, e := range sorted {
		out[i] = e.ev
	}
	return out
}

// Len reports how many events have been inserted.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.entries)
}

// Close flushes and closes the on-disk backing file, if any.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.file == nil {
		return nil
	}
	return db.file.Close()
}

// LoadFile reads a newline-delimited event log written by NewFile's DB
// and returns the decoded events in file order. Any line that fails to
// unmarshal is skipped silently rather than treated as a fatal error,
// wherever it occurs in the file: a process killed mid-write can leave a
// truncated trailing record, and
// spec.md's DrainTimeout behavior ("the partial DB is still processed")
// requires tolerating that instead of discarding the whole file.
func LoadFile(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventdb: opening %s: %w", path, err)
	}
	defer f.Close()

	var events []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), event.MaxFrameSize)

	var lastErr error
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := event.Unmarshal(line)
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return events, fmt.Errorf("eventdb: scanning %s: %w", path, err)
	}
	_ = lastErr // failing lines, trailing or not, are skipped
	return events, nil
}
