package machine

import (
	"sync"
	"time"

	"github.com/mastercactapus/gcnc/coord"
)

const journalCapacity = 1000

// JournalEntry is one retained command for diagnosis: what was sent,
// when, and the expected-position delta it produced (nil for commands
// that don't move anything).
type JournalEntry struct {
	Command               string
	Timestamp             time.Time
	ExpectedPositionDelta *coord.Point
}

// journal is the bounded ring buffer of the most recent journalCapacity
// entries, owned exclusively by the Controller.
type journal struct {
	mx      sync.Mutex
	entries []JournalEntry
	start   int
}

func newJournal() *journal {
	return &journal{entries: make([]JournalEntry, 0, journalCapacity)}
}

func (j *journal) record(e JournalEntry) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if len(j.entries) < journalCapacity {
		j.entries = append(j.entries, e)
		return
	}
	j.entries[j.start] = e
	j.start = (j.start + 1) % journalCapacity
}

// Entries returns the retained entries in chronological order.
func (j *journal) Entries() []JournalEntry {
	j.mx.Lock()
	defer j.mx.Unlock()
	if len(j.entries) < journalCapacity {
		out := make([]JournalEntry, len(j.entries))
		copy(out, j.entries)
		return out
	}
	out := make([]JournalEntry, journalCapacity)
	n := copy(out, j.entries[j.start:])
	copy(out[n:], j.entries[:j.start])
	return out
}
