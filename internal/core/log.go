package core

import "fmt"

// ErrLogFull is returned by Log.Append and Node.appendLocal when the capacity
// invariant (spec.md invariant 7) would be broken.
var ErrLogFull = fmt.Errorf("raft: log full")

// Log is the bounded ring of entries with an embedded snapshot slot,
// grounded on src/raft/raft_log.go's raftlog interface and index math
// (posOf/idxOf), generalized to carry its own capacity ceiling instead
// of delegating to a write-ahead file.
type Log struct {
	snapshot *SnapshotEntry // nil until the first snapshot is installed
	entries  []LogEntry     // entries at index > snapshotIndex

	capacity int // commitCountToTakeSnapshot + maxUncommittedLogEntryCount + keptAfterSnapshot
}

// NewLog builds an empty log with the capacity ceiling implied by cfg
// (spec.md invariant 7).
func NewLog(cfg Config) *Log {
	return &Log{
		capacity: cfg.CommitCountToTakeSnapshot + cfg.MaxUncommittedLogEntryCount + cfg.KeptAfterSnapshot,
	}
}

func (l *Log) snapshotIndex() LogIndex {
	if l.snapshot == nil {
		return NoIndex
	}
	return l.snapshot.Index
}

func (l *Log) snapshotTerm() Term {
	if l.snapshot == nil {
		return 0
	}
	return l.snapshot.Term
}

// SnapshotIndex exposes the snapshot slot's index, 0 if none.
func (l *Log) SnapshotIndex() LogIndex { return l.snapshotIndex() }

// SnapshotEntry exposes the current snapshot, nil if none exists.
func (l *Log) SnapshotEntry() *SnapshotEntry { return l.snapshot }

func (l *Log) posOf(idx LogIndex) int {
	return int(idx) - int(l.snapshotIndex()) - 1
}

func (l *Log) idxOf(pos int) LogIndex {
	return LogIndex(pos) + l.snapshotIndex() + 1
}

// LastLogOrSnapshotIndex is the highest index known, whether held as a
// log entry or folded into the snapshot slot.
func (l *Log) LastLogOrSnapshotIndex() LogIndex {
	if len(l.entries) == 0 {
		return l.snapshotIndex()
	}
	return l.entries[len(l.entries)-1].Index
}

// LastLogOrSnapshotTerm is the term of LastLogOrSnapshotIndex.
func (l *Log) LastLogOrSnapshotTerm() Term {
	if len(l.entries) == 0 {
		return l.snapshotTerm()
	}
	return l.entries[len(l.entries)-1].Term
}

// ContainsEntry reports whether idx names a live log entry (not folded
// into the snapshot, not beyond the end of the log).
func (l *Log) ContainsEntry(idx LogIndex) bool {
	pos := l.posOf(idx)
	return pos >= 0 && pos < len(l.entries)
}

// GetEntry returns the entry at idx; idx must be in
// (snapshotIndex, lastLogOrSnapshotIndex].
func (l *Log) GetEntry(idx LogIndex) (LogEntry, bool) {
	pos := l.posOf(idx)
	if pos < 0 || pos >= len(l.entries) {
		return LogEntry{}, false
	}
	return l.entries[pos], true
}

// Append adds one entry at the end of the log, refusing with
// ErrLogFull if the capacity invariant would be broken.
func (l *Log) Append(entry LogEntry) error {
	if len(l.entries) >= l.capacity {
		return ErrLogFull
	}
	l.entries = append(l.entries, entry)
	return nil
}

// TruncateFrom removes the suffix at index >= idx. Only legal for
// uncommitted indices on a follower; the caller is responsible for
// enforcing that (spec.md §4.1).
func (l *Log) TruncateFrom(idx LogIndex) {
	pos := l.posOf(idx)
	if pos < 0 {
		l.entries = l.entries[:0]
		return
	}
	if pos >= len(l.entries) {
		return
	}
	l.entries = l.entries[:pos]
}

// Slice returns entries in [from, to) log-index range; to == NoIndex
// means "through the end of the log".
func (l *Log) Slice(from LogIndex, to LogIndex) []LogEntry {
	start := l.posOf(from)
	if start < 0 {
		start = 0
	}
	if start > len(l.entries) {
		start = len(l.entries)
	}
	end := len(l.entries)
	if to != NoIndex {
		end = l.posOf(to)
		if end > len(l.entries) {
			end = len(l.entries)
		}
		if end < start {
			end = start
		}
	}
	out := make([]LogEntry, end-start)
	copy(out, l.entries[start:end])
	return out
}

// Length is the number of live (non-snapshotted) entries.
func (l *Log) Length() int { return len(l.entries) }

// SetSnapshot installs a new snapshot and drops every entry before
// keepFromIndex. A keepFromIndex below snap.Index+1 is raised to
// snap.Index+1, so entries at or below the snapshot index are never
// retained; live entries after it stay in the log.
func (l *Log) SetSnapshot(snap SnapshotEntry, keepFromIndex LogIndex) {
	if keepFromIndex < snap.Index+1 {
		keepFromIndex = snap.Index + 1
	}
	keepPos := l.posOf(keepFromIndex)
	if keepPos < 0 {
		keepPos = 0
	}
	if keepPos > len(l.entries) {
		keepPos = len(l.entries)
	}
	kept := make([]LogEntry, len(l.entries)-keepPos)
	copy(kept, l.entries[keepPos:])
	l.snapshot = &snap
	l.entries = kept
}

// Clear drops every log entry and installs snap as the snapshot slot
// (used by InstallSnapshot when the follower falls fully behind the
// snapshot).
func (l *Log) Clear(snap SnapshotEntry) {
	l.snapshot = &snap
	l.entries = nil
}
