package core

import "testing"

// testConfig gives a Log a small, easy-to-exhaust capacity so append
// and truncation edge cases surface with a handful of entries instead
// of thousands.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CommitCountToTakeSnapshot = 100
	cfg.MaxUncommittedLogEntryCount = 10
	cfg.KeptAfterSnapshot = 5
	return cfg
}

func TestLogAppendAndGet(t *testing.T) {
	l := NewLog(testConfig())
	if l.LastLogOrSnapshotIndex() != NoIndex {
		t.Fatalf("empty log: want LastLogOrSnapshotIndex=0, got %d", l.LastLogOrSnapshotIndex())
	}
	for i := 1; i <= 3; i++ {
		if err := l.Append(LogEntry{Index: LogIndex(i), Term: 1}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if l.Length() != 3 {
		t.Fatalf("want length 3, got %d", l.Length())
	}
	e, ok := l.GetEntry(2)
	if !ok || e.Index != 2 {
		t.Fatalf("GetEntry(2) = %+v, %v", e, ok)
	}
	if _, ok := l.GetEntry(4); ok {
		t.Fatalf("GetEntry(4) should miss on a 3-entry log")
	}
}

func TestLogAppendRefusesPastCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.CommitCountToTakeSnapshot = 0
	cfg.MaxUncommittedLogEntryCount = 2
	cfg.KeptAfterSnapshot = 0
	l := NewLog(cfg)
	if err := l.Append(LogEntry{Index: 1, Term: 1}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := l.Append(LogEntry{Index: 2, Term: 1}); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := l.Append(LogEntry{Index: 3, Term: 1}); err != ErrLogFull {
		t.Fatalf("append past capacity: want ErrLogFull, got %v", err)
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l := NewLog(testConfig())
	for i := 1; i <= 5; i++ {
		_ = l.Append(LogEntry{Index: LogIndex(i), Term: 1})
	}
	l.TruncateFrom(3)
	if l.Length() != 2 {
		t.Fatalf("want length 2 after truncating from 3, got %d", l.Length())
	}
	if l.LastLogOrSnapshotIndex() != 2 {
		t.Fatalf("want last index 2, got %d", l.LastLogOrSnapshotIndex())
	}
	if l.ContainsEntry(3) {
		t.Fatalf("entry 3 should have been truncated")
	}
}

func TestLogSetSnapshotRetainsTail(t *testing.T) {
	l := NewLog(testConfig())
	for i := 1; i <= 6; i++ {
		_ = l.Append(LogEntry{Index: LogIndex(i), Term: 1})
	}
	l.SetSnapshot(SnapshotEntry{Index: 4, Term: 1}, 5)
	if l.SnapshotIndex() != 4 {
		t.Fatalf("want snapshot index 4, got %d", l.SnapshotIndex())
	}
	if l.Length() != 2 {
		t.Fatalf("want 2 entries retained (5,6), got %d", l.Length())
	}
	if !l.ContainsEntry(5) || !l.ContainsEntry(6) {
		t.Fatalf("entries 5 and 6 should remain live after snapshotting through 4")
	}
	if l.ContainsEntry(4) {
		t.Fatalf("entry 4 should have folded into the snapshot")
	}
}

func TestLogSetSnapshotClampsKeepFromBelowSnapshotIndex(t *testing.T) {
	l := NewLog(testConfig())
	for i := 1; i <= 6; i++ {
		_ = l.Append(LogEntry{Index: LogIndex(i), Term: 1})
	}
	// keepFromIndex below snap.Index+1 must still drop everything through
	// the snapshot boundary rather than under-truncate.
	l.SetSnapshot(SnapshotEntry{Index: 4, Term: 1}, 1)
	if l.Length() != 2 {
		t.Fatalf("want 2 entries retained regardless of a too-low keepFromIndex, got %d", l.Length())
	}
}

func TestLogSliceRange(t *testing.T) {
	l := NewLog(testConfig())
	for i := 1; i <= 5; i++ {
		_ = l.Append(LogEntry{Index: LogIndex(i), Term: 1})
	}
	got := l.Slice(2, 4)
	if len(got) != 2 || got[0].Index != 2 || got[1].Index != 3 {
		t.Fatalf("Slice(2,4) = %+v", got)
	}
	all := l.Slice(2, NoIndex)
	if len(all) != 4 {
		t.Fatalf("Slice(2, NoIndex) want 4 entries, got %d", len(all))
	}
}

func TestLogClear(t *testing.T) {
	l := NewLog(testConfig())
	for i := 1; i <= 3; i++ {
		_ = l.Append(LogEntry{Index: LogIndex(i), Term: 1})
	}
	l.Clear(SnapshotEntry{Index: 10, Term: 2})
	if l.Length() != 0 {
		t.Fatalf("want empty log after Clear, got length %d", l.Length())
	}
	if l.SnapshotIndex() != 10 || l.LastLogOrSnapshotTerm() != 2 {
		t.Fatalf("want snapshot index=10 term=2, got index=%d term=%d", l.SnapshotIndex(), l.LastLogOrSnapshotTerm())
	}
}
