package core

// RestoredState is what Store.Restore hands back at node start-up.
type RestoredState struct {
	Term     Term
	VotedFor Endpoint
	Entries  []LogEntry
	Snapshot *SnapshotEntry
}

// Store is the durable-state collaborator (spec.md §6). The core
// writes exclusively from its own executor and treats every write as
// a persistence barrier ordering requirement (spec.md invariant 8):
// persistTerm/persistEntries/persistSnapshotChunk must return before
// any outbound message or local transition that depends on them.
//
// One Nop implementation is permitted (nopStore, below) for tests and
// for hosts that intentionally run without durability.
type Store interface {
	PersistTerm(term Term, votedFor Endpoint) error
	PersistEntries(entries []LogEntry) error
	PersistSnapshotChunk(chunk SnapshotChunk) error
	Truncate(fromIndex LogIndex) error
	Flush() error
	Restore() (RestoredState, error)
}

// nopStore discards everything; Restore always returns an empty state.
// Grounded on the teacher's mem_persister.go "no-op beyond memory"
// shape, generalized to satisfy the Store contract exactly.
type nopStore struct{}

// NewNopStore returns the one permitted no-durability Store.
func NewNopStore() Store { return nopStore{} }

func (nopStore) PersistTerm(Term, Endpoint) error          { return nil }
func (nopStore) PersistEntries([]LogEntry) error           { return nil }
func (nopStore) PersistSnapshotChunk(SnapshotChunk) error  { return nil }
func (nopStore) Truncate(LogIndex) error                   { return nil }
func (nopStore) Flush() error                               { return nil }
func (nopStore) Restore() (RestoredState, error)            { return RestoredState{}, nil }
