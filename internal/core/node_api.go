package core

// Replicate appends a user operation to the log and returns a future
// that resolves once the entry commits (or is invalidated). This is
// the "replicate" verb named throughout spec.md §1/§7.
func (n *Node) Replicate(operation interface{}) *Future {
	f := newFuture()
	n.rt.Execute(func() {
		n.handleReplicate(operation, f)
	})
	return f
}

func (n *Node) handleReplicate(operation interface{}, f *Future) {
	if n.status.IsTerminal() {
		f.resolve(Ordered{}, &NotLeader{})
		return
	}
	if n.role.Kind != RoleLeader {
		f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
		return
	}
	if n.role.leader.transfer != nil {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "leadership transfer in progress"})
		return
	}
	idx, err := n.appendLocal(operation)
	if err != nil {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: err.Error()})
		return
	}
	n.pendingFutures[idx] = f
	n.broadcastHeartbeat(false)
}

// appendLocal appends an entry at the current term and persists it,
// enforcing the uncommitted-entry-count ceiling from
// maxUncommittedLogEntryCount in addition to the raw Log capacity
// check (spec.md invariant 7 and §6 config).
func (n *Node) appendLocal(operation interface{}) (LogIndex, error) {
	uncommitted := n.log.LastLogOrSnapshotIndex() - n.commitIndex
	if int(uncommitted) >= n.cfg.MaxUncommittedLogEntryCount {
		return NoIndex, ErrLogFull
	}
	entry := LogEntry{
		Index:     n.log.LastLogOrSnapshotIndex() + 1,
		Term:      n.currentTerm,
		Operation: operation,
	}
	if err := n.log.Append(entry); err != nil {
		return NoIndex, err
	}
	if err := n.store.PersistEntries([]LogEntry{entry}); err != nil {
		n.fatal(newRaftException("persist entry %d failed: %w", entry.Index, err))
		return NoIndex, err
	}
	return entry.Index, nil
}
