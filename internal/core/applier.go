package core

// runApplier iterates lastApplied+1..commitIndex, driving the user
// state machine and resolving pending futures (spec.md §4.6),
// grounded on raft.go's applyer() goroutine body, generalized to run
// inline from the executor rather than a separate goroutine, and
// extended to understand the privileged UpdateMembers/TerminateGroup
// operations the way replica/server_apply.go dispatches by operation
// kind.
func (n *Node) runApplier() {
	for n.lastApplied < n.commitIndex {
		idx := n.lastApplied + 1
		entry, ok := n.log.GetEntry(idx)
		if !ok {
			// Already folded into a snapshot slot: nothing to apply,
			// but lastApplied must still advance to stay <= commitIndex.
			n.lastApplied = idx
			continue
		}
		n.applyEntry(entry)
		n.lastApplied = idx
	}
	if n.status.IsTerminal() {
		n.shutdownOnTerminal()
		return
	}
	if n.commitIndex-n.log.SnapshotIndex() >= LogIndex(n.cfg.CommitCountToTakeSnapshot) {
		n.takeSnapshot()
	}
}

func (n *Node) applyEntry(entry LogEntry) {
	switch op := entry.Operation.(type) {
	case UpdateMembersOp:
		n.applyUpdateMembers(entry.Index, op)
		n.resolveFuture(entry.Index, Ordered{CommitIndex: entry.Index, Result: nil}, nil)
	case TerminateGroupOp:
		n.status = StatusTerminated
		n.resolveFuture(entry.Index, Ordered{CommitIndex: entry.Index, Result: nil}, nil)
	default:
		result, err := n.applyUserOperation(entry.Index, entry.Operation)
		n.resolveFuture(entry.Index, Ordered{CommitIndex: entry.Index, Result: result}, err)
	}
}

// applyUserOperation isolates the state machine call so a panic from
// user code is captured rather than halting the node (spec.md §7
// "Applier exceptions from the user state machine are captured in the
// entry's future and do not halt the node").
func (n *Node) applyUserOperation(idx LogIndex, operation interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newRaftException("state machine panicked applying %d: %v", idx, r)
		}
	}()
	return n.sm.Apply(idx, operation)
}

func (n *Node) resolveFuture(idx LogIndex, value Ordered, err error) {
	f, ok := n.pendingFutures[idx]
	if !ok {
		return
	}
	delete(n.pendingFutures, idx)
	f.resolve(value, err)
}

func (n *Node) shutdownOnTerminal() {
	for idx, f := range n.pendingFutures {
		f.resolve(Ordered{}, &NotLeader{})
		delete(n.pendingFutures, idx)
	}
	n.failAllQueries(&NotLeader{})
	n.rt.OnGroupTerminated()
}
