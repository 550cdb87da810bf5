package core

// chunkCollector implements ChunkSink, accumulating the pieces
// StateMachine.TakeSnapshot produces.
type chunkCollector struct {
	index LogIndex
	term  Term
	chunks []SnapshotChunk
}

func (c *chunkCollector) Send(chunkIndex, chunkCount int, operation []byte) error {
	c.chunks = append(c.chunks, SnapshotChunk{
		Index:      c.index,
		Term:       c.term,
		ChunkIndex: chunkIndex,
		ChunkCount: chunkCount,
		Operation:  operation,
	})
	return nil
}

// takeSnapshot captures a new snapshot at commitIndex (spec.md §4.7):
// ask the StateMachine for chunks, persist each, build a SnapshotEntry,
// compute keepFromIndex and truncate the log.
func (n *Node) takeSnapshot() {
	if n.status.IsTerminal() {
		return
	}
	entry, ok := n.log.GetEntry(n.commitIndex)
	var term Term
	if ok {
		term = entry.Term
	} else if n.log.SnapshotEntry() != nil && n.log.SnapshotIndex() == n.commitIndex {
		term = n.log.SnapshotEntry().Term
	} else {
		return
	}

	sink := &chunkCollector{index: n.commitIndex, term: term}
	if err := n.sm.TakeSnapshot(n.commitIndex, sink); err != nil {
		n.logger.Errorf("node %s: snapshot capture failed: %v", n.id, err)
		return
	}
	for i := range sink.chunks {
		sink.chunks[i].ChunkCount = len(sink.chunks)
		sink.chunks[i].GroupMembers = n.effectiveMembers.Set
		if err := n.store.PersistSnapshotChunk(sink.chunks[i]); err != nil {
			n.logger.Errorf("node %s: failed persisting snapshot chunk %d: %v", n.id, i, err)
			return
		}
	}

	snap := SnapshotEntry{
		Index:                n.commitIndex,
		Term:                 term,
		Chunks:               sink.chunks,
		GroupMembersLogIndex: n.effectiveMembers.LogIndex,
		GroupMembers:         n.effectiveMembers.Set,
	}

	keepFromIndex := n.snapshotKeepFromIndex(snap.Index)
	n.log.SetSnapshot(snap, keepFromIndex)
	n.logger.Infof("node %s: snapshot taken at index %d, kept from %d", n.id, snap.Index, keepFromIndex)
}

// snapshotKeepFromIndex computes the keepFromIndex passed to
// Log.SetSnapshot (spec.md §4.7 + the preserved Open Question on the
// "matchIndex - 1" heuristic, spec.md §9): on a leader, the follower
// with the smallest matchIndex in [snapIndex-keptAfterSnapshot,
// snapIndex) gives matchIndex - 1; otherwise the result is
// snapIndex + 1. Log.SetSnapshot raises any value below snapIndex + 1
// to snapIndex + 1, so no entry at or below the new snapshot index is
// retained for that follower; it is caught up by InstallSnapshot.
func (n *Node) snapshotKeepFromIndex(snapIndex LogIndex) LogIndex {
	keepFromIndex := snapIndex + 1
	if n.role.Kind != RoleLeader {
		return keepFromIndex
	}
	threshold := snapIndex - LogIndex(n.cfg.KeptAfterSnapshot)
	var smallest LogIndex = NoIndex
	found := false
	for _, fs := range n.role.leader.followers {
		if fs.matchIndex >= threshold && fs.matchIndex < snapIndex {
			if !found || fs.matchIndex < smallest {
				smallest = fs.matchIndex
				found = true
			}
		}
	}
	if found && smallest > 0 {
		return smallest - 1
	}
	return keepFromIndex
}

// installSnapshot applies a fully-received snapshot on a follower
// (spec.md §4.7): verify freshness, set commit to the snapshot index,
// persist, truncate, invoke StateMachine.InstallSnapshot, restore
// effective members, and resolve every future at index <= snap.Index
// with IndeterminateState since their outcome was superseded.
func (n *Node) installSnapshot(snap SnapshotEntry) error {
	if snap.Index <= n.commitIndex {
		return nil
	}
	ops := make([][]byte, 0, len(snap.Chunks))
	for _, c := range snap.Chunks {
		ops = append(ops, c.Operation)
	}
	if err := n.sm.InstallSnapshot(snap.Index, ops); err != nil {
		return newRaftException("state machine install snapshot failed: %w", err)
	}

	n.log.Clear(snap)
	n.commitIndex = snap.Index
	n.lastApplied = snap.Index
	n.effectiveMembers = Members{LogIndex: snap.GroupMembersLogIndex, Set: snap.GroupMembers}
	n.committedMembers = Members{LogIndex: snap.GroupMembersLogIndex, Set: snap.GroupMembers}

	for idx, f := range n.pendingFutures {
		if idx <= snap.Index {
			f.resolve(Ordered{}, &IndeterminateState{Leader: n.leader})
			delete(n.pendingFutures, idx)
		}
	}
	return nil
}
