package core

// sendAppendEntriesTo decides and sends exactly one outbound message
// to peer, per the ReplicationEngine decision table (spec.md §4.4),
// grounded on raft.go's sendAppendEntries/leaderSendLogEntry dispatch,
// generalized to the in-flight/backoff bookkeeping in followerState.
func (n *Node) sendAppendEntriesTo(peer Endpoint) {
	if n.role.Kind != RoleLeader {
		return
	}
	fs := n.role.leader.followers[peer]
	if fs == nil || fs.inFlight {
		return
	}

	snapIdx := n.log.SnapshotIndex()
	lastIdx := n.log.LastLogOrSnapshotIndex()

	switch {
	case fs.nextIndex <= snapIdx && !n.log.ContainsEntry(fs.nextIndex):
		n.sendInstallSnapshotTrigger(peer, fs)
	case fs.matchIndex == NoIndex && fs.nextIndex > 1:
		// nextIndex 1 needs no probe: index 0 is agreed by every log.
		n.sendProbe(peer, fs)
	case fs.nextIndex <= lastIdx:
		n.sendBatch(peer, fs, lastIdx)
	default:
		n.sendCaughtUpHeartbeat(peer, fs)
	}
}

func (n *Node) prevLogFor(nextIndex LogIndex) (LogIndex, Term) {
	prevIdx := nextIndex - 1
	if prevIdx == n.log.SnapshotIndex() {
		return prevIdx, n.log.snapshotTerm()
	}
	if e, ok := n.log.GetEntry(prevIdx); ok {
		return prevIdx, e.Term
	}
	return prevIdx, 0
}

// sendProbe sends an empty AppendEntries to discover matchIndex for a
// follower whose nextIndex is above 1, and arms backoff since the
// follower's state is unknown.
func (n *Node) sendProbe(peer Endpoint, fs *followerState) {
	prevIdx, prevTerm := n.prevLogFor(fs.nextIndex)
	n.dispatchAppendEntries(peer, fs, prevIdx, prevTerm, nil)
	n.setRequestBackoff(peer, fs)
}

func (n *Node) sendBatch(peer Endpoint, fs *followerState, lastIdx LogIndex) {
	end := fs.nextIndex + LogIndex(n.cfg.AppendEntriesRequestBatchSize)
	if end > lastIdx+1 {
		end = lastIdx + 1
	}
	entries := n.log.Slice(fs.nextIndex, end)
	prevIdx, prevTerm := n.prevLogFor(fs.nextIndex)
	n.dispatchAppendEntries(peer, fs, prevIdx, prevTerm, entries)

	if len(entries) > 0 && entries[len(entries)-1].Index > n.role.leader.flushedLogIndex {
		n.scheduleLeaderFlush()
	}
}

func (n *Node) sendCaughtUpHeartbeat(peer Endpoint, fs *followerState) {
	prevIdx, prevTerm := n.prevLogFor(fs.nextIndex)
	n.dispatchAppendEntries(peer, fs, prevIdx, prevTerm, nil)
	// caught up: no backoff, the follower is expected to keep pace.
}

func (n *Node) dispatchAppendEntries(peer Endpoint, fs *followerState, prevIdx LogIndex, prevTerm Term, entries []LogEntry) {
	fs.inFlight = true
	qs := n.role.leader.queryState
	n.rt.Send(peer, AppendEntriesRequest{
		GroupID:      n.groupID,
		Sender:       n.id,
		Term:         n.currentTerm,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
		QueryRound:   qs.activeRound,
	})
}

func (n *Node) sendInstallSnapshotTrigger(peer Endpoint, fs *followerState) {
	fs.inFlight = true
	snap := n.log.SnapshotEntry()
	if snap == nil {
		return
	}
	n.rt.Send(peer, InstallSnapshotRequest{
		GroupID:         n.groupID,
		Sender:          n.id,
		Term:            n.currentTerm,
		SnapshotIndex:   snap.Index,
		SnapshotTerm:    snap.Term,
		Chunks:          nil, // trigger: follower replies with the chunk indices it needs
		TotalChunkCount: len(snap.Chunks),
		GroupMembers:    snap.GroupMembers,
		QueryRound:      n.role.leader.queryState.activeRound,
	})
	n.setRequestBackoff(peer, fs)
}

// setRequestBackoff arms an exponentially growing, bounded backoff and
// schedules a global reset task (spec.md §4.4). Cancellation happens
// the moment any response arrives from this follower (clearBackoff).
func (n *Node) setRequestBackoff(peer Endpoint, fs *followerState) {
	fs.backoffRound++
	delay := n.cfg.heartbeatPeriod() * (1 << uint(minInt(fs.backoffRound, 6)))
	ceiling := n.cfg.backoffCeiling()
	if delay > ceiling {
		delay = ceiling
	}
	fs.inFlight = true
	n.rt.Schedule(func() { n.resetFollowerBackoff(peer) }, delay)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// resetFollowerBackoff is the global reset task's per-follower step: if
// still in-flight, retry; this is the leader's recovery path for a
// follower/socket that silently dropped the outbound request.
func (n *Node) resetFollowerBackoff(peer Endpoint) {
	if n.role.Kind != RoleLeader || peer == "" {
		return
	}
	fs := n.role.leader.followers[peer]
	if fs == nil || !fs.inFlight {
		return
	}
	fs.inFlight = false
	n.sendAppendEntriesTo(peer)
}

// clearBackoff cancels in-flight/backoff state for peer. Called the
// moment any response (success, failure, or snapshot ack) arrives.
func (n *Node) clearBackoff(peer Endpoint) {
	if fs := n.role.leader.followers[peer]; fs != nil {
		fs.inFlight = false
		fs.backoffRound = 0
	}
}

// scheduleLeaderFlush submits an idempotent flush task: at most one is
// outstanding at a time (spec.md §4.4 "LeaderFlushTask (idempotent
// submission)"), grounded on raft.go's persister.Save/flush pairing.
func (n *Node) scheduleLeaderFlush() {
	if n.role.Kind != RoleLeader || n.role.leader.flushScheduled {
		return
	}
	n.role.leader.flushScheduled = true
	n.rt.Submit(func() { n.runLeaderFlush() })
}

func (n *Node) runLeaderFlush() {
	if n.role.Kind != RoleLeader {
		return
	}
	n.role.leader.flushScheduled = false
	if err := n.store.Flush(); err != nil {
		n.fatal(newRaftException("leader flush failed: %w", err))
		return
	}
	n.role.leader.flushedLogIndex = n.log.LastLogOrSnapshotIndex()
	n.tryAdvanceCommit()
}
