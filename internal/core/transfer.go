package core

// transferState is the leader-only bookkeeping for an in-progress
// leadership transfer (spec.md §4.9), grounded on
// internal/raft/raft_election.go's TransferLeader/TimeoutNow pipeline.
type transferState struct {
	target    Endpoint
	future    *Future
	timer     Timer
	backoff   int
	triggered bool // TriggerLeaderElection sent; success still waits on an observed term bump
}

// TransferLeadership begins a leadership transfer to target
// (spec.md §4.9). The target must be in the committed member set.
func (n *Node) TransferLeadership(target Endpoint) *Future {
	f := newFuture()
	n.rt.Execute(func() {
		n.handleTransferLeadership(target, f)
	})
	return f
}

func (n *Node) handleTransferLeadership(target Endpoint, f *Future) {
	if n.role.Kind != RoleLeader {
		f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
		return
	}
	if !n.committedMembers.Contains(target) {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "transfer target not a committed member"})
		return
	}
	if n.role.leader.transfer != nil {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "leadership transfer already in progress"})
		return
	}
	ts := &transferState{target: target, future: f}
	n.role.leader.transfer = ts
	n.armTransferTimeout(ts)
	n.pumpTransfer(ts)
}

func (n *Node) armTransferTimeout(ts *transferState) {
	ts.timer = n.rt.Schedule(func() {
		n.handleTransferTimeout(ts)
	}, n.cfg.transferTimeout())
}

func (n *Node) handleTransferTimeout(ts *transferState) {
	if n.role.Kind != RoleLeader || n.role.leader.transfer != ts {
		return
	}
	n.role.leader.transfer = nil
	ts.future.resolve(Ordered{}, newRaftException("leadership transfer timed out"))
}

// pumpTransfer drives the transfer forward: wait for the target to
// catch up to lastLogIndex, then send a final AppendEntries followed
// by TriggerLeaderElection. While the target lags, each retry doubles
// the wait (heartbeatPeriod * 2^ts.backoff, exponent capped at 6).
func (n *Node) pumpTransfer(ts *transferState) {
	if n.role.Kind != RoleLeader || n.role.leader.transfer != ts {
		return
	}
	lastIdx := n.log.LastLogOrSnapshotIndex()
	fs := n.role.leader.followers[ts.target]
	if fs == nil {
		n.failTransfer(ts, &CannotReplicate{Reason: "transfer target not a known follower"})
		return
	}
	if fs.matchIndex >= lastIdx {
		n.sendTriggerLeaderElection(ts)
		return
	}
	n.sendAppendEntriesTo(ts.target)
	ts.backoff++
	delay := n.cfg.heartbeatPeriod() * (1 << uint(minInt(ts.backoff, 6)))
	n.rt.Schedule(func() { n.pumpTransfer(ts) }, delay)
}

// sendTriggerLeaderElection dispatches the final handover message, but
// does not itself resolve the transfer: spec.md §4.9 defines success as
// the leader observing a higher term, not as having sent the trigger.
// ts stays armed (transferTimeout still ticking) until stepDownToFollower
// sees ts.triggered and resolves it, or the timeout fires and fails it.
func (n *Node) sendTriggerLeaderElection(ts *transferState) {
	lastIdx := n.log.LastLogOrSnapshotIndex()
	lastTerm := n.log.LastLogOrSnapshotTerm()
	n.sendAppendEntriesTo(ts.target)
	n.rt.Send(ts.target, TriggerLeaderElection{
		GroupID:      n.groupID,
		Sender:       n.id,
		Term:         n.currentTerm,
		LastLogTerm:  lastTerm,
		LastLogIndex: lastIdx,
	})
	ts.triggered = true
}

// resolveTransferSuccess is reached only from stepDownToFollower, once
// a higher term (the target's own election) has actually been observed.
func (n *Node) resolveTransferSuccess(ts *transferState) {
	if ts.timer != nil {
		ts.timer.Stop()
	}
	ts.future.resolve(Ordered{CommitIndex: n.commitIndex, Result: ts.target}, nil)
}

func (n *Node) failTransfer(ts *transferState, err error) {
	if ts.timer != nil {
		ts.timer.Stop()
	}
	if n.role.Kind == RoleLeader && n.role.leader.transfer == ts {
		n.role.leader.transfer = nil
	}
	ts.future.resolve(Ordered{}, err)
}

// handleTriggerLeaderElection is the target-side handler (spec.md
// §4.3): verify caught up, then start a non-sticky election at once.
func (n *Node) handleTriggerLeaderElection(msg TriggerLeaderElection) {
	if msg.Term < n.currentTerm {
		return
	}
	if n.applyTermRule(msg.Term) {
		return
	}
	lastIdx := n.log.LastLogOrSnapshotIndex()
	lastTerm := n.log.LastLogOrSnapshotTerm()
	if lastIdx != msg.LastLogIndex || lastTerm != msg.LastLogTerm {
		n.logger.Warnf("node %s: ignoring TriggerLeaderElection, not caught up (have %d/%d want %d/%d)",
			n.id, lastIdx, lastTerm, msg.LastLogIndex, msg.LastLogTerm)
		return
	}
	n.startElection(false)
}
