package core

import "time"

// HandleMessage dispatches an inbound message to its handler
// (spec.md §9 "tagged sum type and exhaustive match" instead of
// dynamic dispatch), grounded on internal/netw/api.go's RPC-name
// switch, generalized into a single Go type switch. The Runtime is
// expected to call this from inside n.rt.Execute.
func (n *Node) HandleMessage(msg Message) {
	if n.status.IsTerminal() {
		return
	}
	switch m := msg.(type) {
	case AppendEntriesRequest:
		n.handleAppendEntriesRequest(m)
	case AppendEntriesSuccess:
		n.handleAppendEntriesSuccess(m)
	case AppendEntriesFailure:
		n.handleAppendEntriesFailure(m)
	case InstallSnapshotRequest:
		n.handleInstallSnapshotRequest(m)
	case InstallSnapshotResponse:
		n.handleInstallSnapshotResponse(m)
	case VoteRequest:
		n.handleVoteRequest(m)
	case VoteResponse:
		n.handleVoteResponse(m)
	case PreVoteRequest:
		n.handlePreVoteRequest(m)
	case PreVoteResponse:
		n.handlePreVoteResponse(m)
	case TriggerLeaderElection:
		n.handleTriggerLeaderElection(m)
	default:
		n.logger.Warnf("node %s: unrecognized message type %T", n.id, msg)
	}
}

// handleAppendEntriesRequest is the follower-side log-matching
// handler (spec.md §4.3), grounded on raft.go's AppendEntries RPC
// handler.
func (n *Node) handleAppendEntriesRequest(m AppendEntriesRequest) {
	if m.Term < n.currentTerm {
		n.rt.Send(m.Sender, AppendEntriesFailure{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm})
		return
	}
	n.applyTermRule(m.Term)
	if n.role.Kind != RoleFollower {
		n.role = followerRole()
	}
	n.leader = m.Sender
	n.lastLeaderContact = time.Now()
	n.armElectionTimeout()

	if m.PrevLogIndex > n.log.LastLogOrSnapshotIndex() {
		n.rt.Send(m.Sender, AppendEntriesFailure{
			GroupID: n.groupID, Sender: n.id, Term: n.currentTerm,
			ExpectedNextIndex: n.log.LastLogOrSnapshotIndex() + 1,
		})
		return
	}
	if !n.prevLogMatches(m.PrevLogIndex, m.PrevLogTerm) {
		n.rt.Send(m.Sender, AppendEntriesFailure{
			GroupID: n.groupID, Sender: n.id, Term: n.currentTerm,
			ExpectedNextIndex: n.conflictBacktrackIndex(m.PrevLogIndex),
		})
		return
	}

	for _, e := range m.Entries {
		if n.log.ContainsEntry(e.Index) {
			existing, _ := n.log.GetEntry(e.Index)
			if existing.Term == e.Term {
				continue
			}
			n.log.TruncateFrom(e.Index)
			if err := n.store.Truncate(e.Index); err != nil {
				n.fatal(newRaftException("truncate at %d failed: %w", e.Index, err))
				return
			}
		}
		if err := n.log.Append(e); err != nil {
			n.fatal(newRaftException("append entry %d failed: %w", e.Index, err))
			return
		}
		if op, ok := e.Operation.(UpdateMembersOp); ok {
			n.effectiveMembers = Members{LogIndex: e.Index, Set: op.Members}
		}
	}
	if len(m.Entries) > 0 {
		if err := n.store.PersistEntries(m.Entries); err != nil {
			n.fatal(newRaftException("persist entries failed: %w", err))
			return
		}
	}

	if m.LeaderCommit > n.commitIndex {
		newCommit := m.LeaderCommit
		if last := n.log.LastLogOrSnapshotIndex(); newCommit > last {
			newCommit = last
		}
		n.advanceCommitTo(newCommit)
	}

	n.rt.Send(m.Sender, AppendEntriesSuccess{
		GroupID:      n.groupID,
		Sender:       n.id,
		Term:         n.currentTerm,
		LastLogIndex: n.log.LastLogOrSnapshotIndex(),
		QueryRound:   m.QueryRound,
	})
}

func (n *Node) prevLogMatches(idx LogIndex, term Term) bool {
	if idx == NoIndex {
		return term == 0
	}
	if idx == n.log.SnapshotIndex() {
		return term == n.snapshotTermSafe()
	}
	e, ok := n.log.GetEntry(idx)
	return ok && e.Term == term
}

func (n *Node) snapshotTermSafe() Term {
	if snap := n.log.SnapshotEntry(); snap != nil {
		return snap.Term
	}
	return 0
}

// conflictBacktrackIndex finds a reasonable next probe point when
// PrevLogIndex is present but its term mismatches: back up to the
// start of the conflicting term, so the next round covers the whole
// disputed span in one hop.
func (n *Node) conflictBacktrackIndex(prevLogIndex LogIndex) LogIndex {
	entry, ok := n.log.GetEntry(prevLogIndex)
	if !ok {
		return n.log.SnapshotIndex() + 1
	}
	conflictTerm := entry.Term
	idx := prevLogIndex
	for idx > n.log.SnapshotIndex()+1 {
		e, ok := n.log.GetEntry(idx - 1)
		if !ok || e.Term != conflictTerm {
			break
		}
		idx--
	}
	return idx
}

func (n *Node) handleAppendEntriesSuccess(m AppendEntriesSuccess) {
	if n.applyTermRule(m.Term) || n.role.Kind != RoleLeader || m.Term < n.currentTerm {
		return
	}
	fs := n.role.leader.followers[m.Sender]
	if fs == nil {
		return
	}
	n.clearBackoff(m.Sender)
	if m.LastLogIndex > fs.matchIndex {
		fs.matchIndex = m.LastLogIndex
	}
	fs.nextIndex = fs.matchIndex + 1
	n.ackQueryRound(m.Sender, m.QueryRound)
	n.tryAdvanceCommit()
	n.sendAppendEntriesTo(m.Sender)
}

func (n *Node) handleAppendEntriesFailure(m AppendEntriesFailure) {
	if n.applyTermRule(m.Term) || n.role.Kind != RoleLeader || m.Term < n.currentTerm {
		return
	}
	fs := n.role.leader.followers[m.Sender]
	if fs == nil {
		return
	}
	n.clearBackoff(m.Sender)
	if m.ExpectedNextIndex > 0 {
		fs.nextIndex = m.ExpectedNextIndex
	} else if fs.nextIndex > 1 {
		fs.nextIndex--
	}
	n.sendAppendEntriesTo(m.Sender)
}
