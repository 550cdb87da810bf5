package core

import "time"

// handleVoteRequest grants iff not already voted this term for
// another candidate, the candidate's log is at least as up to date,
// and - for sticky (ordinary election) requests - the local node has
// not heard from a live leader within a heartbeat timeout (spec.md
// §4.3), grounded on raft.go's RequestVote handler plus the stickiness
// rule added in internal/raft/raft_election.go.
func (n *Node) handleVoteRequest(m VoteRequest) {
	n.applyTermRule(m.Term)
	if m.Term < n.currentTerm {
		n.rt.Send(m.Sender, VoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	if m.Sticky && n.hasLiveLeaderLease() {
		n.rt.Send(m.Sender, VoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	if n.votedFor != "" && n.votedFor != m.Sender {
		n.rt.Send(m.Sender, VoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	if !n.candidateLogAtLeastAsUpToDate(m.LastLogTerm, m.LastLogIndex) {
		n.rt.Send(m.Sender, VoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	n.votedFor = m.Sender
	if err := n.store.PersistTerm(n.currentTerm, n.votedFor); err != nil {
		n.fatal(newRaftException("persist vote failed: %w", err))
		return
	}
	n.armElectionTimeout()
	n.rt.Send(m.Sender, VoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: true})
}

func (n *Node) candidateLogAtLeastAsUpToDate(lastTerm Term, lastIndex LogIndex) bool {
	localTerm := n.log.LastLogOrSnapshotTerm()
	localIndex := n.log.LastLogOrSnapshotIndex()
	if lastTerm != localTerm {
		return lastTerm > localTerm
	}
	return lastIndex >= localIndex
}

// hasLiveLeaderLease reports whether this node is a follower with a
// known leader whose last valid AppendEntries arrived within the
// heartbeat timeout, measured with the wall clock against
// lastLeaderContact (stamped by the AppendEntries handler).
func (n *Node) hasLiveLeaderLease() bool {
	return n.role.Kind == RoleFollower && n.leader != "" && time.Since(n.lastLeaderContact) < n.cfg.heartbeatTimeout()
}

func (n *Node) handleVoteResponse(m VoteResponse) {
	if n.applyTermRule(m.Term) {
		return
	}
	if n.role.Kind != RoleCandidate || m.Term != n.currentTerm || !m.Granted {
		return
	}
	n.role.tally.grant(m.Sender)
	n.maybeBecomeLeader()
}

// handlePreVoteRequest is identical to VoteRequest's checks but never
// mutates durable term/votedFor (spec.md §4.3).
func (n *Node) handlePreVoteRequest(m PreVoteRequest) {
	if m.Term <= n.currentTerm {
		n.rt.Send(m.Sender, PreVoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	if n.hasLiveLeaderLease() {
		n.rt.Send(m.Sender, PreVoteResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm, Granted: false})
		return
	}
	granted := n.candidateLogAtLeastAsUpToDate(m.LastLogTerm, m.LastLogIndex)
	n.rt.Send(m.Sender, PreVoteResponse{GroupID: n.groupID, Sender: n.id, Term: m.Term, Granted: granted})
}

func (n *Node) handlePreVoteResponse(m PreVoteResponse) {
	if n.role.Kind != RolePreCandidate || m.Term != n.currentTerm+1 || !m.Granted {
		return
	}
	n.role.tally.grant(m.Sender)
	n.maybeAdvancePreCandidate()
}
