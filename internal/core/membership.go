package core

// ChangeMembership adds or removes a single endpoint (spec.md §4.9).
// Only one change may be uncommitted at a time, and the caller must
// quote the commit index it observed committedMembers at, to detect a
// stale request racing a concurrent change.
func (n *Node) ChangeMembership(endpoint Endpoint, mode MembershipMode, expectedCommitIndex LogIndex) *Future {
	f := newFuture()
	n.rt.Execute(func() {
		n.handleChangeMembership(endpoint, mode, expectedCommitIndex, f)
	})
	return f
}

func (n *Node) handleChangeMembership(endpoint Endpoint, mode MembershipMode, expectedCommitIndex LogIndex, f *Future) {
	if n.role.Kind != RoleLeader {
		f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
		return
	}
	if expectedCommitIndex != n.committedMembers.LogIndex {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "committed membership moved on"})
		return
	}
	if n.effectiveMembers.LogIndex != n.committedMembers.LogIndex {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "membership change already in flight"})
		return
	}
	if !n.hasCommittedEntryAtCurrentTerm() {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: "no entry of current term committed yet"})
		return
	}

	members := n.nextMembers(endpoint, mode)
	op := UpdateMembersOp{Endpoint: endpoint, Mode: mode, Members: members}
	idx, err := n.appendLocal(op)
	if err != nil {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.id, Reason: err.Error()})
		return
	}
	// Effective members flip on append (spec.md §4.9).
	n.effectiveMembers = Members{LogIndex: idx, Set: members}
	if fs := n.role.leader; fs != nil {
		for _, ep := range members {
			if _, ok := fs.followers[ep]; !ok {
				fs.followers[ep] = &followerState{nextIndex: n.log.LastLogOrSnapshotIndex() + 1}
			}
		}
	}
	n.pendingFutures[idx] = f
	n.broadcastHeartbeat(false)
}

func (n *Node) hasCommittedEntryAtCurrentTerm() bool {
	if n.commitIndex <= n.log.SnapshotIndex() {
		return n.log.SnapshotEntry() != nil && n.log.SnapshotEntry().Term == n.currentTerm
	}
	e, ok := n.log.GetEntry(n.commitIndex)
	return ok && e.Term == n.currentTerm
}

func (n *Node) nextMembers(endpoint Endpoint, mode MembershipMode) []Endpoint {
	current := n.effectiveMembers.Set
	switch mode {
	case MembershipAdd:
		out := make([]Endpoint, len(current), len(current)+1)
		copy(out, current)
		return append(out, endpoint)
	case MembershipRemove:
		out := make([]Endpoint, 0, len(current))
		for _, ep := range current {
			if ep != endpoint {
				out = append(out, ep)
			}
		}
		return out
	default:
		return current
	}
}

// applyUpdateMembers is called from the Applier once an UpdateMembers
// entry commits (spec.md §4.6): status transitions to
// UpdatingGroupMembers, effective members are (re)applied, committed
// members flip, then status returns to Active — unless the change
// removed the local endpoint, in which case the node terminates.
func (n *Node) applyUpdateMembers(idx LogIndex, op UpdateMembersOp) {
	n.status = StatusUpdatingGroupMembers
	n.effectiveMembers = Members{LogIndex: idx, Set: op.Members}
	n.committedMembers = Members{LogIndex: idx, Set: op.Members}
	if n.role.Kind == RoleLeader {
		for _, ep := range op.Members {
			if _, ok := n.role.leader.followers[ep]; !ok {
				n.role.leader.followers[ep] = &followerState{nextIndex: n.log.LastLogOrSnapshotIndex() + 1}
			}
		}
		for ep := range n.role.leader.followers {
			if !n.committedMembers.Contains(ep) {
				delete(n.role.leader.followers, ep)
			}
		}
	}
	if !n.committedMembers.Contains(n.id) {
		n.status = StatusTerminated
		return
	}
	n.status = StatusActive
}
