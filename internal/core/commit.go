package core

import "sort"

// tryAdvanceCommit recomputes the quorum match index and advances
// commitIndex when a current-term entry is covered by a majority
// (spec.md §4.5), grounded on raft.go's majorityAgreeAt plus the
// commit-advance block inside handleAppendEntriesResponse.
func (n *Node) tryAdvanceCommit() {
	if n.role.Kind != RoleLeader {
		return
	}
	members := n.committedMembers.Set
	indices := make([]LogIndex, 0, len(members))
	for _, ep := range members {
		if ep == n.id {
			indices = append(indices, n.leaderSelfMatchIndex())
			continue
		}
		if fs, ok := n.role.leader.followers[ep]; ok {
			indices = append(indices, fs.matchIndex)
		} else {
			indices = append(indices, NoIndex)
		}
	}
	if !n.committedMembers.Contains(n.id) {
		// mid-removal: the leader excludes its own slot from the
		// majority computation (spec.md §4.5).
		indices = indices[:0]
		for _, ep := range members {
			if fs, ok := n.role.leader.followers[ep]; ok {
				indices = append(indices, fs.matchIndex)
			} else {
				indices = append(indices, NoIndex)
			}
		}
	}
	if len(indices) == 0 {
		return
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] > indices[j] })
	majority := len(indices)/2 + 1
	n2 := indices[majority-1]
	if n2 <= n.commitIndex {
		return
	}
	entry, ok := n.log.GetEntry(n2)
	if !ok || entry.Term != n.currentTerm {
		return
	}
	n.advanceCommitTo(n2)
}

// leaderSelfMatchIndex is the leader's own contribution to the quorum
// computation: flushedLogIndex when persistence is enabled, else
// lastLogIndex (spec.md §4.5 "Raft permits pre-flush commit if a
// majority of followers have flushed").
func (n *Node) leaderSelfMatchIndex() LogIndex {
	if n.persistenceEnabled {
		return n.role.leader.flushedLogIndex
	}
	return n.log.LastLogOrSnapshotIndex()
}

// advanceCommitTo sets commitIndex and drives everything downstream of
// a commit advance: applying entries and re-checking pending queries.
func (n *Node) advanceCommitTo(idx LogIndex) {
	if idx <= n.commitIndex {
		return
	}
	n.commitIndex = idx
	n.logger.Infof("node %s: commitIndex advanced to %d", n.id, idx)
	n.runApplier()
	n.tryResolveQueries()
}
