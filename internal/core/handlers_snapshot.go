package core

// followerSnapshotAssembly tracks a snapshot install in progress on a
// follower, keyed by snapshot index: chunks may arrive out of order or
// need re-requesting (spec.md §4.3 "InstallSnapshotRequest ... upon
// full chunk set, persists, installs, ACKs"), grounded on
// replica/level_db.go's chunked-write shape.
type followerSnapshotAssembly struct {
	index       LogIndex
	term        Term
	totalChunks int
	groupMembers []Endpoint
	chunks      map[int]SnapshotChunk
}

func (a *followerSnapshotAssembly) missingIndices() []int {
	var missing []int
	for i := 0; i < a.totalChunks; i++ {
		if _, ok := a.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func (a *followerSnapshotAssembly) complete() bool {
	return len(a.chunks) == a.totalChunks
}

func (a *followerSnapshotAssembly) toSnapshotEntry() SnapshotEntry {
	chunks := make([]SnapshotChunk, a.totalChunks)
	for i, c := range a.chunks {
		chunks[i] = c
	}
	return SnapshotEntry{
		Index:                a.index,
		Term:                 a.term,
		Chunks:               chunks,
		GroupMembersLogIndex: a.index,
		GroupMembers:         a.groupMembers,
	}
}

// handleInstallSnapshotRequest is the follower-side snapshot RPC
// handler. If the local commit already covers the offered snapshot,
// it just ACKs; otherwise it accumulates chunks (possibly zero, for
// the leader's initial trigger) and asks for whatever is missing.
func (n *Node) handleInstallSnapshotRequest(m InstallSnapshotRequest) {
	if n.applyTermRule(m.Term) {
		return
	}
	if m.Term < n.currentTerm {
		return
	}
	n.leader = m.Sender
	n.armElectionTimeout()

	if m.SnapshotIndex <= n.commitIndex {
		n.rt.Send(m.Sender, InstallSnapshotResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm})
		return
	}

	if n.snapshotAssembly == nil || n.snapshotAssembly.index != m.SnapshotIndex {
		n.snapshotAssembly = &followerSnapshotAssembly{
			index:        m.SnapshotIndex,
			term:         m.SnapshotTerm,
			totalChunks:  m.TotalChunkCount,
			groupMembers: m.GroupMembers,
			chunks:       make(map[int]SnapshotChunk),
		}
	}
	for _, c := range m.Chunks {
		n.snapshotAssembly.chunks[c.ChunkIndex] = c
	}

	if !n.snapshotAssembly.complete() {
		n.rt.Send(m.Sender, InstallSnapshotResponse{
			GroupID:               n.groupID,
			Sender:                n.id,
			Term:                  n.currentTerm,
			RequestedChunkIndices: n.snapshotAssembly.missingIndices(),
		})
		return
	}

	snap := n.snapshotAssembly.toSnapshotEntry()
	n.snapshotAssembly = nil
	if err := n.installSnapshot(snap); err != nil {
		n.fatal(err)
		return
	}
	n.rt.Send(m.Sender, InstallSnapshotResponse{GroupID: n.groupID, Sender: n.id, Term: n.currentTerm})
}

// handleInstallSnapshotResponse is the leader-side handler: if the
// follower reported it is still missing chunks, resend exactly those;
// an empty RequestedChunkIndices means the install completed (or the
// follower was already past it), so treat matchIndex as caught up to
// the snapshot and resume normal replication.
func (n *Node) handleInstallSnapshotResponse(m InstallSnapshotResponse) {
	if n.applyTermRule(m.Term) || n.role.Kind != RoleLeader || m.Term < n.currentTerm {
		return
	}
	fs := n.role.leader.followers[m.Sender]
	if fs == nil {
		return
	}
	n.clearBackoff(m.Sender)
	snap := n.log.SnapshotEntry()
	if len(m.RequestedChunkIndices) > 0 && snap != nil {
		chunks := make([]SnapshotChunk, 0, len(m.RequestedChunkIndices))
		for _, idx := range m.RequestedChunkIndices {
			if idx >= 0 && idx < len(snap.Chunks) {
				chunks = append(chunks, snap.Chunks[idx])
			}
		}
		n.rt.Send(m.Sender, InstallSnapshotRequest{
			GroupID:         n.groupID,
			Sender:          n.id,
			Term:            n.currentTerm,
			SnapshotIndex:   snap.Index,
			SnapshotTerm:    snap.Term,
			Chunks:          chunks,
			TotalChunkCount: len(snap.Chunks),
			GroupMembers:    snap.GroupMembers,
			QueryRound:      n.role.leader.queryState.activeRound,
		})
		return
	}
	if snap != nil && fs.matchIndex < snap.Index {
		fs.matchIndex = snap.Index
		fs.nextIndex = snap.Index + 1
	}
	n.sendAppendEntriesTo(m.Sender)
}
