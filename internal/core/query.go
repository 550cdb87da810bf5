package core

// QueryPolicy selects how a local read is served (spec.md §4.8).
type QueryPolicy int

const (
	// QueryLeaderLocal requires leader role and a committed entry of
	// the current term; linearizable.
	QueryLeaderLocal QueryPolicy = iota
	// QueryAnyLocal runs on any node at its own commitIndex; may be
	// stale.
	QueryAnyLocal
)

type pendingQuery struct {
	operation        interface{}
	minCommitIndex   LogIndex
	queryCommitIndex LogIndex // only runnable once commitIndex >= this
	round            uint64
	future           *Future
}

// queryState is the leader-only bookkeeping for LEADER_LOCAL read-index
// rounds, grounded directly on internal/raft/raft_readindex.go's
// ReadIndex/readIndexLeader machinery, generalized from a dedicated
// quorum RPC to the queryRound piggybacked on AppendEntries.
type queryState struct {
	pending  []*pendingQuery
	roundAcks map[Endpoint]bool // who has acked queryState.activeRound
	activeRound uint64
}

func newQueryState() *queryState {
	return &queryState{roundAcks: make(map[Endpoint]bool)}
}

func (q *queryState) count() int { return len(q.pending) }

// Query runs a local read per spec.md §4.8: LEADER_LOCAL enqueues a
// read-index round (resolved asynchronously as AppendEntries acks and
// commit advances arrive); ANY_LOCAL runs immediately.
func (n *Node) Query(policy QueryPolicy, operation interface{}, minCommitIndex LogIndex) *Future {
	f := newFuture()
	n.rt.Execute(func() {
		n.handleQuery(policy, operation, minCommitIndex, f)
	})
	return f
}

func (n *Node) handleQuery(policy QueryPolicy, operation interface{}, minCommitIndex LogIndex, f *Future) {
	if n.status.IsTerminal() {
		f.resolve(Ordered{}, &NotLeader{})
		return
	}
	switch policy {
	case QueryAnyLocal:
		n.runAnyLocal(operation, minCommitIndex, f)
	case QueryLeaderLocal:
		n.enqueueLeaderLocal(operation, minCommitIndex, f)
	}
}

func (n *Node) runAnyLocal(operation interface{}, minCommitIndex LogIndex, f *Future) {
	if minCommitIndex != NoIndex && n.commitIndex < minCommitIndex {
		f.resolve(Ordered{}, &LaggingCommitIndex{Current: n.commitIndex, Expected: minCommitIndex, Leader: n.leader})
		return
	}
	idx := n.commitIndex
	result, err := n.sm.Query(idx, operation)
	if err != nil {
		f.resolve(Ordered{}, newRaftException("state machine query failed: %w", err))
		return
	}
	f.resolve(Ordered{CommitIndex: idx, Result: result}, nil)
}

func (n *Node) enqueueLeaderLocal(operation interface{}, minCommitIndex LogIndex, f *Future) {
	if n.role.Kind != RoleLeader {
		f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
		return
	}
	if minCommitIndex != NoIndex && n.commitIndex < minCommitIndex {
		f.resolve(Ordered{}, &LaggingCommitIndex{Current: n.commitIndex, Expected: minCommitIndex, Leader: n.leader})
		return
	}
	if !n.hasCommittedEntryAtCurrentTerm() {
		f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
		return
	}
	qs := n.role.leader.queryState
	if qs.count() >= n.cfg.MaxUncommittedLogEntryCount {
		f.resolve(Ordered{}, &CannotReplicate{LeaderHint: n.leader, Reason: "too many pending queries"})
		return
	}
	if qs.count() == 0 {
		n.role.leader.queryRound++
		qs.activeRound = n.role.leader.queryRound
		qs.roundAcks = make(map[Endpoint]bool)
	}
	q := &pendingQuery{
		operation:        operation,
		minCommitIndex:   minCommitIndex,
		queryCommitIndex: n.commitIndex,
		round:            qs.activeRound,
		future:           f,
	}
	qs.pending = append(qs.pending, q)
	// fast path: if this round has already reached majority (e.g. the
	// leader just resolved a batch and more queries arrived before the
	// round advanced), try resolving immediately.
	n.tryResolveQueries()
	n.broadcastHeartbeat(false)
}

// ackQueryRound records that a follower has acknowledged the given
// round via a piggybacked AppendEntries response, then attempts to
// resolve any pending queries this proves.
func (n *Node) ackQueryRound(follower Endpoint, round uint64) {
	if n.role.Kind != RoleLeader {
		return
	}
	qs := n.role.leader.queryState
	if round != qs.activeRound {
		return
	}
	qs.roundAcks[follower] = true
	n.tryResolveQueries()
}

// tryResolveQueries runs every pending query whose round has majority
// acknowledgment and whose snapshot-at-enqueue commit index has since
// been reached. Called after an ack and after every commit advance.
func (n *Node) tryResolveQueries() {
	if n.role.Kind != RoleLeader {
		return
	}
	qs := n.role.leader.queryState
	if len(qs.pending) == 0 {
		return
	}
	majority := n.effectiveMembers.Majority()
	acked := 1 // leader trivially acks its own round
	for ep := range qs.roundAcks {
		if ep != n.id {
			acked++
		}
	}
	if acked < majority {
		return
	}
	remaining := qs.pending[:0]
	for _, q := range qs.pending {
		if q.round != qs.activeRound || n.commitIndex < q.queryCommitIndex {
			remaining = append(remaining, q)
			continue
		}
		result, err := n.sm.Query(n.commitIndex, q.operation)
		if err != nil {
			q.future.resolve(Ordered{}, newRaftException("state machine query failed: %w", err))
			continue
		}
		q.future.resolve(Ordered{CommitIndex: n.commitIndex, Result: result}, nil)
	}
	qs.pending = remaining
}

// failAllQueries resolves every pending LEADER_LOCAL query with err;
// called on demotion (spec.md §4.2 "Follower: fails any pending
// LEADER_LOCAL queries with NotLeader").
func (n *Node) failAllQueries(err error) {
	if n.role.Kind != RoleLeader || n.role.leader == nil {
		return
	}
	for _, q := range n.role.leader.queryState.pending {
		q.future.resolve(Ordered{}, err)
	}
	n.role.leader.queryState.pending = nil
}
