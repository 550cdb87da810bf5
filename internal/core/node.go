package core

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Node is the single-executor Raft state machine described by spec.md
// §4 and §5: every field here is touched exclusively from tasks run on
// rt.Execute/rt.Submit, so none of it is guarded by a mutex — this is
// the deliberate replacement for the teacher's sync.RWMutex-guarded
// Raft struct (see raft.go's mu field), generalized into plain data
// mutated only by free functions hung off *Node (SPEC_FULL.md
// "Concurrency").
type Node struct {
	id      Endpoint
	groupID string
	cfg     Config

	store  Store
	sm     StateMachine
	rt     Runtime
	logger *logrus.Logger

	log  *Log
	role RoleState

	currentTerm Term
	votedFor    Endpoint
	commitIndex LogIndex
	lastApplied LogIndex
	leader      Endpoint
	lastLeaderContact time.Time
	status      Status

	committedMembers Members
	effectiveMembers Members

	pendingFutures map[LogIndex]*Future

	// snapshotAssembly accumulates chunks for a snapshot install in
	// progress; nil when no install is underway.
	snapshotAssembly *followerSnapshotAssembly

	persistenceEnabled bool

	electionTimer  Timer
	heartbeatTimer Timer
	reportTimer    Timer

	// electionEpoch is bumped every time the election timer is rearmed;
	// a fired callback that no longer matches the current epoch is
	// stale and ignored (grounded on raft.go's electionTimer reset
	// discipline inside ticker()).
	electionEpoch int
}

// NewNode constructs a node in Follower role, loading whatever
// durable state the Store has (spec.md §4.1 "on start, a node
// restores term, votedFor, log and snapshot from Store.restore").
// It does not start the executor; call Start once the Runtime is
// ready to deliver tasks.
func NewNode(id Endpoint, groupID string, cfg Config, members []Endpoint, store Store, sm StateMachine, rt Runtime, logger *logrus.Logger) (*Node, error) {
	n := &Node{
		id:             id,
		groupID:        groupID,
		cfg:            cfg,
		store:          store,
		sm:             sm,
		rt:             rt,
		logger:         logger,
		log:            NewLog(cfg),
		role:           followerRole(),
		status:         StatusActive,
		pendingFutures: make(map[LogIndex]*Future),
	}
	_, isNop := store.(nopStore)
	n.persistenceEnabled = !isNop

	restored, err := store.Restore()
	if err != nil {
		return nil, newRaftException("restore failed: %w", err)
	}
	n.currentTerm = restored.Term
	n.votedFor = restored.VotedFor
	if restored.Snapshot != nil {
		n.log.snapshot = restored.Snapshot
		n.commitIndex = restored.Snapshot.Index
		n.lastApplied = restored.Snapshot.Index
		n.effectiveMembers = Members{LogIndex: restored.Snapshot.GroupMembersLogIndex, Set: restored.Snapshot.GroupMembers}
		n.committedMembers = n.effectiveMembers
	} else {
		n.effectiveMembers = Members{LogIndex: NoIndex, Set: members}
		n.committedMembers = n.effectiveMembers
	}
	for _, e := range restored.Entries {
		if err := n.log.Append(e); err != nil {
			return nil, newRaftException("restoring log entry %d: %w", e.Index, err)
		}
	}
	return n, nil
}

// Start arms the election timer and the periodic report task; call
// exactly once, from the Runtime's executor.
func (n *Node) Start() {
	n.rt.Execute(func() {
		n.armElectionTimeout()
		n.armReportTimer()
	})
}

// fatal handles a persistence failure the spec treats as fatal to the
// node (spec.md §7 "persistence failures during log append are fatal
// to the node"): the node stops serving and becomes Terminated, rather
// than risk acting on state it could not durably record.
func (n *Node) fatal(err error) {
	n.logger.Errorf("node %s: fatal error, terminating: %v", n.id, err)
	if n.status.IsTerminal() {
		return
	}
	n.status = StatusTerminated
	n.shutdownOnTerminal()
}

// applyTermRule is the shared "observed a higher term" handling every
// handler consults first (spec.md §4.3): on a strictly higher term,
// persist it, clear vote, step down to Follower, and return true so
// the caller's specific logic can continue against the now-current
// term. A term at or below current is left untouched, and the return
// value only reports whether a step-down happened.
func (n *Node) applyTermRule(term Term) bool {
	if term <= n.currentTerm {
		return false
	}
	n.currentTerm = term
	n.votedFor = ""
	if err := n.store.PersistTerm(n.currentTerm, n.votedFor); err != nil {
		n.fatal(newRaftException("persist term %d failed: %w", term, err))
		return true
	}
	n.stepDownToFollower()
	return true
}

// stepDownToFollower resets role state to Follower. A leader stepping
// down fails its pending replicate futures and queries with NotLeader;
// a leadership transfer that already sent TriggerLeaderElection is
// resolved as successful, any other transfer fails with NotLeader.
func (n *Node) stepDownToFollower() {
	if n.role.Kind == RoleLeader {
		for idx, f := range n.pendingFutures {
			f.resolve(Ordered{}, &NotLeader{LeaderHint: n.leader})
			delete(n.pendingFutures, idx)
		}
		n.failAllQueries(&NotLeader{LeaderHint: n.leader})
		if ts := n.role.leader.transfer; ts != nil {
			if ts.triggered {
				n.resolveTransferSuccess(ts)
			} else {
				n.failTransfer(ts, &NotLeader{LeaderHint: n.leader})
			}
		}
	}
	n.role = followerRole()
	n.armElectionTimeout()
}

// armElectionTimeout (re)arms the election timer with fresh jitter and
// bumps electionEpoch so any in-flight stale timer callback no-ops.
func (n *Node) armElectionTimeout() {
	n.electionEpoch++
	epoch := n.electionEpoch
	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	n.electionTimer = n.rt.Schedule(func() { n.onElectionTimeout(epoch) }, n.cfg.electionTimeout())
}

func (n *Node) onElectionTimeout(epoch int) {
	if epoch != n.electionEpoch {
		return
	}
	if n.role.Kind == RoleLeader || n.status.IsTerminal() {
		return
	}
	if !n.effectiveMembers.Contains(n.id) {
		return
	}
	n.startElection(true)
}

func (n *Node) armReportTimer() {
	n.reportTimer = n.rt.Schedule(func() { n.publishReport() }, n.cfg.reportPeriod())
}

// startElection runs the PreVote phase first (spec.md §4.3 "PreVote
// prevents a partitioned node from bumping term without actually
// being able to win"); sticky controls whether followers who still
// see a live leader lease should reject the request (set false for
// leadership-transfer-triggered elections, which must always proceed).
func (n *Node) startElection(sticky bool) {
	n.armElectionTimeout()
	if !n.effectiveMembers.Contains(n.id) {
		return
	}
	n.role = RoleState{Kind: RolePreCandidate, tally: newVoteTally(n.currentTerm + 1), sticky: sticky}
	n.role.tally.grant(n.id)
	lastIdx := n.log.LastLogOrSnapshotIndex()
	lastTerm := n.log.LastLogOrSnapshotTerm()
	for _, ep := range n.effectiveMembers.Set {
		if ep == n.id {
			continue
		}
		n.rt.Send(ep, PreVoteRequest{
			GroupID:      n.groupID,
			Sender:       n.id,
			Term:         n.currentTerm + 1,
			LastLogTerm:  lastTerm,
			LastLogIndex: lastIdx,
		})
	}
	n.maybeAdvancePreCandidate()
}

func (n *Node) maybeAdvancePreCandidate() {
	if n.role.Kind != RolePreCandidate {
		return
	}
	if n.role.tally.count(n.effectiveMembers, n.id) < n.effectiveMembers.Majority() {
		return
	}
	n.becomeCandidate(n.role.sticky)
}

// becomeCandidate bumps the real term, votes for self, persists, and
// requests votes (spec.md §4.3 candidate phase), grounded on
// raft.go's startElection after the pre-vote split was introduced in
// internal/raft/raft_election.go. sticky is carried through from the
// startElection call that kicked off the PreCandidate phase: only
// transfer.go's leadership-transfer election passes false, so that
// followers holding a live leader lease never reject it.
func (n *Node) becomeCandidate(sticky bool) {
	n.currentTerm++
	n.votedFor = n.id
	if err := n.store.PersistTerm(n.currentTerm, n.votedFor); err != nil {
		n.fatal(newRaftException("persist term %d failed: %w", n.currentTerm, err))
		return
	}
	n.role = RoleState{Kind: RoleCandidate, tally: newVoteTally(n.currentTerm), sticky: sticky}
	n.role.tally.grant(n.id)
	lastIdx := n.log.LastLogOrSnapshotIndex()
	lastTerm := n.log.LastLogOrSnapshotTerm()
	for _, ep := range n.effectiveMembers.Set {
		if ep == n.id {
			continue
		}
		n.rt.Send(ep, VoteRequest{
			GroupID:      n.groupID,
			Sender:       n.id,
			Term:         n.currentTerm,
			LastLogTerm:  lastTerm,
			LastLogIndex: lastIdx,
			Sticky:       sticky,
		})
	}
	n.maybeBecomeLeader()
}

func (n *Node) maybeBecomeLeader() {
	if n.role.Kind != RoleCandidate {
		return
	}
	if n.role.tally.count(n.effectiveMembers, n.id) < n.effectiveMembers.Majority() {
		return
	}
	n.becomeLeader()
}

// becomeLeader installs a fresh leaderState and immediately broadcasts
// a heartbeat to assert authority (spec.md §4.3, §4.2 leaderState
// lifecycle). It also appends the state machine's GetNewTermOperation,
// the mechanism spec.md §4.6 describes for exposing the new-term
// no-op to the state machine so it can observe leadership changes.
func (n *Node) becomeLeader() {
	lastIdx := n.log.LastLogOrSnapshotIndex()
	n.role = RoleState{Kind: RoleLeader, leader: newLeaderState(n.effectiveMembers.Without(n.id), lastIdx)}
	n.leader = n.id
	n.logger.Infof("node %s: became leader for term %d", n.id, n.currentTerm)
	if n.electionTimer != nil {
		n.electionTimer.Stop()
	}
	if op, ok := n.sm.GetNewTermOperation(); ok {
		if _, err := n.appendLocal(op); err != nil {
			n.logger.Warnf("node %s: failed to append new-term operation: %v", n.id, err)
		}
	}
	n.broadcastHeartbeat(true)
}

// broadcastHeartbeat sends AppendEntries to every follower. isHeartbeat
// only affects logging/metrics framing; the wire content is identical
// whether triggered by the heartbeat timer or by new work arriving.
func (n *Node) broadcastHeartbeat(isHeartbeat bool) {
	if n.role.Kind != RoleLeader {
		return
	}
	if n.heartbeatTimer != nil {
		n.heartbeatTimer.Stop()
	}
	n.heartbeatTimer = n.rt.Schedule(func() { n.onHeartbeatTimer() }, n.cfg.heartbeatPeriod())
	for ep := range n.role.leader.followers {
		n.sendAppendEntriesTo(ep)
	}
	_ = isHeartbeat
}

func (n *Node) onHeartbeatTimer() {
	if n.role.Kind != RoleLeader {
		return
	}
	n.broadcastHeartbeat(true)
}

func (n *Node) publishReport() {
	if !n.status.IsTerminal() {
		n.rt.OnReport(n.buildReport())
		n.armReportTimer()
	}
}
