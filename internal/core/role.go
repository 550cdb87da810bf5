package core

import "time"

// RoleKind is the tag of the RoleState variant (spec.md §4.2).
type RoleKind int

const (
	RoleFollower RoleKind = iota
	RolePreCandidate
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleFollower:
		return "Follower"
	case RolePreCandidate:
		return "PreCandidate"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// followerState is the leader's per-follower replication bookkeeping,
// grounded on raft.go's nextIdx/matchIdx arrays, generalized into a
// per-peer struct with the backoff/in-flight fields spec.md §4.2 and
// §4.4 require.
type followerState struct {
	nextIndex      LogIndex
	matchIndex     LogIndex
	backoffRound   int
	inFlight       bool
	lastResponseAt time.Time
}

// leaderState exists only while RoleKind == RoleLeader; it is created
// fresh on promotion and discarded on demotion (spec.md "LeaderState"
// lifecycle).
type leaderState struct {
	followers map[Endpoint]*followerState

	queryRound       uint64
	queryState       *queryState
	flushedLogIndex  LogIndex
	flushScheduled   bool

	transfer *transferState
}

func newLeaderState(members []Endpoint, lastIndex LogIndex) *leaderState {
	ls := &leaderState{
		followers:  make(map[Endpoint]*followerState, len(members)),
		queryRound: 1,
		queryState: newQueryState(),
	}
	for _, ep := range members {
		ls.followers[ep] = &followerState{nextIndex: lastIndex + 1}
	}
	return ls
}

// voteTally is shared bookkeeping for the PreCandidate and Candidate
// phases.
type voteTally struct {
	term    Term
	granted map[Endpoint]bool
}

func newVoteTally(term Term) *voteTally {
	return &voteTally{term: term, granted: make(map[Endpoint]bool)}
}

func (v *voteTally) grant(ep Endpoint) {
	v.granted[ep] = true
}

func (v *voteTally) count(members Members, self Endpoint) int {
	n := 0
	if members.Contains(self) {
		n = 1
	}
	for ep := range v.granted {
		if ep != self && members.Contains(ep) {
			n++
		}
	}
	return n
}

// RoleState is the tagged RoleKind/Leader-state/candidate-tally
// variant a Node carries (spec.md §4.2).
type RoleState struct {
	Kind   RoleKind
	leader *leaderState
	tally  *voteTally // non-nil only during PreCandidate/Candidate
	sticky bool        // carried from startElection through to the VoteRequest
}

func followerRole() RoleState {
	return RoleState{Kind: RoleFollower}
}
