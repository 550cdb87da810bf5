package core

import (
	"fmt"

	"golang.org/x/xerrors"
)

// NotLeader is returned when an operation requires leader role and the
// local node is not leader, or the leader was demoted mid-operation.
type NotLeader struct {
	LeaderHint Endpoint
}

func (e *NotLeader) Error() string {
	if e.LeaderHint == "" {
		return "raft: not leader"
	}
	return fmt.Sprintf("raft: not leader, hint=%s", e.LeaderHint)
}

// CannotReplicate is returned for capacity exhaustion, a concurrent
// membership change, or a pending leadership transfer.
type CannotReplicate struct {
	LeaderHint Endpoint
	Reason     string
}

func (e *CannotReplicate) Error() string {
	if e.LeaderHint == "" {
		return fmt.Sprintf("raft: cannot replicate: %s", e.Reason)
	}
	return fmt.Sprintf("raft: cannot replicate: %s, hint=%s", e.Reason, e.LeaderHint)
}

// LaggingCommitIndex is returned when a query's minCommitIndex gate
// fails against the local commit index.
type LaggingCommitIndex struct {
	Current  LogIndex
	Expected LogIndex
	Leader   Endpoint
}

func (e *LaggingCommitIndex) Error() string {
	return fmt.Sprintf("raft: lagging commit index: current=%d expected=%d leader=%s",
		e.Current, e.Expected, e.Leader)
}

// IndeterminateState is returned when an entry's future could not
// observe an outcome because a snapshot superseded it first.
type IndeterminateState struct {
	Leader Endpoint
}

func (e *IndeterminateState) Error() string {
	return fmt.Sprintf("raft: indeterminate state, leader=%s", e.Leader)
}

// RaftException wraps unexpected internal failures: persistence I/O
// during snapshot capture, or a panic recovered from the user state
// machine.
type RaftException struct {
	cause error
}

func newRaftException(format string, args ...interface{}) *RaftException {
	return &RaftException{cause: xerrors.Errorf(format, args...)}
}

func (e *RaftException) Error() string {
	return fmt.Sprintf("raft: internal exception: %v", e.cause)
}

func (e *RaftException) Unwrap() error {
	return e.cause
}
