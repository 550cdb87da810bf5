package core

import "testing"

func TestTransferLeadershipRejectedWhenNotLeader(t *testing.T) {
	n, _ := newTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	f := n.TransferLeadership("n2")
	_, err := f.Wait()
	if _, ok := err.(*NotLeader); !ok {
		t.Fatalf("want NotLeader on a follower, got %v", err)
	}
}

func TestTransferLeadershipRejectedForNonMember(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	f := n.TransferLeadership("n9")
	_, err := f.Wait()
	if _, ok := err.(*CannotReplicate); !ok {
		t.Fatalf("want CannotReplicate for a non-member target, got %v", err)
	}
}

func TestTransferLeadershipSendsTriggerButStaysPendingUntilTermBump(t *testing.T) {
	n, rt := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	// leaderTestNode's log ends at index 1; make n2 already caught up.
	n.role.leader.followers["n2"].matchIndex = n.log.LastLogOrSnapshotIndex()

	f := n.TransferLeadership("n2")

	found := false
	for _, msg := range rt.sentTo("n2") {
		if _, ok := msg.(TriggerLeaderElection); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("want a TriggerLeaderElection sent to the caught-up target")
	}
	select {
	case <-f.Done():
		t.Fatalf("want the transfer to stay pending until a higher term is actually observed")
	default:
	}
	if n.role.leader.transfer == nil || !n.role.leader.transfer.triggered {
		t.Fatalf("want the transfer state kept around, marked triggered")
	}
}

func TestTransferLeadershipResolvesOnceHigherTermObserved(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.role.leader.followers["n2"].matchIndex = n.log.LastLogOrSnapshotIndex()

	f := n.TransferLeadership("n2")

	// n2 won the triggered election and is now canvassing at a higher term.
	n.HandleMessage(VoteRequest{
		GroupID: "group-1", Sender: "n2", Term: n.currentTerm + 1,
		LastLogIndex: n.log.LastLogOrSnapshotIndex(), LastLogTerm: n.log.LastLogOrSnapshotTerm(),
	})

	select {
	case <-f.Done():
	default:
		t.Fatalf("want the transfer resolved once the higher term is observed")
	}
	ordered, err := f.Wait()
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if ordered.Result != Endpoint("n2") {
		t.Fatalf("want the resolved target n2, got %v", ordered.Result)
	}
	if n.role.Kind != RoleFollower {
		t.Fatalf("want the old leader stepped down to Follower, got %s", n.role.Kind)
	}
}

func TestTransferLeadershipFailsOnTimeoutIfNoTermBumpObserved(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.role.leader.followers["n2"].matchIndex = n.log.LastLogOrSnapshotIndex()

	f := n.TransferLeadership("n2")
	ts := n.role.leader.transfer
	if ts == nil || !ts.triggered {
		t.Fatalf("want the transfer triggered before its timeout fires")
	}

	// Simulate the transfer timeout firing before any term bump arrives.
	n.handleTransferTimeout(ts)

	_, err := f.Wait()
	if err == nil {
		t.Fatalf("want the transfer to fail once its timeout fires with no observed handover")
	}
	if n.role.leader.transfer != nil {
		t.Fatalf("want transfer state cleared after the timeout")
	}
}

func TestTransferLeadershipRejectsConcurrentTransfer(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.role.leader.followers["n2"].matchIndex = 0 // not caught up: transfer stays pending
	n.TransferLeadership("n2")

	f2 := n.TransferLeadership("n3")
	_, err := f2.Wait()
	if _, ok := err.(*CannotReplicate); !ok {
		t.Fatalf("want CannotReplicate for a second concurrent transfer, got %v", err)
	}
}

func TestHandleTriggerLeaderElectionStartsElectionWhenCaughtUp(t *testing.T) {
	n, rt := newTestNode("n2", []Endpoint{"n1", "n2", "n3"})
	lastIdx := n.log.LastLogOrSnapshotIndex()
	lastTerm := n.log.LastLogOrSnapshotTerm()

	n.HandleMessage(TriggerLeaderElection{
		GroupID: "group-1", Sender: "n1", Term: n.currentTerm,
		LastLogIndex: lastIdx, LastLogTerm: lastTerm,
	})

	if n.role.Kind != RolePreCandidate {
		t.Fatalf("want an election started (PreCandidate), got %s", n.role.Kind)
	}
	if _, ok := rt.lastSentTo("n1"); !ok {
		t.Fatalf("want a PreVoteRequest sent as part of the triggered election")
	}
}

func TestHandleTriggerLeaderElectionIgnoredWhenNotCaughtUp(t *testing.T) {
	n, _ := newTestNode("n2", []Endpoint{"n1", "n2", "n3"})
	n.HandleMessage(TriggerLeaderElection{
		GroupID: "group-1", Sender: "n1", Term: n.currentTerm,
		LastLogIndex: 99, LastLogTerm: 5,
	})
	if n.role.Kind != RoleFollower {
		t.Fatalf("want no election started when not caught up, got %s", n.role.Kind)
	}
}
