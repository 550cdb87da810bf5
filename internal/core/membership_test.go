package core

import "testing"

func TestChangeMembershipRejectedWhenNotLeader(t *testing.T) {
	n, _ := newTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	f := n.ChangeMembership("n4", MembershipAdd, NoIndex)
	_, err := f.Wait()
	if _, ok := err.(*NotLeader); !ok {
		t.Fatalf("want NotLeader on a follower, got %v", err)
	}
}

func TestChangeMembershipRejectedOnStaleExpectedCommitIndex(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	f := n.ChangeMembership("n4", MembershipAdd, 99)
	_, err := f.Wait()
	if _, ok := err.(*CannotReplicate); !ok {
		t.Fatalf("want CannotReplicate on a stale expectedCommitIndex, got %v", err)
	}
}

func TestChangeMembershipAddsMemberAndFlipsEffectiveImmediately(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})

	f := n.ChangeMembership("n4", MembershipAdd, n.committedMembers.LogIndex)
	if !n.effectiveMembers.Contains("n4") {
		t.Fatalf("want effectiveMembers to include n4 immediately on append, got %v", n.effectiveMembers.Set)
	}
	if n.committedMembers.Contains("n4") {
		t.Fatalf("committedMembers must not change until the entry commits")
	}
	if _, ok := n.role.leader.followers["n4"]; !ok {
		t.Fatalf("want a followerState created for n4 immediately")
	}

	// Drive the append through the applier as if it had committed.
	idx := n.log.LastLogOrSnapshotIndex()
	n.advanceCommitTo(idx)

	if !n.committedMembers.Contains("n4") {
		t.Fatalf("want committedMembers to include n4 once the entry commits")
	}
	select {
	case <-f.Done():
	default:
		t.Fatalf("want the ChangeMembership future resolved once committed")
	}
}

func TestChangeMembershipRejectsConcurrentChange(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.ChangeMembership("n4", MembershipAdd, n.committedMembers.LogIndex)

	f2 := n.ChangeMembership("n5", MembershipAdd, n.committedMembers.LogIndex)
	_, err := f2.Wait()
	if _, ok := err.(*CannotReplicate); !ok {
		t.Fatalf("want CannotReplicate while a membership change is already in flight, got %v", err)
	}
}

func TestApplyUpdateMembersTerminatesWhenSelfRemoved(t *testing.T) {
	n, _ := newTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.applyUpdateMembers(5, UpdateMembersOp{Endpoint: "n1", Mode: MembershipRemove, Members: []Endpoint{"n2", "n3"}})

	if !n.status.IsTerminal() {
		t.Fatalf("want node to terminate once removed from its own group, got status=%s", n.status)
	}
}

func TestApplyUpdateMembersStaysActiveWhenAnotherNodeRemoved(t *testing.T) {
	n, _ := newTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.applyUpdateMembers(5, UpdateMembersOp{Endpoint: "n3", Mode: MembershipRemove, Members: []Endpoint{"n1", "n2"}})

	if n.status != StatusActive {
		t.Fatalf("want status Active after a membership change that keeps n1, got %s", n.status)
	}
	if n.committedMembers.Contains("n3") {
		t.Fatalf("want n3 removed from committedMembers")
	}
}
