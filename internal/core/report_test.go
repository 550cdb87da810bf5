package core

import "testing"

func TestReportReflectsCurrentState(t *testing.T) {
	n, _ := leaderTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	n.role.leader.followers["n2"].matchIndex = 1

	r := n.Report()

	if r.Self != "n1" || r.Role != RoleLeader || r.Term != n.currentTerm {
		t.Fatalf("unexpected report identity: %+v", r)
	}
	if r.CommitIndex != n.commitIndex || r.LastApplied != n.lastApplied {
		t.Fatalf("unexpected report indices: %+v", r)
	}
	if r.FollowerMatch["n2"] != 1 {
		t.Fatalf("want FollowerMatch[n2]=1, got %+v", r.FollowerMatch)
	}
}

func TestReportOmitsFollowerMatchWhenNotLeader(t *testing.T) {
	n, _ := newTestNode("n1", []Endpoint{"n1", "n2", "n3"})
	r := n.Report()
	if r.FollowerMatch != nil {
		t.Fatalf("want nil FollowerMatch on a follower, got %+v", r.FollowerMatch)
	}
}
