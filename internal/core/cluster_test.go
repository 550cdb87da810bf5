package core

import (
	"sync"
	"testing"
	"time"
)

// testCluster wires several Nodes together through a shared,
// round-pumped message queue instead of real sockets or goroutines:
// Send appends to the queue, and pumpRounds repeatedly drains whatever
// is queued into HandleMessage calls until nothing new is produced or
// the round budget runs out. This keeps scenario tests deterministic
// (no real timers, no real network) while still exercising the exact
// same HandleMessage path rpcx would drive in production, grounded on
// the teacher's habit of building in-process multi-replica clusters
// for test/reliable_test.go rather than mocking individual RPCs.
type testCluster struct {
	mu    sync.Mutex
	nodes map[Endpoint]*Node
	queue []queuedMessage
}

type queuedMessage struct {
	to  Endpoint
	msg Message
}

func newTestCluster(ids []Endpoint) *testCluster {
	return &testCluster{nodes: make(map[Endpoint]*Node, len(ids))}
}

func (c *testCluster) enqueue(to Endpoint, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, queuedMessage{to: to, msg: msg})
}

// pumpRounds drains the queue breadth-first for up to rounds
// iterations, stopping early once a round produces no new traffic.
func (c *testCluster) pumpRounds(rounds int) {
	for i := 0; i < rounds; i++ {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, qm := range batch {
			node := c.nodes[qm.to]
			if node == nil {
				continue
			}
			node.HandleMessage(qm.msg)
		}
	}
}

// clusterRuntime is the per-node Runtime facing a testCluster: Execute
// and Submit run inline (there is exactly one logical thread driving
// the whole test), Schedule records a timer without ever firing it
// (scenario tests trigger elections/heartbeats explicitly rather than
// waiting on real durations), and Send hands off to the shared queue.
type clusterRuntime struct {
	self    Endpoint
	cluster *testCluster
}

func (rt *clusterRuntime) Execute(task Task) { task() }
func (rt *clusterRuntime) Submit(task Task)  { task() }

func (rt *clusterRuntime) Schedule(task Task, delay time.Duration) Timer {
	return &stubTimer{task: task, delay: delay}
}

func (rt *clusterRuntime) Send(to Endpoint, msg Message) {
	rt.cluster.enqueue(to, msg)
}

func (rt *clusterRuntime) OnReport(NodeReport)   {}
func (rt *clusterRuntime) OnGroupTerminated()    {}

func newTestCluster3(t *testing.T) (*testCluster, []Endpoint) {
	ids := []Endpoint{"n1", "n2", "n3"}
	c := newTestCluster(ids)
	for _, id := range ids {
		rt := &clusterRuntime{self: id, cluster: c}
		n, err := NewNode(id, "group-1", testConfig(), ids, NewNopStore(), &memStateMachine{}, rt, testLogger())
		if err != nil {
			t.Fatalf("NewNode(%s): %v", id, err)
		}
		c.nodes[id] = n
	}
	return c, ids
}

func TestClusterElectsALeader(t *testing.T) {
	c, _ := newTestCluster3(t)
	c.nodes["n1"].startElection(true)
	c.pumpRounds(10)

	if c.nodes["n1"].role.Kind != RoleLeader {
		t.Fatalf("want n1 to become leader, got role=%s term=%d", c.nodes["n1"].role.Kind, c.nodes["n1"].currentTerm)
	}
	for _, id := range []Endpoint{"n2", "n3"} {
		if c.nodes[id].role.Kind != RoleFollower {
			t.Fatalf("want %s to remain Follower, got %s", id, c.nodes[id].role.Kind)
		}
		if c.nodes[id].currentTerm != c.nodes["n1"].currentTerm {
			t.Fatalf("want %s to observe the same term as the leader", id)
		}
	}
}

func TestClusterReplicatesAndCommits(t *testing.T) {
	c, _ := newTestCluster3(t)
	leader := c.nodes["n1"]
	leader.startElection(true)
	c.pumpRounds(10)
	if leader.role.Kind != RoleLeader {
		t.Fatalf("setup: n1 did not become leader")
	}

	f := leader.Replicate("hello")
	c.pumpRounds(10)

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("future never resolved after pumping the cluster")
	}
	ordered, err := f.Wait()
	if err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}
	if ordered.Result != "hello" {
		t.Fatalf("want applied result \"hello\", got %v", ordered.Result)
	}

	for _, id := range []Endpoint{"n1", "n2", "n3"} {
		n := c.nodes[id]
		if n.commitIndex < ordered.CommitIndex {
			t.Fatalf("want %s commitIndex >= %d, got %d", id, ordered.CommitIndex, n.commitIndex)
		}
	}
}

func TestClusterFollowerStepsDownAndRejoinsAfterHigherTermLeader(t *testing.T) {
	c, _ := newTestCluster3(t)
	c.nodes["n1"].startElection(true)
	c.pumpRounds(10)
	if c.nodes["n1"].role.Kind != RoleLeader {
		t.Fatalf("setup: n1 did not become leader")
	}
	firstTerm := c.nodes["n1"].currentTerm

	// n3 times out and starts its own election at a higher term; n1 must
	// step down once it observes n3's higher-term RequestVote.
	c.nodes["n3"].startElection(true)
	c.pumpRounds(10)

	if c.nodes["n1"].currentTerm <= firstTerm {
		t.Fatalf("want n1's term to advance past %d once it saw n3's election, got %d", firstTerm, c.nodes["n1"].currentTerm)
	}
	if c.nodes["n1"].role.Kind == RoleLeader && c.nodes["n3"].role.Kind == RoleLeader {
		t.Fatalf("two simultaneous leaders in the same term is a safety violation")
	}
}
