// Package metrics turns the periodic core.NodeReport into observable
// counters/gauges, grounded on internal/master/server.go's
// promauto-registered counters plus the go.mod's rcrowley/go-metrics
// and cyberdelia/go-metrics-graphite pairing for a push-based export
// path alongside the pull-based Prometheus one.
package metrics

import (
	"fmt"
	"net"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	graphite "github.com/cyberdelia/go-metrics-graphite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raftgroup/core/internal/core"
)

// Registry collects one node's Raft metrics under both a
// go-metrics local registry (for graphite push) and Prometheus
// gauges/counters (for scrape).
type Registry struct {
	local gometrics.Registry

	term        gometrics.Gauge
	commitIndex gometrics.Gauge
	lastApplied gometrics.Gauge
	roleGauge   gometrics.Gauge
	leaderChanges gometrics.Counter

	promTerm        prometheus.Gauge
	promCommitIndex prometheus.Gauge
	promRole        prometheus.Gauge
	promLeaderChanges prometheus.Counter

	lastLeader core.Endpoint
}

// NewRegistry builds a fresh Registry namespaced by groupID/self so
// multiple nodes in one process do not collide on metric names.
func NewRegistry(groupID string, self core.Endpoint) *Registry {
	local := gometrics.NewRegistry()
	r := &Registry{
		local:         local,
		term:          gometrics.NewGauge(),
		commitIndex:   gometrics.NewGauge(),
		lastApplied:   gometrics.NewGauge(),
		roleGauge:     gometrics.NewGauge(),
		leaderChanges: gometrics.NewCounter(),
	}
	_ = local.Register("raft.term", r.term)
	_ = local.Register("raft.commit_index", r.commitIndex)
	_ = local.Register("raft.last_applied", r.lastApplied)
	_ = local.Register("raft.role", r.roleGauge)
	_ = local.Register("raft.leader_changes", r.leaderChanges)

	namespace := fmt.Sprintf("raft_%s_%s", sanitize(groupID), sanitize(string(self)))
	r.promTerm = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "term", Help: "current Raft term"})
	r.promCommitIndex = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "commit_index", Help: "commit index"})
	r.promRole = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "role", Help: "0=Follower 1=PreCandidate 2=Candidate 3=Leader"})
	r.promLeaderChanges = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "leader_changes_total", Help: "observed leader changes"})
	return r
}

func sanitize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// Observe records one NodeReport (spec.md §4.10), meant to be wired
// as the host's OnReport callback.
func (r *Registry) Observe(report core.NodeReport) {
	r.term.Update(int64(report.Term))
	r.commitIndex.Update(int64(report.CommitIndex))
	r.lastApplied.Update(int64(report.LastApplied))
	r.roleGauge.Update(int64(report.Role))

	r.promTerm.Set(float64(report.Term))
	r.promCommitIndex.Set(float64(report.CommitIndex))
	r.promRole.Set(float64(report.Role))

	if report.Leader != r.lastLeader {
		r.leaderChanges.Inc(1)
		r.promLeaderChanges.Inc()
		r.lastLeader = report.Leader
	}
}

// StartGraphitePush begins periodically pushing the local go-metrics
// registry to a graphite carbon endpoint, grounded on the
// cyberdelia/go-metrics-graphite Graphite() helper's blocking-loop
// shape (run in its own goroutine so it never blocks the node).
func (r *Registry) StartGraphitePush(addr string, interval time.Duration, prefix string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: resolve graphite addr %s: %w", addr, err)
	}
	go graphite.Graphite(r.local, interval, prefix, tcpAddr)
	return nil
}
