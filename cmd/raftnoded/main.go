// Command raftnoded starts one Raft group member: it loads a Config,
// opens the leveldb Store, builds the rpcx Runtime, constructs the
// core.Node, and serves an HTTP status endpoint for raftinspect to
// poll. Grounded on src/replica/main/main.go's flag-driven
// config-then-startServer shape.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raftgroup/core/internal/core"
	"github.com/raftgroup/core/internal/examplekv"
	"github.com/raftgroup/core/internal/metrics"
	"github.com/raftgroup/core/store/leveldb"
	"github.com/raftgroup/core/transport/rpcx"
)

// nodeConf is the host-level configuration surrounding core.Config:
// identity, peer addresses, and the data directory, kept separate
// from core.Config the way etc.ReplicaConf wraps raft.Config.
type nodeConf struct {
	Self       string            `json:"self"`
	GroupID    string            `json:"group_id"`
	ListenAddr string            `json:"listen_addr"`
	StatusAddr string            `json:"status_addr"`
	DataDir    string            `json:"data_dir"`
	Peers      map[string]string `json:"peers"` // endpoint -> rpc addr, excludes self
	Raft       core.Config       `json:"raft"`
}

func main() {
	var confPath string
	flag.StringVar(&confPath, "c", "", "config file path")
	flag.Parse()
	if confPath == "" {
		fmt.Fprintln(os.Stderr, "raftnoded: -c config file path is required")
		os.Exit(1)
	}
	conf, err := parseNodeConf(confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftnoded: %v\n", err)
		os.Exit(1)
	}

	logger, err := core.InitLogger(conf.Raft.LogLevel, conf.Self)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftnoded: logger: %v\n", err)
		os.Exit(1)
	}

	store, err := leveldb.Open(conf.DataDir, nil)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	rt, err := rpcx.New(core.Endpoint(conf.Self), conf.ListenAddr, logger)
	if err != nil {
		logger.Fatalf("start runtime: %v", err)
	}
	for ep, addr := range conf.Peers {
		if err := rt.AddPeer(core.Endpoint(ep), addr); err != nil {
			logger.Fatalf("add peer %s: %v", ep, err)
		}
	}

	members := make([]core.Endpoint, 0, len(conf.Peers)+1)
	members = append(members, core.Endpoint(conf.Self))
	for ep := range conf.Peers {
		members = append(members, core.Endpoint(ep))
	}

	sm := examplekv.New()
	node, err := core.NewNode(core.Endpoint(conf.Self), conf.GroupID, conf.Raft, members, store, sm, rt, logger)
	if err != nil {
		logger.Fatalf("construct node: %v", err)
	}

	reg := metrics.NewRegistry(conf.GroupID, core.Endpoint(conf.Self))
	rt.AttachNode(node, reg.Observe, func() {
		logger.Warnf("node %s: group terminated", conf.Self)
	})
	node.Start()

	serveStatus(conf.StatusAddr, node)

	select {}
}

func parseNodeConf(path string) (nodeConf, error) {
	var conf nodeConf
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := json.Unmarshal(data, &conf); err != nil {
		return conf, err
	}
	if conf.Raft == (core.Config{}) {
		conf.Raft = core.DefaultConfig()
	}
	return conf, nil
}

func serveStatus(addr string, node *core.Node) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		rep := node.Report()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"group_id": rep.GroupID, "self": rep.Self, "role": rep.Role.String(),
			"term": rep.Term, "leader": rep.Leader, "status": rep.Status.String(),
			"commit_index": rep.CommitIndex, "last_applied": rep.LastApplied,
			"last_log_index": rep.LastLogIndex, "snapshot_index": rep.SnapshotIndex,
			"members": rep.Members, "follower_match": rep.FollowerMatch,
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
