package core

import (
	"encoding/json"
	"io/ioutil"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the exhaustive set of tunables from spec.md §6, mirroring
// the defaults-then-overlay-from-JSON shape of the teacher's
// etc.NodeConf/RaftConf.
type Config struct {
	LeaderElectionTimeoutMillis  int `json:"leader_election_timeout_millis"`
	LeaderHeartbeatPeriodMillis  int `json:"leader_heartbeat_period_millis"`
	LeaderHeartbeatTimeoutMillis int `json:"leader_heartbeat_timeout_millis"`
	LeaderBackoffDurationMillis  int `json:"leader_backoff_duration_millis"`

	AppendEntriesRequestBatchSize int `json:"append_entries_request_batch_size"`
	MaxUncommittedLogEntryCount   int `json:"max_uncommitted_log_entry_count"`
	CommitCountToTakeSnapshot     int `json:"commit_count_to_take_snapshot"`
	KeptAfterSnapshot             int `json:"kept_after_snapshot"`

	RaftNodeReportPublishPeriodSecs int `json:"raft_node_report_publish_period_secs"`

	LeadershipTransferTimeoutMillis int `json:"leadership_transfer_timeout_millis"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig mirrors etc.MakeDefaultConfig's "reasonable defaults"
// habit from the teacher.
func DefaultConfig() Config {
	return Config{
		LeaderElectionTimeoutMillis:     1000,
		LeaderHeartbeatPeriodMillis:     100,
		LeaderHeartbeatTimeoutMillis:    300,
		LeaderBackoffDurationMillis:     500,
		AppendEntriesRequestBatchSize:   64,
		MaxUncommittedLogEntryCount:     1000,
		CommitCountToTakeSnapshot:       10000,
		KeptAfterSnapshot:               100,
		RaftNodeReportPublishPeriodSecs: 5,
		LeadershipTransferTimeoutMillis: 5000,
		LogLevel:                        "info",
	}
}

// ParseConfig loads a Config from JSON, overlaying DefaultConfig the
// way etc.ParseNodeConf overlays etc.MakeDefaultConfig.
func ParseConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) electionTimeout() time.Duration {
	noise := rand.Intn(100)
	return time.Duration(c.LeaderElectionTimeoutMillis+noise) * time.Millisecond
}

func (c Config) heartbeatPeriod() time.Duration {
	return time.Duration(c.LeaderHeartbeatPeriodMillis) * time.Millisecond
}

func (c Config) heartbeatTimeout() time.Duration {
	return time.Duration(c.LeaderHeartbeatTimeoutMillis) * time.Millisecond
}

func (c Config) backoffCeiling() time.Duration {
	return time.Duration(c.LeaderBackoffDurationMillis) * time.Millisecond
}

func (c Config) reportPeriod() time.Duration {
	return time.Duration(c.RaftNodeReportPublishPeriodSecs) * time.Second
}

func (c Config) transferTimeout() time.Duration {
	return time.Duration(c.LeadershipTransferTimeoutMillis) * time.Millisecond
}

// InitLogger mirrors pkg/common.InitLogger: one *logrus.Logger per
// node, formatted with the component name rather than a global logger.
func InitLogger(level, component string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&componentFormatter{Component: component})
	return logger, nil
}

type componentFormatter struct {
	Component string
}

func (f *componentFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format("2006/01/02 15:04:05")
	line := ts + " " + entry.Level.String() + " [" + f.Component + "] " + entry.Message + "\n"
	return []byte(line), nil
}
