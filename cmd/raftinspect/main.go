// Command raftinspect renders the most recent NodeReport from every
// member of a group as a table, grounded on src/client/console_client.go's
// gotable-based status views (ApiShow / ApiShowMaster rendering).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/liushuochen/gotable"
	"github.com/liushuochen/gotable/cell"
)

// reportView is the subset of core.NodeReport the host's inspection
// endpoint exposes over HTTP as JSON (kept separate from core.NodeReport
// so this command has no dependency on internal/core).
type reportView struct {
	GroupID       string            `json:"group_id"`
	Self          string            `json:"self"`
	Role          string            `json:"role"`
	Term          uint64            `json:"term"`
	Leader        string            `json:"leader"`
	Status        string            `json:"status"`
	CommitIndex   uint64            `json:"commit_index"`
	LastApplied   uint64            `json:"last_applied"`
	LastLogIndex  uint64            `json:"last_log_index"`
	SnapshotIndex uint64            `json:"snapshot_index"`
	Members       []string          `json:"members"`
	FollowerMatch map[string]uint64 `json:"follower_match,omitempty"`
}

func main() {
	endpoints := flag.String("endpoints", "", "comma-separated http://host:port/status endpoints to poll")
	flag.Parse()
	if *endpoints == "" {
		fmt.Fprintln(os.Stderr, "raftinspect: -endpoints is required")
		os.Exit(1)
	}

	var reports []reportView
	for _, url := range splitCSV(*endpoints) {
		rv, err := fetch(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "raftinspect: %s: %v\n", url, err)
			continue
		}
		reports = append(reports, rv)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Self < reports[j].Self })

	table, err := gotable.Create("Self", "Role", "Term", "Leader", "Status", "Commit", "Applied", "LastLog", "Snapshot")
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftinspect: %v\n", err)
		os.Exit(1)
	}
	for _, col := range []string{"Self", "Role", "Leader", "Status"} {
		table.Align(col, cell.AlignLeft)
	}
	table.CloseBorder()

	for _, r := range reports {
		row := []string{
			r.Self, r.Role, fmt.Sprintf("%d", r.Term), r.Leader, r.Status,
			fmt.Sprintf("%d", r.CommitIndex), fmt.Sprintf("%d", r.LastApplied),
			fmt.Sprintf("%d", r.LastLogIndex), fmt.Sprintf("%d", r.SnapshotIndex),
		}
		if err := table.AddRow(row); err != nil {
			fmt.Fprintf(os.Stderr, "raftinspect: %v\n", err)
			continue
		}
	}
	fmt.Print(table.String())
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func fetch(url string) (reportView, error) {
	var rv reportView
	resp, err := http.Get(url)
	if err != nil {
		return rv, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rv, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&rv); err != nil {
		return rv, err
	}
	return rv, nil
}
