package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ariel-frischer/proctest/internal/coordinator"
	clierrors "github.com/ariel-frischer/proctest/internal/errors"
	"github.com/ariel-frischer/proctest/internal/fsutil"
	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RunStatus represents the overall status of a run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates every group ran and no node failed.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates a node failed or a process died.
	RunStatusFailed RunStatus = "failed"
	// RunStatusAborted indicates a configuration error stopped the run
	// before any verification process launched.
	RunStatusAborted RunStatus = "aborted"
)

// GroupStatus represents the verification status of one group.
type GroupStatus string

const (
	GroupStatusPending   GroupStatus = "pending"
	GroupStatusRunning   GroupStatus = "running"
	GroupStatusCompleted GroupStatus = "completed"
	GroupStatusFailed    GroupStatus = "failed"
	// GroupStatusKilled indicates the watchdog terminated the process.
	GroupStatusKilled GroupStatus = "killed"
)

// RunSummary is the persisted record of one orchestration.
type RunSummary struct {
	// RunID is the unique identifier for the run (timestamp_uuid format).
	RunID     string    `yaml:"run_id"`
	Suite     string    `yaml:"suite,omitempty"`
	Branch    string    `yaml:"branch"`
	Selection string    `yaml:"selection"`
	Status    RunStatus `yaml:"status"`
	StartedAt time.Time `yaml:"started_at"`
	// CompletedAt is when the run finished (nil if still running).
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	// Groups in verification order.
	Groups []*GroupSummary `yaml:"groups"`
	// ConfigErrors lists the configuration errors of an aborted run.
	ConfigErrors []string `yaml:"config_errors,omitempty"`
	// Supporters maps each requirement to the sequence indices supporting it.
	Supporters map[string][]int `yaml:"supporters,omitempty"`
	// Unsupportive lists nodes from which no requirement is reachable.
	Unsupportive []int `yaml:"unsupportive,omitempty"`
}

// GroupSummary tracks one group within a run.
type GroupSummary struct {
	Name   string      `yaml:"name"`
	Status GroupStatus `yaml:"status"`
	// First and Count are the group's block of sequence indices.
	First int `yaml:"first"`
	Count int `yaml:"count"`
	// ExitCode is the verification process exit code (nil if not run).
	ExitCode    *int       `yaml:"exit_code,omitempty"`
	Salvaged    bool       `yaml:"salvaged,omitempty"`
	StartedAt   *time.Time `yaml:"started_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	// Counts tallies nodes by final state name.
	Counts map[string]int `yaml:"counts,omitempty"`
	// FailureReason contains detailed error info if the process failed.
	FailureReason string `yaml:"failure_reason,omitempty"`
}

// NewRunSummary creates a running summary with a fresh run ID.
// The run ID format is: YYYYMMDD_HHMMSS_<8-char-uuid>
func NewRunSummary(suite, branch, selection string, groups []string) *RunSummary {
	s := &RunSummary{
		RunID:     generateRunID(),
		Suite:     suite,
		Branch:    branch,
		Selection: selection,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	for _, g := range groups {
		s.Groups = append(s.Groups, &GroupSummary{Name: g, Status: GroupStatusPending})
	}
	return s
}

// generateRunID creates a unique run ID with timestamp prefix.
func generateRunID() string {
	timestamp := time.Now().Format("20060102_150405")
	uuidSuffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s", timestamp, uuidSuffix)
}

// Group returns the summary of the named group, nil if absent.
func (s *RunSummary) Group(name string) *GroupSummary {
	for _, g := range s.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Totals sums node counts over all groups into succeeded, failed and skipped.
func (s *RunSummary) Totals() (succeeded, failed, skipped int) {
	for _, g := range s.Groups {
		for name, n := range g.Counts {
			st, err := node.ParseState(name)
			if err != nil {
				continue
			}
			switch {
			case st == node.CompleteSucceeded:
				succeeded += n
			case st == node.CompleteFailed:
				failed += n
			case st.Skipped():
				skipped += n
			}
		}
	}
	return succeeded, failed, skipped
}

// finish stamps the completion time and final status.
func (s *RunSummary) finish(status RunStatus) {
	now := time.Now()
	s.CompletedAt = &now
	s.Status = status
}

func (g *GroupSummary) start(rng node.GroupRange) {
	now := time.Now()
	g.Status = GroupStatusRunning
	g.StartedAt = &now
	g.First = rng.First
	g.Count = rng.Count
}

// Collected reports whether the group's process ran to exit and its
// outcomes were read back.
func (g *GroupSummary) Collected() bool {
	return g.ExitCode != nil
}

// complete records how the group's process ended and its node counts.
func (g *GroupSummary) complete(res coordinator.ProcessResult, tree *node.Node, timeout time.Duration) {
	now := time.Now()
	g.CompletedAt = &now
	code := res.ExitCode
	g.ExitCode = &code
	g.Salvaged = res.Salvaged
	g.Counts = countStates(tree)

	switch {
	case res.Killed:
		g.Status = GroupStatusKilled
		g.FailureReason = clierrors.VerificationTimedOut(g.Name, timeout.String()).Error()
	case res.Salvaged:
		g.Status = GroupStatusFailed
		g.FailureReason = fmt.Sprintf("process exited with code %d without writing results", res.ExitCode)
	case res.ExitCode != 0:
		g.Status = GroupStatusFailed
		g.FailureReason = fmt.Sprintf("process exited with code %d", res.ExitCode)
	case g.Counts[node.CompleteFailed.String()] > 0:
		g.Status = GroupStatusFailed
	default:
		g.Status = GroupStatusCompleted
	}
}

// fail records a group whose process never ran to exit. The tree holds the
// failures recorded for its nodes.
func (g *GroupSummary) fail(err error, tree *node.Node) {
	now := time.Now()
	g.CompletedAt = &now
	g.Status = GroupStatusFailed
	g.FailureReason = err.Error()
	if tree != nil {
		g.Counts = countStates(tree)
	}
}

func countStates(root *node.Node) map[string]int {
	counts := make(map[string]int)
	root.Walk(func(n *node.Node) bool {
		counts[n.State.String()]++
		return true
	})
	return counts
}

// GetRunsDir returns the directory holding run summaries.
func GetRunsDir(stateDir string) string {
	return filepath.Join(stateDir, "runs")
}

// GetSummaryPath returns the path to a run's summary file.
func GetSummaryPath(stateDir, runID string) string {
	return filepath.Join(GetRunsDir(stateDir), runID+".yaml")
}

// SaveSummary writes the summary to disk atomically.
func SaveSummary(stateDir string, s *RunSummary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	if err := fsutil.WriteAtomic(GetSummaryPath(stateDir, s.RunID), data); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}

// LoadSummary reads a run summary from disk.
// Returns nil and no error if the summary file doesn't exist.
func LoadSummary(stateDir, runID string) (*RunSummary, error) {
	data, err := os.ReadFile(GetSummaryPath(stateDir, runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run summary: %w", err)
	}

	var s RunSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing run summary: %w", err)
	}
	return &s, nil
}

// ListSummaries returns all run summaries, newest first. Unreadable files
// are skipped.
func ListSummaries(stateDir string) ([]*RunSummary, error) {
	entries, err := os.ReadDir(GetRunsDir(stateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	var runs []*RunSummary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}
		s, err := LoadSummary(stateDir, strings.TrimSuffix(name, ".yaml"))
		if err != nil || s == nil {
			continue
		}
		runs = append(runs, s)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
