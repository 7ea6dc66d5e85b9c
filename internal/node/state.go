package node

import "fmt"

// State is a node's position in the execution state machine.
//
//	Uninitialized -> Initialized -> RunningSubtests -> CompleteSucceeded | CompleteFailed
//
// or, without running, one of the Skipped* states.
type State int

const (
	Uninitialized State = iota
	Initialized
	RunningSubtests
	CompleteSucceeded
	CompleteFailed
	SkippedByUser
	SkippedDueToSiblingError
	SkippedDueToPrerequisiteError
)

var stateNames = map[State]string{
	Uninitialized:                 "UNINITIALIZED",
	Initialized:                   "INITIALIZED",
	RunningSubtests:               "RUNNING_SUBTESTS",
	CompleteSucceeded:             "COMPLETE_SUCCEEDED",
	CompleteFailed:                "COMPLETE_FAILED",
	SkippedByUser:                 "SKIPPED_BY_USER",
	SkippedDueToSiblingError:      "SKIPPED_DUE_TO_SIBLING_ERROR",
	SkippedDueToPrerequisiteError: "SKIPPED_DUE_TO_PREREQUISITE_ERROR",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st, name := range stateNames {
		if name == s {
			return st, nil
		}
	}
	return Uninitialized, fmt.Errorf("unknown node state %q", s)
}

// Terminal reports whether the node will not change state again this run.
func (s State) Terminal() bool {
	return s >= CompleteSucceeded
}

// Skipped reports whether the node was recorded without running.
func (s State) Skipped() bool {
	return s >= SkippedByUser
}

// Succeeded reports whether the node ran and recorded no failure.
func (s State) Succeeded() bool {
	return s == CompleteSucceeded
}

// Sequencing is the child-scheduling policy of a node.
type Sequencing int

const (
	// SequentialAbort runs children one at a time in declared order and
	// skips the remaining siblings after the first failing subtree.
	SequentialAbort Sequencing = iota
	// SequentialContinue runs children one at a time regardless of outcome.
	SequentialContinue
	// Parallel submits all children at once.
	Parallel
)

func (s Sequencing) String() string {
	switch s {
	case SequentialAbort:
		return "SEQUENTIAL_ABORT"
	case SequentialContinue:
		return "SEQUENTIAL_CONTINUE"
	case Parallel:
		return "PARALLEL"
	default:
		return fmt.Sprintf("Sequencing(%d)", int(s))
	}
}

// Continuation decides whether children run after a local failure.
type Continuation int

const (
	// ContinueOnFailure runs children even when the node itself failed.
	ContinueOnFailure Continuation = iota
	// SkipOnFailure keeps children out of RUNNING_SUBTESTS after a local failure.
	SkipOnFailure
)

func (c Continuation) String() string {
	if c == SkipOnFailure {
		return "SKIP_ON_FAILURE"
	}
	return "CONTINUE_ON_FAILURE"
}
