package node

import (
	"errors"
	"fmt"
	"slices"
)

// Multiplicity controls how many matching nodes a pattern binds to.
type Multiplicity int

const (
	// First binds the match with the lowest sequence index.
	First Multiplicity = iota
	// All binds every match.
	All
)

func (m Multiplicity) String() string {
	if m == All {
		return "ALL"
	}
	return "FIRST"
}

// Kind distinguishes prerequisites that must succeed in this run from ones
// that may be satisfied by an earlier run's success.
type Kind int

const (
	// Fixed prerequisites must succeed in the current run.
	Fixed Kind = iota
	// Conditional prerequisites are satisfied by a previous successful run.
	Conditional
)

// Prerequisite is a declared dependency pattern. It is resolved once against
// the fully discovered, globally sequenced tree.
type Prerequisite struct {
	Class  string
	Method string
	Arg    string
	HasArg bool
	// AnyArg matches candidates regardless of their argument.
	AnyArg bool
	// Groups restricts candidates to the named groups; empty means all groups.
	Groups []string
	// IncludeSubtree binds every descendant of a matched node as well.
	IncludeSubtree bool
	Multiplicity   Multiplicity
	Kind           Kind
}

// Requires builds a fixed, FIRST-multiplicity prerequisite on class.method.
func Requires(class, method string) Prerequisite {
	return Prerequisite{Class: class, Method: method}
}

// ErrInvalidPattern is wrapped by Validate failures.
var ErrInvalidPattern = errors.New("invalid prerequisite pattern")

// Validate rejects patterns that can never be resolved.
func (p Prerequisite) Validate() error {
	if p.Class == "" {
		return fmt.Errorf("%w: class is required", ErrInvalidPattern)
	}
	if p.HasArg && p.AnyArg {
		return fmt.Errorf("%w: %s: argument and any-argument are exclusive", ErrInvalidPattern, p)
	}
	if p.Multiplicity != First && p.Multiplicity != All {
		return fmt.Errorf("%w: %s: unknown multiplicity %d", ErrInvalidPattern, p, int(p.Multiplicity))
	}
	if p.Kind != Fixed && p.Kind != Conditional {
		return fmt.Errorf("%w: %s: unknown kind %d", ErrInvalidPattern, p, int(p.Kind))
	}
	return nil
}

// Matches reports whether id satisfies the class/method/argument part of the
// pattern. Group restriction is applied separately through InGroup.
func (p Prerequisite) Matches(id Identity) bool {
	if id.Class != p.Class || id.Method != p.Method {
		return false
	}
	if p.AnyArg {
		return true
	}
	if p.HasArg != id.HasArg {
		return false
	}
	return !p.HasArg || p.Arg == id.Arg
}

// InGroup reports whether candidates from group may match.
func (p Prerequisite) InGroup(group string) bool {
	return len(p.Groups) == 0 || slices.Contains(p.Groups, group)
}

func (p Prerequisite) String() string {
	id := Identity{Class: p.Class, Method: p.Method, Arg: p.Arg, HasArg: p.HasArg}
	s := id.String()
	if p.AnyArg {
		s += "(*)"
	}
	return s
}

// Options is what a unit supplies to Initialize.
type Options struct {
	Sequencing    Sequencing
	Continuation  Continuation
	Prerequisites []Prerequisite
	Tags          []string
	Requirements  []string
}

// ConfigError is a configuration failure tied to specific nodes. It aborts
// a run before any verification process launches.
type ConfigError struct {
	Message string
	Nodes   []Identity
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Sentinel errors returned by Initialize.
var (
	ErrAlreadyInitialized = errors.New("initialize called more than once")
	ErrNotInitial         = errors.New("node state is not UNINITIALIZED")
)
