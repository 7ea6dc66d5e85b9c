package orchestrator

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/ariel-frischer/proctest/internal/node"
)

// Pattern selects nodes from the command line. Its text form is
//
//	#<seq>
//	[group:]Class[.method[(arg)]]
//
// where group, class and method accept shell glob syntax. A missing method
// matches every method; a missing argument matches any argument.
type Pattern struct {
	Seq    int
	Group  string
	Class  string
	Method string
	Arg    string
	HasArg bool
}

// ParsePattern parses the text form of a pattern.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern{Seq: node.Unsequenced}
	s = strings.TrimSpace(s)
	if s == "" {
		return p, fmt.Errorf("empty node pattern")
	}

	if rest, ok := strings.CutPrefix(s, "#"); ok {
		seq, err := strconv.Atoi(rest)
		if err != nil || seq < 0 {
			return p, fmt.Errorf("invalid sequence index %q", s)
		}
		p.Seq = seq
		return p, nil
	}

	if group, rest, ok := strings.Cut(s, ":"); ok {
		p.Group, s = group, rest
	}
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return p, fmt.Errorf("invalid node pattern %q: unclosed argument", s)
		}
		p.Arg, p.HasArg = s[open+1:len(s)-1], true
		s = s[:open]
	}
	p.Class, p.Method, _ = strings.Cut(s, ".")
	if p.Class == "" {
		return p, fmt.Errorf("invalid node pattern %q: missing class", s)
	}
	for _, part := range []string{p.Group, p.Class, p.Method} {
		if _, err := path.Match(part, ""); err != nil {
			return p, fmt.Errorf("invalid node pattern %q: %w", s, err)
		}
	}
	return p, nil
}

// ParsePatterns parses every element of ss.
func ParsePatterns(ss []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(ss))
	for _, s := range ss {
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Matches reports whether n is selected by p.
func (p Pattern) Matches(n *node.Node) bool {
	if p.Seq != node.Unsequenced {
		return n.Seq == p.Seq
	}
	id := n.ID
	if !glob(p.Group, id.Group) || !glob(p.Class, id.Class) || !glob(p.Method, id.Method) {
		return false
	}
	return !p.HasArg || (id.HasArg && id.Arg == p.Arg)
}

// glob matches name against pattern; an empty pattern matches anything.
func glob(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, _ := path.Match(pattern, name)
	return ok
}

func (p Pattern) String() string {
	if p.Seq != node.Unsequenced {
		return "#" + strconv.Itoa(p.Seq)
	}
	id := node.Identity{Group: p.Group, Class: p.Class, Method: p.Method, Arg: p.Arg, HasArg: p.HasArg}
	return id.Qualified()
}
