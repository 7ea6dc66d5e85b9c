package node

import (
	"fmt"
	"strings"
)

// Identity names a node: the declaring unit's class, method and optional
// argument, plus the group whose process runs it.
type Identity struct {
	Group  string
	Class  string
	Method string
	Arg    string
	HasArg bool
}

// NewIdentity returns an identity without an argument.
func NewIdentity(class, method string) Identity {
	return Identity{Class: class, Method: method}
}

// WithArg returns a copy of id carrying arg.
func (id Identity) WithArg(arg string) Identity {
	id.Arg = arg
	id.HasArg = true
	return id
}

// Equal reports whether both identities name the same unit in the same group.
func (id Identity) Equal(other Identity) bool {
	return id.Group == other.Group &&
		id.Class == other.Class &&
		id.Method == other.Method &&
		id.HasArg == other.HasArg &&
		(!id.HasArg || id.Arg == other.Arg)
}

// String renders Class.Method or Class.Method(arg).
func (id Identity) String() string {
	var sb strings.Builder
	sb.WriteString(id.Class)
	if id.Method != "" {
		sb.WriteByte('.')
		sb.WriteString(id.Method)
	}
	if id.HasArg {
		fmt.Fprintf(&sb, "(%s)", id.Arg)
	}
	return sb.String()
}

// Qualified prefixes String with the group name.
func (id Identity) Qualified() string {
	if id.Group == "" {
		return id.String()
	}
	return id.Group + ":" + id.String()
}
