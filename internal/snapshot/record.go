package snapshot

import (
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
)

// record is the on-disk form of a node and its subtree. Fields of the kind
// a file does not carry are left empty and omitted.
type record struct {
	Class    string `msgpack:"c"`
	Method   string `msgpack:"m"`
	Arg      string `msgpack:"a,omitempty"`
	HasArg   bool   `msgpack:"ha,omitempty"`
	Seq      int    `msgpack:"s"`
	Run      bool   `msgpack:"r"`
	AltRun   bool   `msgpack:"ar,omitempty"`
	Expanded bool   `msgpack:"x,omitempty"`

	Config  *configRecord `msgpack:"cfg,omitempty"`
	Results *resultRecord `msgpack:"res,omitempty"`

	Children []record `msgpack:"ch,omitempty"`
}

type configRecord struct {
	Sequencing   node.Sequencing   `msgpack:"seq"`
	Continuation node.Continuation `msgpack:"cont"`
	Declared     []prereqRecord    `msgpack:"decl,omitempty"`
	Tags         []string          `msgpack:"tags,omitempty"`
	Requirements []string          `msgpack:"reqs,omitempty"`
	PrevState    node.State        `msgpack:"prev"`
	Prereqs      node.Edges        `msgpack:"pre"`
	Dependents   node.Edges        `msgpack:"dep"`
}

type prereqRecord struct {
	Class          string            `msgpack:"c"`
	Method         string            `msgpack:"m"`
	Arg            string            `msgpack:"a,omitempty"`
	HasArg         bool              `msgpack:"ha,omitempty"`
	AnyArg         bool              `msgpack:"any,omitempty"`
	Groups         []string          `msgpack:"g,omitempty"`
	IncludeSubtree bool              `msgpack:"sub,omitempty"`
	Multiplicity   node.Multiplicity `msgpack:"mul"`
	Kind           node.Kind         `msgpack:"k"`
}

type resultRecord struct {
	State    node.State     `msgpack:"st"`
	Failures []node.Failure `msgpack:"f,omitempty"`
	Messages []string       `msgpack:"msg,omitempty"`
	Supports []string       `msgpack:"sup,omitempty"`
	Started  time.Time      `msgpack:"t0"`
	Finished time.Time      `msgpack:"t1"`
}

func fromNode(n *node.Node, kind Kind) record {
	rec := record{
		Class:    n.ID.Class,
		Method:   n.ID.Method,
		Arg:      n.ID.Arg,
		HasArg:   n.ID.HasArg,
		Seq:      n.Seq,
		Run:      n.Run,
		AltRun:   n.AltRun,
		Expanded: n.Expanded,
	}
	switch kind {
	case KindConfiguration:
		cfg := &configRecord{
			Sequencing:   n.Sequencing,
			Continuation: n.Continuation,
			Tags:         n.Tags,
			Requirements: n.Requirements,
			PrevState:    n.PrevState,
			Prereqs:      n.Prereqs,
			Dependents:   n.Dependents,
		}
		for _, p := range n.Declared {
			cfg.Declared = append(cfg.Declared, prereqRecord(p))
		}
		rec.Config = cfg
	case KindResults:
		rec.Results = &resultRecord{
			State:    n.State,
			Failures: n.Failures,
			Messages: n.Messages,
			Supports: n.Supports,
			Started:  n.Started,
			Finished: n.Finished,
		}
	}
	for _, c := range n.Children() {
		rec.Children = append(rec.Children, fromNode(c, kind))
	}
	return rec
}

func (rec *record) toNode(group string, kind Kind) *node.Node {
	n := node.New(node.Identity{
		Group:  group,
		Class:  rec.Class,
		Method: rec.Method,
		Arg:    rec.Arg,
		HasArg: rec.HasArg,
	})
	n.Seq = rec.Seq
	n.Run = rec.Run
	n.AltRun = rec.AltRun
	n.Expanded = rec.Expanded

	if cfg := rec.Config; cfg != nil && kind == KindConfiguration {
		n.Sequencing = cfg.Sequencing
		n.Continuation = cfg.Continuation
		n.Tags = cfg.Tags
		n.Requirements = cfg.Requirements
		n.PrevState = cfg.PrevState
		n.Prereqs = cfg.Prereqs
		n.Dependents = cfg.Dependents
		for _, p := range cfg.Declared {
			n.Declared = append(n.Declared, node.Prerequisite(p))
		}
	}
	if res := rec.Results; res != nil && kind == KindResults {
		n.State = res.State
		n.Failures = res.Failures
		n.Messages = res.Messages
		n.Supports = res.Supports
		n.Started = res.Started
		n.Finished = res.Finished
	}

	for i := range rec.Children {
		n.Attach(rec.Children[i].toNode(group, kind))
	}
	return n
}
