// Package node holds the test-node tree: node identity, the per-node state
// machine values, run-selection flags, declared and resolved prerequisites,
// and the index-addressed registry used once global sequence numbers exist.
//
// Tree shape (parent and ordered children) is kept as pointers because it is
// built incrementally while units register during discovery. Prerequisite and
// dependent edges are stored as global sequence indices and resolved through
// a Registry, so a tree can be persisted and reloaded without rebuilding any
// cross-links.
package node
