package namespace

import "time"

// NodeKind is the filesystem shape of a materialized coordinate.
type NodeKind int

const (
	// Directory nodes list children.
	Directory NodeKind = iota
	// RegularFile nodes carry readable content.
	RegularFile
	// Executable nodes are regular files with the execute bit: command
	// files, run by the shell.
	Executable
)

// Child is one directory entry: the canonical name as the remote system
// reported it (original case, device names still containing "/") and
// the child's filesystem shape.
type Child struct {
	Name string
	Kind NodeKind
}

// Node is the transient, synthesized representation of one coordinate.
// Nodes are recomputed per request from cached values and never
// persisted; there is no cross-request node identity.
type Node struct {
	Kind NodeKind

	// Size is the content byte size for files. It is filled by ReadFile
	// callers, not by Materialize: metadata-only stats do not pay for a
	// remote value fetch.
	Size int64

	// ModTime is best-effort; the zero value means the remote system
	// did not expose one.
	ModTime time.Time

	// Children is set for directories, in enumeration order.
	Children []Child

	// Exec marks a directory whose device is exported (the original
	// interface surfaces liveness as the execute bit on the device
	// directory).
	Exec bool
}
