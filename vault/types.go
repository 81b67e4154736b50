// Package vault is the repository facade: lifecycle, snapshot
// enumeration, tree navigation, and file materialization, wired on top of
// packages keystore, blobindex, and packstore.
package vault

import (
	"os"
	"time"

	"github.com/coldvault/coldvault/rid"
)

// Config is the repository's decrypted configuration record.
type Config struct {
	Version           int    `json:"version"`
	ID                string `json:"id"`
	ChunkerPolynomial string `json:"chunker_polynomial"`
}

// Snapshot is a point-in-time record referencing one root tree.
type Snapshot struct {
	ID        rid.ID                 `json:"-"`
	Time      time.Time              `json:"time"`
	Parent    *rid.ID                `json:"-"`
	ParentHex string                 `json:"parent,omitempty"`
	Tree      rid.ID                 `json:"-"`
	TreeHex   string                 `json:"tree"`
	Paths     []string               `json:"paths"`
	Hostname  string                 `json:"hostname,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Excludes  []string               `json:"excludes,omitempty"`
	Summary   map[string]interface{} `json:"summary,omitempty"`
}

// Tree is a directory listing: an ordered sequence of nodes in the order
// the repository recorded them.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// NodeType enumerates the kinds of tree entry.
type NodeType string

const (
	NodeFile      NodeType = "file"
	NodeDir       NodeType = "dir"
	NodeSymlink   NodeType = "symlink"
	NodeDev       NodeType = "dev"
	NodeChardev   NodeType = "chardev"
	NodeFifo      NodeType = "fifo"
	NodeSocket    NodeType = "socket"
	NodeIrregular NodeType = "irregular"
)

// Node is one entry in a Tree: file, directory, symlink, or other POSIX
// special type, carrying shared metadata plus type-specific fields.
type Node struct {
	Name string   `json:"name"`
	Type NodeType `json:"type"`

	Mode  *uint32    `json:"mode,omitempty"`
	Mtime *time.Time `json:"mtime,omitempty"`
	Atime *time.Time `json:"atime,omitempty"`
	Ctime *time.Time `json:"ctime,omitempty"`
	UID   *uint32    `json:"uid,omitempty"`
	GID   *uint32    `json:"gid,omitempty"`
	User  string     `json:"user,omitempty"`
	Group string     `json:"group,omitempty"`
	Size  *int64     `json:"size,omitempty"`

	ContentHex []string `json:"content,omitempty"`
	SubtreeHex string   `json:"subtree,omitempty"`
	LinkTarget string   `json:"linktarget,omitempty"`
}

// IsDir reports whether the node is a directory with a subtree to
// descend into.
func (n *Node) IsDir() bool {
	return n.Type == NodeDir && n.SubtreeHex != ""
}

// FileMode converts the node's stored POSIX mode to an os.FileMode: the
// permission bits come from Mode (zero when unset) and the type bits are
// always derived from n.Type.
func (n *Node) FileMode() os.FileMode {
	var mode os.FileMode
	if n.Mode != nil {
		mode = os.FileMode(*n.Mode) & os.ModePerm
	}
	switch n.Type {
	case NodeDir:
		mode |= os.ModeDir
	case NodeSymlink:
		mode |= os.ModeSymlink
	case NodeDev:
		mode |= os.ModeDevice
	case NodeChardev:
		mode |= os.ModeDevice | os.ModeCharDevice
	case NodeFifo:
		mode |= os.ModeNamedPipe
	case NodeSocket:
		mode |= os.ModeSocket
	case NodeIrregular:
		mode |= os.ModeIrregular
	}
	return mode
}

// Content returns the node's data-blob IDs in order, parsed from their
// hex encoding.
func (n *Node) Content() ([]rid.ID, error) {
	ids := make([]rid.ID, len(n.ContentHex))
	for i, h := range n.ContentHex {
		id, err := rid.Parse(h)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Subtree returns the node's subtree blob ID, if any.
func (n *Node) Subtree() (rid.ID, bool, error) {
	if n.SubtreeHex == "" {
		return rid.ID{}, false, nil
	}
	id, err := rid.Parse(n.SubtreeHex)
	if err != nil {
		return rid.ID{}, false, err
	}
	return id, true, nil
}

// BrowseResult is the outcome of walking a path: the tree the final
// component lives in (or, when the final component is a directory with a
// subtree, that subtree), and the node itself (nil only for the root path).
type BrowseResult struct {
	Tree *Tree
	Node *Node
}
