package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/coldvault/coldvault/vaulterrors"
)

// splitPath splits p on '/', discarding empty segments and ".".
func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Browse walks path within snap's tree, per the path-walk algorithm: each
// component is looked up by exact name match in the current tree, and
// descending into a directory loads its subtree. An empty path returns
// the root tree with no node. Browse is idempotent and side-effect-free.
func (r *Repository) Browse(ctx context.Context, snap Snapshot, path string) (*BrowseResult, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	segments := splitPath(path)

	tree, err := r.loadTree(ctx, snap.Tree)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return &BrowseResult{Tree: tree, Node: nil}, nil
	}

	var node *Node
	for i, name := range segments {
		found := findNode(tree, name)
		if found == nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(segments[:i+1], "/"), vaulterrors.ErrPathNotFound)
		}
		node = found

		last := i == len(segments)-1
		if !last {
			subtreeID, ok, err := node.Subtree()
			if err != nil {
				return nil, err
			}
			if node.Type != NodeDir || !ok {
				return nil, fmt.Errorf("%s: %w", strings.Join(segments[:i+1], "/"), vaulterrors.ErrNotADirectory)
			}
			tree, err = r.loadTree(ctx, subtreeID)
			if err != nil {
				return nil, err
			}
			continue
		}

		if node.Type == NodeDir {
			if subtreeID, ok, err := node.Subtree(); err == nil && ok {
				subtree, err := r.loadTree(ctx, subtreeID)
				if err != nil {
					return nil, err
				}
				return &BrowseResult{Tree: subtree, Node: node}, nil
			}
		}
		return &BrowseResult{Tree: tree, Node: node}, nil
	}
	return &BrowseResult{Tree: tree, Node: node}, nil
}

func findNode(tree *Tree, name string) *Node {
	for i := range tree.Nodes {
		if tree.Nodes[i].Name == name {
			return &tree.Nodes[i]
		}
	}
	return nil
}
