// Package tree provides forest helpers over flat, id-keyed node maps.
package tree

import "github.com/paperdrive/paperdrive/pkg/models"

// PathToRoot walks parent ids from the node with the given id up to the
// root sentinel and returns the chain of node ids, starting at id. The
// walk is bounded by the map size, so a corrupted parent relation (a
// cycle, or a parent missing from the map) returns ok=false instead of
// looping forever.
func PathToRoot(nodes map[string]models.Node, id string) (chain []string, ok bool) {
	limit := len(nodes) + 1
	cur := id
	for steps := 0; steps < limit; steps++ {
		n, found := nodes[cur]
		if !found {
			return chain, false
		}
		chain = append(chain, cur)
		if n.ParentID == models.RootID {
			return chain, true
		}
		cur = n.ParentID
	}
	return chain, false
}

// IsDescendant reports whether candidate lies strictly inside the
// subtree rooted at ancestorID. A node is not its own descendant.
func IsDescendant(nodes map[string]models.Node, ancestorID, candidate string) bool {
	if ancestorID == candidate {
		return false
	}
	limit := len(nodes) + 1
	cur := candidate
	for steps := 0; steps < limit; steps++ {
		n, found := nodes[cur]
		if !found {
			return false
		}
		if n.ParentID == ancestorID {
			return true
		}
		if n.ParentID == models.RootID {
			return false
		}
		cur = n.ParentID
	}
	return false
}

// Depth returns the number of parent hops from the node to the root, or
// -1 if the chain does not resolve.
func Depth(nodes map[string]models.Node, id string) int {
	chain, ok := PathToRoot(nodes, id)
	if !ok {
		return -1
	}
	return len(chain) - 1
}

// SubtreeIDs collects the id of rootID and every node reachable from it
// through the parent relation.
func SubtreeIDs(nodes map[string]models.Node, rootID string) []string {
	ids := []string{rootID}
	children := make(map[string][]string, len(nodes))
	for id, n := range nodes {
		children[n.ParentID] = append(children[n.ParentID], id)
	}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, children[ids[i]]...)
	}
	return ids
}

// CountSubtree counts rootID plus all of its descendants.
func CountSubtree(nodes map[string]models.Node, rootID string) int {
	return len(SubtreeIDs(nodes, rootID))
}
