package dag

import "sort"

// TopologicalSort orders the graph so that every node precedes its
// dependents: depth-first traversal over outgoing edges, post-order push,
// result reversed. Nodes participating in a cycle are returned in the
// second result instead of being silently dropped, and the sort never
// hangs on cyclic input. Both results are deterministic: ties break on
// lexical id order.
func (g *Graph) TopologicalSort() (order []string, cycles []string) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	cycleSet := make(map[string]struct{})
	var postorder []string

	var visit func(n *node)
	visit = func(n *node) {
		switch state[n.id] {
		case done:
			return
		case inStack:
			// Back edge: n is part of a cycle.
			cycleSet[n.id] = struct{}{}
			return
		}
		state[n.id] = inStack

		depIDs := make([]string, 0, len(n.dependents))
		for id := range n.dependents {
			depIDs = append(depIDs, id)
		}
		sort.Strings(depIDs)
		for _, id := range depIDs {
			visit(n.dependents[id])
		}

		state[n.id] = done
		postorder = append(postorder, n.id)
	}

	for _, id := range ids {
		visit(g.nodes[id])
	}

	order = make([]string, 0, len(postorder))
	for i := len(postorder) - 1; i >= 0; i-- {
		order = append(order, postorder[i])
	}

	// Expand the cycle set: every node on a path that loops back is
	// considered cyclic, found by walking deps from the back-edge targets.
	if len(cycleSet) > 0 {
		queue := make([]string, 0, len(cycleSet))
		for id := range cycleSet {
			queue = append(queue, id)
		}
		seen := make(map[string]struct{}, len(cycleSet))
		for id := range cycleSet {
			seen[id] = struct{}{}
		}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for depID := range g.nodes[id].dependents {
				if g.reaches(depID, id) {
					if _, ok := seen[depID]; !ok {
						seen[depID] = struct{}{}
						cycleSet[depID] = struct{}{}
						queue = append(queue, depID)
					}
				}
			}
		}
	}

	cycles = make([]string, 0, len(cycleSet))
	for id := range cycleSet {
		cycles = append(cycles, id)
	}
	sort.Strings(cycles)
	return order, cycles
}

// reaches reports whether a path of dependent edges leads from fromID to
// toID. Caller holds the read lock.
func (g *Graph) reaches(fromID, toID string) bool {
	seen := make(map[string]struct{})
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == toID {
			return true
		}
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
		for next := range g.nodes[id].dependents {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(fromID)
}

// Levels groups nodes into ordered levels such that every node in level k
// depends only on nodes in earlier levels. The grouping describes logical
// concurrency; execution itself is cooperative. Nodes caught in a cycle
// never reach in-degree zero and are omitted.
func (g *Graph) Levels() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
	}

	var current []string
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)

		var next []string
		for _, id := range current {
			for depID := range g.nodes[id].dependents {
				indegree[depID]--
				if indegree[depID] == 0 {
					next = append(next, depID)
				}
			}
		}
		current = next
	}
	return levels
}
