package simgraph

import "container/heap"

// ShortestPath runs Dijkstra from start to goal over the current cost
// snapshot. Effective edge cost is base plus any delay extra; closed or
// undefined edges are excluded from traversal entirely.
//
// The returned path includes both endpoints. start == goal yields the
// trivial single-node path with cost 0. An unreachable goal yields ok=false
// with an empty path; callers treat that as "no route now" and retry once
// hazards change.
func ShortestPath(start, goal string, adjacency map[string][]string, base map[Edge]int, closed map[Edge]bool, delays map[Edge]int) (path []string, cost int, ok bool) {
	if start == goal {
		return []string{start}, 0, true
	}

	visited := make(map[string]int)
	prev := make(map[string]string)

	pq := &nodeQueue{{node: start}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeItem)
		if _, seen := visited[cur.node]; seen {
			continue
		}
		visited[cur.node] = cur.cost
		prev[cur.node] = cur.parent
		if cur.node == goal {
			break
		}
		for _, next := range adjacency[cur.node] {
			e := Edge{From: cur.node, To: next}
			if closed[e] {
				continue
			}
			baseCost, defined := base[e]
			if !defined {
				continue
			}
			heap.Push(pq, nodeItem{
				cost:   cur.cost + baseCost + delays[e],
				node:   next,
				parent: cur.node,
			})
		}
	}

	total, reached := visited[goal]
	if !reached {
		return nil, 0, false
	}
	for node := goal; node != ""; node = prev[node] {
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total, true
}

type nodeItem struct {
	cost   int
	node   string
	parent string
}

// Ties break on node name so a run's routes do not depend on heap internals.
type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].node < q[j].node
}
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
