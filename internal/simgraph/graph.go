// Package simgraph holds the transport network: locations, directed weighted
// edges, and the hazard overlays (closures and delays) that change edge costs
// over time.
package simgraph

// Edge is a directed connection between two locations.
type Edge struct {
	From string
	To   string
}

// Road is a declared road from the map config. A bidirectional road
// materializes as two directed edges.
type Road struct {
	From          string
	To            string
	BaseTime      int
	Bidirectional bool
}

// Point is a location's coordinates. The simulation core never measures
// straight-line distance; coordinates exist for the observer feed.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Delay is a temporary extra cost on an edge with a remaining lifetime.
type Delay struct {
	Extra int
	TTL   int
}

// Map is the static transport network. It is built once at startup and
// shared read-only; hazards live outside it.
type Map struct {
	Locations map[string]Point
	Roads     []Road

	BaseEdges map[Edge]int
	Adjacency map[string][]string
}

// BuildMap derives directed edges and adjacency from the declared roads.
// Neighbor order follows road declaration order, so route planning is
// reproducible for a given config.
func BuildMap(locations map[string]Point, roads []Road) *Map {
	m := &Map{
		Locations: locations,
		Roads:     roads,
		BaseEdges: make(map[Edge]int),
		Adjacency: make(map[string][]string),
	}
	for name := range locations {
		m.Adjacency[name] = nil
	}
	for _, r := range roads {
		m.addEdge(r.From, r.To, r.BaseTime)
		if r.Bidirectional {
			m.addEdge(r.To, r.From, r.BaseTime)
		}
	}
	return m
}

func (m *Map) addEdge(from, to string, baseTime int) {
	e := Edge{From: from, To: to}
	if _, ok := m.BaseEdges[e]; !ok {
		m.Adjacency[from] = append(m.Adjacency[from], to)
	}
	m.BaseEdges[e] = baseTime
}
