package agents

import (
	"log"

	"reliefnet/internal/protocol"
	"reliefnet/internal/resource"
	"reliefnet/internal/simgraph"
)

// VehicleStats are run totals for the end-of-run report.
type VehicleStats struct {
	Deliveries int
	Delivered  resource.Bundle
	Attacks    int
}

type VehicleConfig struct {
	ID            string
	JID           string
	Home          string
	HomeCenterJID string
	WorldJID      string
	Capacity      int
	Map           *simgraph.Map
	Send          Sender
	Logger        *log.Logger
	Sink          EventSink
}

// Vehicle carries shipments across the graph. It plans routes from its own
// cached hazard snapshot, which is replaced wholesale on every world update
// and may be stale between broadcasts.
type Vehicle struct {
	id            string
	jid           string
	home          string
	homeCenterJID string
	worldJID      string
	capacity      int
	m             *simgraph.Map

	location string
	status   string
	cargo    resource.Bundle

	destination string
	groupJID    string
	groupID     string
	requestID   string

	route         []string
	edgeRemaining int
	pendingDelay  int

	knownClosed map[simgraph.Edge]bool
	knownDelays map[simgraph.Edge]int

	send Sender
	log  *log.Logger
	sink EventSink

	stats VehicleStats
	done  chan struct{}
}

func NewVehicle(cfg VehicleConfig) *Vehicle {
	return &Vehicle{
		id:            cfg.ID,
		jid:           cfg.JID,
		home:          cfg.Home,
		homeCenterJID: cfg.HomeCenterJID,
		worldJID:      cfg.WorldJID,
		capacity:      cfg.Capacity,
		m:             cfg.Map,
		location:      cfg.Home,
		status:        protocol.StatusIdle,
		knownClosed:   map[simgraph.Edge]bool{},
		knownDelays:   map[simgraph.Edge]int{},
		send:          cfg.Send,
		log:           ensureLogger(cfg.Logger, "[vehicle "+cfg.ID+"] "),
		sink:          cfg.Sink,
		done:          make(chan struct{}),
	}
}

func (v *Vehicle) Done() <-chan struct{} { return v.done }

func (v *Vehicle) OnStart() {
	v.sendTo(v.worldJID, protocol.TypeRegister, protocol.RegisterMsg{
		AgentType: protocol.AgentVehicle,
		JID:       v.jid,
		ID:        v.id,
		Location:  v.location,
	})
	// Initial idle announcement goes to the world only; the home center
	// already starts with the full fleet marked available.
	v.sendStatus(false)
}

func (v *Vehicle) HandleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeDispatch:
		var msg protocol.DispatchMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		v.handleDispatch(msg)
	case protocol.TypeWorldUpdate:
		var msg protocol.WorldUpdateMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		// The broadcast is always a full snapshot: replace, never merge.
		closed := make(map[simgraph.Edge]bool, len(msg.ClosedEdges))
		for _, e := range msg.ClosedEdges {
			closed[simgraph.Edge{From: e.From, To: e.To}] = true
		}
		delays := make(map[simgraph.Edge]int, len(msg.Delays))
		for _, d := range msg.Delays {
			delays[simgraph.Edge{From: d.From, To: d.To}] = d.Extra
		}
		v.knownClosed = closed
		v.knownDelays = delays
	case protocol.TypeAttack:
		var msg protocol.AttackMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		v.handleAttack(msg)
	case protocol.TypeShutdown:
		close(v.done)
	default:
	}
}

func (v *Vehicle) handleDispatch(msg protocol.DispatchMsg) {
	v.destination = msg.Destination
	v.groupJID = msg.GroupJID
	v.groupID = msg.GroupID
	v.requestID = msg.RequestID
	v.cargo = msg.Resources.Normalize()
	v.status = protocol.StatusEnRoute
	v.route = nil
	v.edgeRemaining = 0
	v.log.Printf("started from %s to %s for group %s (request %s); cargo: %s",
		v.location, v.destination, v.groupID, v.requestID, v.cargo.Phrase(false))
	v.planRoute()
	v.sendStatus(true)
}

func (v *Vehicle) handleAttack(msg protocol.AttackMsg) {
	moving := v.status == protocol.StatusEnRoute || v.status == protocol.StatusReturning
	if msg.Delay > 0 {
		if moving && v.edgeRemaining > 0 {
			v.edgeRemaining += msg.Delay
		} else {
			// Not mid-edge: the delay applies once to the next edge entered.
			v.pendingDelay += msg.Delay
		}
	}
	if msg.Loss > 0 && moving {
		v.cargo = v.cargo.ApplyLoss(msg.Loss)
	}
	v.stats.Attacks++
	v.log.Printf("attacked (request %s): delay +%d, loss %.0f%%; cargo now: %s",
		v.requestID, msg.Delay, msg.Loss*100, v.cargo.Phrase(false))
}

func (v *Vehicle) OnTick() {
	if v.status != protocol.StatusEnRoute && v.status != protocol.StatusReturning {
		return
	}

	if v.location == v.destination {
		v.finishLeg()
		return
	}

	if v.edgeRemaining > 0 {
		v.edgeRemaining--
		if v.edgeRemaining > 0 {
			return
		}
		if len(v.route) > 0 {
			v.location = v.route[0]
			v.route = v.route[1:]
		}
		v.sendStatus(true)
		if v.location == v.destination {
			v.finishLeg()
			return
		}
	}

	if len(v.route) == 0 {
		v.planRoute()
		if len(v.route) == 0 {
			// No route under current hazards; stay put and retry next tick.
			return
		}
	}

	next := simgraph.Edge{From: v.location, To: v.route[0]}
	base, defined := v.m.BaseEdges[next]
	if v.knownClosed[next] || !defined {
		// Abandon the route; the next tick replans around the closure.
		v.route = nil
		return
	}
	travel := base + v.knownDelays[next] + v.pendingDelay
	v.pendingDelay = 0
	v.edgeRemaining = max(1, travel)
}

func (v *Vehicle) finishLeg() {
	if v.status == protocol.StatusEnRoute {
		v.deliver()
	} else {
		v.arriveHome()
	}
}

func (v *Vehicle) deliver() {
	if v.groupJID == "" {
		return
	}
	v.sendTo(v.groupJID, protocol.TypeDelivery, protocol.DeliveryMsg{
		VehicleID: v.id,
		Resources: v.cargo,
		From:      v.homeCenterJID,
		RequestID: v.requestID,
	})
	v.stats.Deliveries++
	v.stats.Delivered = v.stats.Delivered.Add(v.cargo)
	v.log.Printf("delivered to group %s at %s (request %s): %s",
		v.groupID, v.location, v.requestID, v.cargo.Phrase(false))
	publish(v.sink, Event{
		"type":       "vehicle_delivered",
		"vehicle_id": v.id,
		"group_id":   v.groupID,
		"request_id": v.requestID,
		"resources":  v.cargo,
	})

	v.cargo = resource.Bundle{}
	v.destination = v.home
	v.status = protocol.StatusReturning
	v.route = nil
	v.edgeRemaining = 0
	v.planRoute()
	v.sendStatus(true)
}

func (v *Vehicle) arriveHome() {
	v.status = protocol.StatusIdle
	v.destination = ""
	v.groupJID = ""
	v.groupID = ""
	v.requestID = ""
	v.route = nil
	v.edgeRemaining = 0
	v.sendStatus(true)
	v.log.Printf("returned to base (%s)", v.home)
}

func (v *Vehicle) planRoute() {
	if v.destination == "" || v.location == v.destination {
		v.route = nil
		return
	}
	path, _, ok := simgraph.ShortestPath(v.location, v.destination, v.m.Adjacency, v.m.BaseEdges, v.knownClosed, v.knownDelays)
	if !ok || len(path) < 2 {
		v.route = nil
		return
	}
	v.route = append([]string(nil), path[1:]...)
}

// sendStatus reports to the world always, and to the home center only for
// events relevant to fleet availability.
func (v *Vehicle) sendStatus(toCenter bool) {
	msg := protocol.VehicleStatusMsg{
		JID:       v.jid,
		VehicleID: v.id,
		Status:    v.status,
		Location:  v.location,
	}
	v.sendTo(v.worldJID, protocol.TypeVehicleStatus, msg)
	if toCenter {
		v.sendTo(v.homeCenterJID, protocol.TypeVehicleStatus, msg)
	}
}

func (v *Vehicle) sendTo(to, msgType string, payload any) {
	if err := v.send.Send(v.jid, to, msgType, payload); err != nil {
		v.log.Printf("send %s to %s: %v", msgType, to, err)
	}
}

// Status reports the current state. Safe once the agent loop stopped.
func (v *Vehicle) Status() string { return v.status }

func (v *Vehicle) Location() string { return v.location }

func (v *Vehicle) Cargo() resource.Bundle { return v.cargo }

func (v *Vehicle) Stats() VehicleStats { return v.stats }

func (v *Vehicle) ID() string { return v.id }
