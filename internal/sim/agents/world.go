package agents

import (
	"log"
	"math/rand"
	"sort"

	"reliefnet/internal/config"
	"reliefnet/internal/metrics"
	"reliefnet/internal/protocol"
	"reliefnet/internal/resource"
	"reliefnet/internal/simgraph"
)

func resourceSpike(amount int) resource.Bundle {
	return resource.Bundle{Food: amount, Water: amount, Medicine: amount}
}

// VehicleRecord is the world's best-effort view of one vehicle, fed by
// status reports and used only to pick attack targets.
type VehicleRecord struct {
	Status   string
	Location string
}

// WorldStats are run totals for the end-of-run report and the run index.
type WorldStats struct {
	Ticks        int
	RoadClosures int
	RoadDelays   int
	Attacks      int
	DemandSpikes int
}

type WorldConfig struct {
	JID      string
	Map      *simgraph.Map
	Events   config.EventsSpec
	MaxTicks int
	Seed     int64
	Send     Sender
	Logger   *log.Logger
	Sink     EventSink
}

// World owns the map, the clock and the hazard state. Each tick it evolves
// hazards from a single seeded random source, consumed in a fixed order so a
// fixed seed yields a fixed event sequence.
type World struct {
	jid      string
	m        *simgraph.Map
	events   config.EventsSpec
	maxTicks int
	rng      *rand.Rand
	send     Sender
	log      *log.Logger
	sink     EventSink

	tick        int
	closedEdges map[simgraph.Edge]int
	delayEdges  map[simgraph.Edge]simgraph.Delay

	registered    map[string]map[string]bool
	vehicleStatus map[string]VehicleRecord

	stats WorldStats
	done  chan struct{}
}

func NewWorld(cfg WorldConfig) *World {
	return &World{
		jid:      cfg.JID,
		m:        cfg.Map,
		events:   cfg.Events,
		maxTicks: cfg.MaxTicks,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		send:     cfg.Send,
		log:      ensureLogger(cfg.Logger, "[world] "),
		sink:     cfg.Sink,
		closedEdges: map[simgraph.Edge]int{},
		delayEdges:  map[simgraph.Edge]simgraph.Delay{},
		registered: map[string]map[string]bool{
			protocol.AgentCenter:  {},
			protocol.AgentVehicle: {},
			protocol.AgentGroup:   {},
		},
		vehicleStatus: map[string]VehicleRecord{},
		done:          make(chan struct{}),
	}
}

func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) OnStart() {}

// OnTick advances the world one step. The order of the sub-steps is fixed:
// decay, closure, delay, attack, demand spike, broadcast, shutdown check.
// Later steps depend on hazard state mutated by earlier ones, and the rng
// draw order is part of the determinism contract.
func (w *World) OnTick() {
	w.tick++
	w.stats.Ticks = w.tick
	metrics.TicksTotal.Inc()

	w.decayHazards()
	w.maybeCloseRoad()
	w.maybeAddDelay()
	w.maybeAttack()
	w.maybeDemandSpike()
	w.broadcastUpdate()

	publish(w.sink, Event{
		"type":         "tick",
		"tick":         w.tick,
		"closed_edges": len(w.closedEdges),
		"delay_edges":  len(w.delayEdges),
	})

	if w.tick >= w.maxTicks {
		w.broadcastShutdown()
		close(w.done)
	}
}

func (w *World) HandleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRegister:
		var msg protocol.RegisterMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		w.handleRegister(msg, env.From)
	case protocol.TypeVehicleStatus:
		var msg protocol.VehicleStatusMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		w.vehicleStatus[env.From] = VehicleRecord{Status: msg.Status, Location: msg.Location}
	default:
		// Stray message; not an error.
	}
}

func (w *World) handleRegister(msg protocol.RegisterMsg, sender string) {
	set, known := w.registered[msg.AgentType]
	if !known {
		return
	}
	set[sender] = true
	if msg.AgentType == protocol.AgentVehicle {
		// A fresh vehicle should not wait a full tick to learn the map state.
		w.sendTo(sender, protocol.TypeWorldUpdate, w.snapshot())
	}
}

func (w *World) decayHazards() {
	for e, ttl := range w.closedEdges {
		if ttl-1 <= 0 {
			delete(w.closedEdges, e)
		} else {
			w.closedEdges[e] = ttl - 1
		}
	}
	for e, d := range w.delayEdges {
		if d.TTL-1 <= 0 {
			delete(w.delayEdges, e)
		} else {
			w.delayEdges[e] = simgraph.Delay{Extra: d.Extra, TTL: d.TTL - 1}
		}
	}
}

func (w *World) maybeCloseRoad() {
	if len(w.m.Roads) == 0 {
		return
	}
	if w.rng.Float64() > w.events.RoadCloseProb {
		return
	}
	road := w.m.Roads[w.rng.Intn(len(w.m.Roads))]
	ttl := w.randint(w.events.RoadCloseDuration)

	w.closedEdges[simgraph.Edge{From: road.From, To: road.To}] = ttl
	if road.Bidirectional {
		w.closedEdges[simgraph.Edge{From: road.To, To: road.From}] = ttl
	}
	w.stats.RoadClosures++
	metrics.HazardsTotal.WithLabelValues("road_closed").Inc()
	w.log.Printf("road %s -> %s closed for %d ticks", road.From, road.To, ttl)
	publish(w.sink, Event{"type": "road_closed", "tick": w.tick, "from": road.From, "to": road.To, "ttl": ttl})
}

func (w *World) maybeAddDelay() {
	if len(w.m.Roads) == 0 {
		return
	}
	if w.rng.Float64() > w.events.DelayProb {
		return
	}
	road := w.m.Roads[w.rng.Intn(len(w.m.Roads))]
	ttl := w.randint(w.events.DelayDuration)
	extra := w.randint(w.events.DelayAmount)

	d := simgraph.Delay{Extra: extra, TTL: ttl}
	w.delayEdges[simgraph.Edge{From: road.From, To: road.To}] = d
	if road.Bidirectional {
		w.delayEdges[simgraph.Edge{From: road.To, To: road.From}] = d
	}
	w.stats.RoadDelays++
	metrics.HazardsTotal.WithLabelValues("road_delay").Inc()
	w.log.Printf("traffic on road %s -> %s: +%d travel time for %d ticks", road.From, road.To, extra, ttl)
	publish(w.sink, Event{"type": "road_delay", "tick": w.tick, "from": road.From, "to": road.To, "extra": extra, "ttl": ttl})
}

func (w *World) maybeAttack() {
	if w.rng.Float64() > w.events.AttackProb {
		return
	}
	var candidates []string
	for jid, rec := range w.vehicleStatus {
		if rec.Status == protocol.StatusEnRoute || rec.Status == protocol.StatusReturning {
			candidates = append(candidates, jid)
		}
	}
	if len(candidates) == 0 {
		return
	}
	// The status cache is a map; sort before drawing so a fixed seed keeps
	// picking the same targets within a run.
	sort.Strings(candidates)
	target := candidates[w.rng.Intn(len(candidates))]
	delay := w.randint(w.events.AttackDelay)
	loss := w.uniform(w.events.AttackLoss)

	w.sendTo(target, protocol.TypeAttack, protocol.AttackMsg{Delay: delay, Loss: loss})
	w.stats.Attacks++
	metrics.HazardsTotal.WithLabelValues("attack").Inc()
	w.log.Printf("vehicle %s attacked: delay +%d, loss %.0f%%", target, delay, loss*100)
	publish(w.sink, Event{"type": "attack", "tick": w.tick, "target": target, "delay": delay, "loss": loss})
}

func (w *World) maybeDemandSpike() {
	if w.rng.Float64() > w.events.DemandSpikeProb {
		return
	}
	groups := make([]string, 0, len(w.registered[protocol.AgentGroup]))
	for jid := range w.registered[protocol.AgentGroup] {
		groups = append(groups, jid)
	}
	if len(groups) == 0 {
		return
	}
	sort.Strings(groups)
	target := groups[w.rng.Intn(len(groups))]
	amount := w.randint(w.events.DemandSpikeAmount)

	amounts := resourceSpike(amount)
	w.sendTo(target, protocol.TypeDemandUpdate, protocol.DemandUpdateMsg{Amounts: amounts})
	w.stats.DemandSpikes++
	metrics.HazardsTotal.WithLabelValues("demand_spike").Inc()
	w.log.Printf("demand spike at group %s: +%d of every kind", target, amount)
	publish(w.sink, Event{"type": "demand_spike", "tick": w.tick, "target": target, "amount": amount})
}

func (w *World) broadcastUpdate() {
	snap := w.snapshot()
	vehicles := make([]string, 0, len(w.registered[protocol.AgentVehicle]))
	for jid := range w.registered[protocol.AgentVehicle] {
		vehicles = append(vehicles, jid)
	}
	sort.Strings(vehicles)
	for _, jid := range vehicles {
		w.sendTo(jid, protocol.TypeWorldUpdate, snap)
	}
}

func (w *World) broadcastShutdown() {
	var all []string
	for _, set := range w.registered {
		for jid := range set {
			all = append(all, jid)
		}
	}
	sort.Strings(all)
	for _, jid := range all {
		w.sendTo(jid, protocol.TypeShutdown, protocol.ShutdownMsg{Tick: w.tick})
	}
	w.log.Printf("reached max ticks (%d); shutting down %d agents", w.tick, len(all))
	publish(w.sink, Event{"type": "shutdown", "tick": w.tick})
}

// snapshot renders the full current hazard state, sorted for a stable wire
// representation.
func (w *World) snapshot() protocol.WorldUpdateMsg {
	msg := protocol.WorldUpdateMsg{
		Tick:        w.tick,
		ClosedEdges: []protocol.ClosedRef{},
		Delays:      []protocol.DelayRef{},
	}
	for e, ttl := range w.closedEdges {
		msg.ClosedEdges = append(msg.ClosedEdges, protocol.ClosedRef{From: e.From, To: e.To, TTL: ttl})
	}
	for e, d := range w.delayEdges {
		msg.Delays = append(msg.Delays, protocol.DelayRef{From: e.From, To: e.To, Extra: d.Extra, TTL: d.TTL})
	}
	sort.Slice(msg.ClosedEdges, func(i, j int) bool {
		a, b := msg.ClosedEdges[i], msg.ClosedEdges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	sort.Slice(msg.Delays, func(i, j int) bool {
		a, b := msg.Delays[i], msg.Delays[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return msg
}

func (w *World) sendTo(to, msgType string, payload any) {
	if err := w.send.Send(w.jid, to, msgType, payload); err != nil {
		w.log.Printf("send %s to %s: %v", msgType, to, err)
	}
}

// randint draws from an inclusive [min, max] range.
func (w *World) randint(r [2]int) int {
	lo, hi := r[0], r[1]
	if hi <= lo {
		return lo
	}
	return lo + w.rng.Intn(hi-lo+1)
}

func (w *World) uniform(r [2]float64) float64 {
	lo, hi := r[0], r[1]
	if hi <= lo {
		return lo
	}
	return lo + w.rng.Float64()*(hi-lo)
}

// Tick reports the current tick. Safe only once the world loop has stopped
// or from within a handler; the run loop owns all other access.
func (w *World) Tick() int { return w.tick }

func (w *World) Stats() WorldStats { return w.stats }

// ClosedEdges exposes a copy of the current closures (reporting and tests).
func (w *World) ClosedEdges() map[simgraph.Edge]int {
	out := make(map[simgraph.Edge]int, len(w.closedEdges))
	for e, ttl := range w.closedEdges {
		out[e] = ttl
	}
	return out
}

// DelayEdges exposes a copy of the current delays.
func (w *World) DelayEdges() map[simgraph.Edge]simgraph.Delay {
	out := make(map[simgraph.Edge]simgraph.Delay, len(w.delayEdges))
	for e, d := range w.delayEdges {
		out[e] = d
	}
	return out
}
