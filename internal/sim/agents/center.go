package agents

import (
	"log"
	"sort"

	"reliefnet/internal/metrics"
	"reliefnet/internal/protocol"
	"reliefnet/internal/resource"
)

// CenterStats are run totals for the end-of-run report.
type CenterStats struct {
	Requests   int
	Dispatches int
	Shipped    resource.Bundle
}

type CenterConfig struct {
	ID        string
	JID       string
	Location  string
	WorldJID  string
	Inventory resource.Bundle
	Fleet     map[string]int // vehicle jid -> capacity
	Send      Sender
	Logger    *log.Logger
	Sink      EventSink
}

// Center owns a local inventory and matches a FIFO queue of resource
// requests against its available vehicles.
type Center struct {
	id       string
	jid      string
	location string
	worldJID string

	inventory resource.Bundle
	fleet     map[string]int
	available map[string]bool
	pending   []protocol.ResourceRequestMsg

	send Sender
	log  *log.Logger
	sink EventSink

	stats CenterStats
	done  chan struct{}
}

func NewCenter(cfg CenterConfig) *Center {
	available := make(map[string]bool, len(cfg.Fleet))
	for jid := range cfg.Fleet {
		available[jid] = true
	}
	return &Center{
		id:        cfg.ID,
		jid:       cfg.JID,
		location:  cfg.Location,
		worldJID:  cfg.WorldJID,
		inventory: cfg.Inventory.Normalize(),
		fleet:     cfg.Fleet,
		available: available,
		send:      cfg.Send,
		log:       ensureLogger(cfg.Logger, "[center "+cfg.ID+"] "),
		sink:      cfg.Sink,
		done:      make(chan struct{}),
	}
}

func (c *Center) Done() <-chan struct{} { return c.done }

func (c *Center) OnStart() {
	c.sendTo(c.worldJID, protocol.TypeRegister, protocol.RegisterMsg{
		AgentType: protocol.AgentCenter,
		JID:       c.jid,
		ID:        c.id,
		Location:  c.location,
	})
}

// The center has no periodic behaviour; dispatch runs after every relevant
// message instead.
func (c *Center) OnTick() {}

func (c *Center) HandleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeResourceRequest:
		var msg protocol.ResourceRequestMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		msg.Needs = msg.Needs.Normalize()
		c.pending = append(c.pending, msg)
		c.stats.Requests++
		metrics.RequestsTotal.WithLabelValues(c.id).Inc()
		c.tryDispatch()
	case protocol.TypeVehicleStatus:
		var msg protocol.VehicleStatusMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		if msg.Status == protocol.StatusIdle {
			if _, mine := c.fleet[msg.JID]; mine {
				c.available[msg.JID] = true
				c.tryDispatch()
			}
		}
	case protocol.TypeShutdown:
		close(c.done)
	default:
	}
}

// tryDispatch matches pending requests against available vehicles until no
// pair can be served. Requests the inventory or capacity cannot serve at
// all are set aside and restored to the queue tail, preserving order, so
// they compete again on the next attempt.
func (c *Center) tryDispatch() {
	if len(c.available) == 0 || len(c.pending) == 0 {
		return
	}

	var deferred []protocol.ResourceRequestMsg
	for len(c.pending) > 0 && len(c.available) > 0 {
		req := c.pending[0]
		c.pending = c.pending[1:]

		vehicleJID := c.pickVehicle()
		capacity := c.fleet[vehicleJID]
		shipment := resource.Allocate(c.inventory, req.Needs, capacity)
		used := shipment.Total()
		if used <= 0 {
			deferred = append(deferred, req)
			continue
		}

		c.inventory = c.inventory.Sub(shipment)
		delete(c.available, vehicleJID)

		dispatch := protocol.DispatchMsg{
			CenterID:    c.id,
			Origin:      c.location,
			Destination: req.Location,
			GroupJID:    req.GroupJID,
			GroupID:     req.GroupID,
			Resources:   shipment,
			RequestID:   req.RequestID,
		}
		c.sendTo(vehicleJID, protocol.TypeDispatch, dispatch)
		c.stats.Dispatches++
		c.stats.Shipped = c.stats.Shipped.Add(shipment)
		metrics.DispatchesTotal.WithLabelValues(c.id).Inc()
		c.log.Printf("dispatched %s to %s for group %s (request %s): %s (capacity %d, used %d); inventory left: %s",
			vehicleJID, dispatch.Destination, dispatch.GroupID, dispatch.RequestID,
			shipment.Phrase(false), capacity, used, c.inventory.Phrase(true))
		publish(c.sink, Event{
			"type":       "dispatch",
			"center_id":  c.id,
			"vehicle":    vehicleJID,
			"group_id":   dispatch.GroupID,
			"request_id": dispatch.RequestID,
			"shipment":   shipment,
		})
	}

	c.pending = append(c.pending, deferred...)
}

// pickVehicle returns the lexicographically smallest available vehicle jid:
// a deterministic, reproducible tie-break.
func (c *Center) pickVehicle() string {
	jids := make([]string, 0, len(c.available))
	for jid := range c.available {
		jids = append(jids, jid)
	}
	sort.Strings(jids)
	return jids[0]
}

func (c *Center) sendTo(to, msgType string, payload any) {
	if err := c.send.Send(c.jid, to, msgType, payload); err != nil {
		c.log.Printf("send %s to %s: %v", msgType, to, err)
	}
}

// Inventory reports the remaining stock. Safe once the agent loop stopped.
func (c *Center) Inventory() resource.Bundle { return c.inventory }

func (c *Center) Stats() CenterStats { return c.stats }

// PendingCount reports requests still queued (unserved at shutdown).
func (c *Center) PendingCount() int { return len(c.pending) }

func (c *Center) ID() string { return c.id }
