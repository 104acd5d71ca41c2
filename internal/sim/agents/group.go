package agents

import (
	"fmt"
	"log"

	"reliefnet/internal/metrics"
	"reliefnet/internal/protocol"
	"reliefnet/internal/resource"
)

// GroupStats are run totals for the end-of-run report.
type GroupStats struct {
	Requests   int
	Deliveries int
	Received   resource.Bundle
}

type GroupConfig struct {
	ID                 string
	JID                string
	Location           string
	CenterJID          string
	WorldJID           string
	Stock              resource.Bundle
	MinThreshold       resource.Bundle
	MaxCapacity        resource.Bundle
	ConsumptionPerTick resource.Bundle
	RequestCooldown    int
	Send               Sender
	Logger             *log.Logger
	Sink               EventSink
}

// Group consumes resources every tick and asks its assigned center for a
// top-up when any kind falls under threshold, with a cooldown and at most
// one request outstanding.
type Group struct {
	id        string
	jid       string
	location  string
	centerJID string
	worldJID  string

	stock        resource.Bundle
	minThreshold resource.Bundle
	maxCapacity  resource.Bundle
	consumption  resource.Bundle

	cooldown         int
	tick             int
	lastRequestTick  int
	requestSeq       int
	pendingRequestID string

	send Sender
	log  *log.Logger
	sink EventSink

	stats GroupStats
	done  chan struct{}
}

func NewGroup(cfg GroupConfig) *Group {
	cooldown := cfg.RequestCooldown
	if cooldown <= 0 {
		cooldown = 3
	}
	return &Group{
		id:           cfg.ID,
		jid:          cfg.JID,
		location:     cfg.Location,
		centerJID:    cfg.CenterJID,
		worldJID:     cfg.WorldJID,
		stock:        cfg.Stock.Normalize(),
		minThreshold: cfg.MinThreshold.Normalize(),
		maxCapacity:  cfg.MaxCapacity.Normalize(),
		consumption:  cfg.ConsumptionPerTick.Normalize(),
		cooldown:     cooldown,
		// A group under threshold may request on its very first tick.
		lastRequestTick: -cooldown,
		send:            cfg.Send,
		log:             ensureLogger(cfg.Logger, "[group "+cfg.ID+"] "),
		sink:            cfg.Sink,
		done:            make(chan struct{}),
	}
}

func (g *Group) Done() <-chan struct{} { return g.done }

func (g *Group) OnStart() {
	g.sendTo(g.worldJID, protocol.TypeRegister, protocol.RegisterMsg{
		AgentType: protocol.AgentGroup,
		JID:       g.jid,
		ID:        g.id,
		Location:  g.location,
	})
}

func (g *Group) OnTick() {
	g.tick++
	g.stock = g.stock.Sub(g.consumption)
	g.reportStock()
	g.maybeRequest()
}

func (g *Group) HandleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeDelivery:
		var msg protocol.DeliveryMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		delivered := msg.Resources.Normalize()
		g.stock = g.stock.Add(delivered).Clamp(g.maxCapacity)
		// Any delivery clears the outstanding marker, matched or not. A stray
		// or duplicate delivery therefore re-opens requesting early; see the
		// discrepancy test in group_test.go.
		g.pendingRequestID = ""
		g.stats.Deliveries++
		g.stats.Received = g.stats.Received.Add(delivered)
		metrics.DeliveriesTotal.WithLabelValues(g.id).Inc()
		metrics.UnitsDeliveredTotal.WithLabelValues("food").Add(float64(delivered.Food))
		metrics.UnitsDeliveredTotal.WithLabelValues("water").Add(float64(delivered.Water))
		metrics.UnitsDeliveredTotal.WithLabelValues("medicine").Add(float64(delivered.Medicine))
		g.reportStock()
		g.log.Printf("received delivery for request %s from %s: %s; stock now: %s",
			msg.RequestID, msg.From, delivered.Phrase(false), g.stock.Phrase(true))
		publish(g.sink, Event{
			"type":       "delivery",
			"group_id":   g.id,
			"request_id": msg.RequestID,
			"resources":  delivered,
		})
	case protocol.TypeDemandUpdate:
		var msg protocol.DemandUpdateMsg
		if err := env.Decode(&msg); err != nil {
			return
		}
		amounts := msg.Amounts.Normalize()
		g.stock = g.stock.Sub(amounts)
		g.reportStock()
		g.log.Printf("sudden demand spike consumed %s; stock now: %s",
			amounts.Phrase(false), g.stock.Phrase(true))
	case protocol.TypeShutdown:
		close(g.done)
	default:
	}
}

func (g *Group) maybeRequest() {
	if g.pendingRequestID != "" {
		return
	}
	if g.tick-g.lastRequestTick < g.cooldown {
		return
	}
	if !g.stock.Below(g.minThreshold) {
		return
	}
	// Top up to capacity, not just to threshold.
	need := resource.Diff(g.maxCapacity, g.stock)
	if need.Total() <= 0 {
		return
	}

	g.requestSeq++
	requestID := fmt.Sprintf("%s:%03d", g.id, g.requestSeq)
	g.sendTo(g.centerJID, protocol.TypeResourceRequest, protocol.ResourceRequestMsg{
		GroupID:   g.id,
		GroupJID:  g.jid,
		Location:  g.location,
		Needs:     need,
		RequestID: requestID,
	})
	g.lastRequestTick = g.tick
	g.pendingRequestID = requestID
	g.stats.Requests++
	g.log.Printf("sent request %s to %s; needs: %s; current stock: %s",
		requestID, g.centerJID, need.Phrase(false), g.stock.Phrase(true))
	publish(g.sink, Event{
		"type":       "resource_request",
		"group_id":   g.id,
		"request_id": requestID,
		"needs":      need,
	})
}

func (g *Group) reportStock() {
	metrics.GroupStock.WithLabelValues(g.id, "food").Set(float64(g.stock.Food))
	metrics.GroupStock.WithLabelValues(g.id, "water").Set(float64(g.stock.Water))
	metrics.GroupStock.WithLabelValues(g.id, "medicine").Set(float64(g.stock.Medicine))
}

func (g *Group) sendTo(to, msgType string, payload any) {
	if err := g.send.Send(g.jid, to, msgType, payload); err != nil {
		g.log.Printf("send %s to %s: %v", msgType, to, err)
	}
}

// Stock reports current stock. Safe once the agent loop stopped.
func (g *Group) Stock() resource.Bundle { return g.stock }

func (g *Group) Stats() GroupStats { return g.stats }

// PendingRequestID reports the outstanding request id, "" when none.
func (g *Group) PendingRequestID() string { return g.pendingRequestID }

func (g *Group) ID() string { return g.id }
