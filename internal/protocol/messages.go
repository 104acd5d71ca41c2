package protocol

import "reliefnet/internal/resource"

// REGISTER (any agent -> world)
type RegisterMsg struct {
	AgentType string `json:"agent_type"`
	JID       string `json:"jid"`
	ID        string `json:"id"`
	Location  string `json:"location"`
}

// WORLD_UPDATE (world -> vehicle): the full hazard snapshot for this tick.
type WorldUpdateMsg struct {
	Tick        int         `json:"tick"`
	ClosedEdges []ClosedRef `json:"closed_edges"`
	Delays      []DelayRef  `json:"delays"`
}

type ClosedRef struct {
	From string `json:"from"`
	To   string `json:"to"`
	TTL  int    `json:"ttl"`
}

type DelayRef struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Extra int    `json:"extra"`
	TTL   int    `json:"ttl"`
}

// RESOURCE_REQUEST (group -> center)
type ResourceRequestMsg struct {
	GroupID   string          `json:"group_id"`
	GroupJID  string          `json:"group_jid"`
	Location  string          `json:"location"`
	Needs     resource.Bundle `json:"needs"`
	RequestID string          `json:"request_id"`
}

// DISPATCH (center -> vehicle)
type DispatchMsg struct {
	CenterID    string          `json:"center_id"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	GroupJID    string          `json:"group_jid"`
	GroupID     string          `json:"group_id"`
	Resources   resource.Bundle `json:"resources"`
	RequestID   string          `json:"request_id"`
}

// DELIVERY (vehicle -> group)
type DeliveryMsg struct {
	VehicleID string          `json:"vehicle_id"`
	Resources resource.Bundle `json:"resources"`
	From      string          `json:"from"`
	RequestID string          `json:"request_id"`
}

// VEHICLE_STATUS (vehicle -> world, vehicle -> home center)
type VehicleStatusMsg struct {
	JID       string `json:"jid"`
	VehicleID string `json:"vehicle_id"`
	Status    string `json:"status"`
	Location  string `json:"location"`
}

// ATTACK (world -> vehicle)
type AttackMsg struct {
	Delay int     `json:"delay"`
	Loss  float64 `json:"loss"`
}

// DEMAND_UPDATE (world -> group)
type DemandUpdateMsg struct {
	Amounts resource.Bundle `json:"amounts"`
}

// SHUTDOWN (world -> all)
type ShutdownMsg struct {
	Tick int `json:"tick"`
}
