// Package protocol defines the typed messages agents exchange. Payloads are
// structured JSON carried in an envelope; the transport underneath treats
// them as opaque.
package protocol

import "encoding/json"

// Message types.
const (
	TypeRegister        = "register"
	TypeWorldUpdate     = "world_update"
	TypeResourceRequest = "resource_request"
	TypeDispatch        = "dispatch"
	TypeDelivery        = "delivery"
	TypeVehicleStatus   = "vehicle_status"
	TypeAttack          = "attack"
	TypeDemandUpdate    = "demand_update"
	TypeShutdown        = "shutdown"
)

// Agent types carried in register messages.
const (
	AgentCenter  = "center"
	AgentVehicle = "vehicle"
	AgentGroup   = "group"
)

// Vehicle statuses.
const (
	StatusIdle      = "idle"
	StatusEnRoute   = "en_route"
	StatusReturning = "returning"
)

// Envelope is one addressed message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a payload struct into an envelope.
func Encode(from, to, msgType string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, From: from, To: to, Payload: b}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
