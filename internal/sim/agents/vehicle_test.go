package agents

import (
	"testing"

	"reliefnet/internal/protocol"
	"reliefnet/internal/resource"
)

func newTestVehicle(send Sender) *Vehicle {
	return NewVehicle(VehicleConfig{
		ID:            "v1",
		JID:           "v1@sim",
		Home:          "depot",
		HomeCenterJID: "c1@sim",
		WorldJID:      "world@sim",
		Capacity:      10,
		Map:           testMap(),
		Send:          send,
		Logger:        quietLogger(),
	})
}

func dispatchEnv(t *testing.T, cargo resource.Bundle) protocol.Envelope {
	t.Helper()
	env, err := protocol.Encode("c1@sim", "v1@sim", protocol.TypeDispatch, protocol.DispatchMsg{
		CenterID:    "c1",
		Origin:      "depot",
		Destination: "camp",
		GroupJID:    "g1@sim",
		GroupID:     "g1",
		Resources:   cargo,
		RequestID:   "g1:001",
	})
	if err != nil {
		t.Fatalf("encode dispatch: %v", err)
	}
	return env
}

func worldUpdateEnv(t *testing.T, closed []protocol.ClosedRef, delays []protocol.DelayRef) protocol.Envelope {
	t.Helper()
	env, err := protocol.Encode("world@sim", "v1@sim", protocol.TypeWorldUpdate, protocol.WorldUpdateMsg{
		Tick:        1,
		ClosedEdges: closed,
		Delays:      delays,
	})
	if err != nil {
		t.Fatalf("encode world update: %v", err)
	}
	return env
}

func attackEnv(t *testing.T, delay int, loss float64) protocol.Envelope {
	t.Helper()
	env, err := protocol.Encode("world@sim", "v1@sim", protocol.TypeAttack, protocol.AttackMsg{
		Delay: delay,
		Loss:  loss,
	})
	if err != nil {
		t.Fatalf("encode attack: %v", err)
	}
	return env
}

func TestVehicleStartAnnouncesToWorldOnly(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.OnStart()

	regs := sender.ofType(protocol.TypeRegister)
	if len(regs) != 1 || regs[0].To != "world@sim" {
		t.Fatalf("expected one registration to world, got %+v", regs)
	}
	statuses := sender.ofType(protocol.TypeVehicleStatus)
	if len(statuses) != 1 || statuses[0].To != "world@sim" {
		t.Fatalf("initial status should go to world only, got %+v", statuses)
	}
	msg := decodeAs[protocol.VehicleStatusMsg](t, statuses[0])
	if msg.Status != protocol.StatusIdle || msg.Location != "depot" {
		t.Fatalf("initial status = %+v", msg)
	}
}

func TestVehicleIdleIgnoresTicks(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	for i := 0; i < 5; i++ {
		v.OnTick()
	}
	if len(sender.sent) != 0 || v.Location() != "depot" {
		t.Fatalf("idle vehicle moved or spoke: %d messages, at %s", len(sender.sent), v.Location())
	}
}

// Full round trip on the triangle map: depot -> junction (2 ticks) ->
// camp (3 ticks), deliver, then back the same way.
func TestVehicleFullRoundTrip(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	cargo := resource.Bundle{Food: 7, Medicine: 3}
	v.HandleMessage(dispatchEnv(t, cargo))

	if v.Status() != protocol.StatusEnRoute {
		t.Fatalf("status after dispatch = %q", v.Status())
	}

	wantLoc := map[int]string{
		2: "depot", 3: "junction", 5: "junction", 6: "camp",
	}
	for tick := 1; tick <= 12; tick++ {
		v.OnTick()
		if want, check := wantLoc[tick]; check && v.Location() != want {
			t.Fatalf("tick %d: at %q, want %q", tick, v.Location(), want)
		}
		if tick == 6 {
			if v.Status() != protocol.StatusReturning {
				t.Fatalf("tick 6: status %q, want returning", v.Status())
			}
			deliveries := sender.ofType(protocol.TypeDelivery)
			if len(deliveries) != 1 || deliveries[0].To != "g1@sim" {
				t.Fatalf("tick 6: deliveries %+v", deliveries)
			}
			msg := decodeAs[protocol.DeliveryMsg](t, deliveries[0])
			if msg.Resources != cargo || msg.RequestID != "g1:001" || msg.From != "c1@sim" {
				t.Fatalf("delivery payload = %+v", msg)
			}
			if v.Cargo() != (resource.Bundle{}) {
				t.Fatalf("cargo not emptied after delivery: %+v", v.Cargo())
			}
		}
	}

	if v.Status() != protocol.StatusIdle || v.Location() != "depot" {
		t.Fatalf("end state: %s at %s, want idle at depot", v.Status(), v.Location())
	}
	if v.Stats().Deliveries != 1 || v.Stats().Delivered != cargo {
		t.Fatalf("stats = %+v", v.Stats())
	}

	// The idle announcement after the return is the center's cue to reuse
	// the vehicle.
	var idleToCenter bool
	for _, env := range sender.ofType(protocol.TypeVehicleStatus) {
		if env.To == "c1@sim" {
			msg := decodeAs[protocol.VehicleStatusMsg](t, env)
			if msg.Status == protocol.StatusIdle && msg.Location == "depot" {
				idleToCenter = true
			}
		}
	}
	if !idleToCenter {
		t.Fatalf("home center never told the vehicle is idle again")
	}
}

func TestVehicleAttackMidEdgeExtendsEdgeAndLosesCargo(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.HandleMessage(dispatchEnv(t, resource.Bundle{Food: 10}))

	v.OnTick() // starts depot -> junction, 2 ticks remaining
	if v.edgeRemaining != 2 {
		t.Fatalf("edge remaining = %d, want 2", v.edgeRemaining)
	}

	v.HandleMessage(attackEnv(t, 2, 0.5))
	if v.edgeRemaining != 4 {
		t.Fatalf("edge remaining after attack = %d, want 4", v.edgeRemaining)
	}
	if v.Cargo() != (resource.Bundle{Food: 5}) {
		t.Fatalf("cargo after 50%% loss = %+v", v.Cargo())
	}
	if v.Stats().Attacks != 1 {
		t.Fatalf("attack count = %d", v.Stats().Attacks)
	}

	for i := 0; i < 4; i++ {
		v.OnTick()
	}
	if v.Location() != "junction" {
		t.Fatalf("after extended edge: at %q, want junction", v.Location())
	}
}

func TestVehicleAttackBeforeMovingDelaysNextEdgeOnce(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.HandleMessage(dispatchEnv(t, resource.Bundle{Food: 10}))

	// Not yet mid-edge: the delay is pending and charged to the first edge.
	v.HandleMessage(attackEnv(t, 2, 0))
	v.OnTick()
	if v.edgeRemaining != 4 {
		t.Fatalf("first edge remaining = %d, want base 2 + delay 2", v.edgeRemaining)
	}
	for i := 0; i < 4; i++ {
		v.OnTick()
	}
	if v.Location() != "junction" {
		t.Fatalf("at %q, want junction", v.Location())
	}
	// The pending delay was consumed; the second edge runs at base time.
	if v.edgeRemaining != 3 {
		t.Fatalf("second edge remaining = %d, want base 3", v.edgeRemaining)
	}
}

func TestVehicleLossIgnoredWhenIdle(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.cargo = resource.Bundle{Food: 10}

	v.HandleMessage(attackEnv(t, 0, 0.5))
	if v.Cargo() != (resource.Bundle{Food: 10}) {
		t.Fatalf("idle vehicle lost cargo: %+v", v.Cargo())
	}
}

func TestVehicleReroutesAroundClosure(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.HandleMessage(dispatchEnv(t, resource.Bundle{Food: 5}))
	v.HandleMessage(worldUpdateEnv(t, []protocol.ClosedRef{{From: "depot", To: "junction", TTL: 5}}, nil))

	// Next edge is closed: the planned route is dropped.
	v.OnTick()
	if len(v.route) != 0 || v.Location() != "depot" {
		t.Fatalf("route not abandoned: route=%v at %s", v.route, v.Location())
	}

	// Replan goes over the direct road, cost 10.
	v.OnTick()
	if len(v.route) != 1 || v.route[0] != "camp" {
		t.Fatalf("replanned route = %v, want [camp]", v.route)
	}
	if v.edgeRemaining != 10 {
		t.Fatalf("edge remaining = %d, want 10", v.edgeRemaining)
	}
}

func TestVehicleStaysPutWhenUnreachable(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.HandleMessage(dispatchEnv(t, resource.Bundle{Food: 5}))
	v.HandleMessage(worldUpdateEnv(t, []protocol.ClosedRef{
		{From: "depot", To: "junction", TTL: 5},
		{From: "depot", To: "camp", TTL: 5},
	}, nil))

	for i := 0; i < 3; i++ {
		v.OnTick()
	}
	if v.Location() != "depot" || v.edgeRemaining != 0 {
		t.Fatalf("unreachable vehicle moved: at %s, remaining %d", v.Location(), v.edgeRemaining)
	}

	// Hazards clear; travel resumes on the next tick.
	v.HandleMessage(worldUpdateEnv(t, nil, nil))
	v.OnTick()
	v.OnTick()
	if v.edgeRemaining == 0 && len(v.route) == 0 {
		t.Fatalf("vehicle did not resume after hazards cleared")
	}
}

func TestVehicleDelayRaisesTravelTime(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	v.HandleMessage(dispatchEnv(t, resource.Bundle{Food: 5}))
	v.HandleMessage(worldUpdateEnv(t, nil, []protocol.DelayRef{{From: "depot", To: "junction", Extra: 3, TTL: 4}}))

	// Via junction still wins: 2+3 delayed plus 3 is 8 against 10 direct.
	v.OnTick()
	if len(v.route) == 0 || v.route[0] != "junction" {
		t.Fatalf("route = %v, want via junction", v.route)
	}
	if v.edgeRemaining != 5 {
		t.Fatalf("edge remaining = %d, want base 2 + extra 3", v.edgeRemaining)
	}
}

func TestVehicleShutdownStopsAgent(t *testing.T) {
	sender := &captureSender{}
	v := newTestVehicle(sender)
	env, _ := protocol.Encode("world@sim", "v1@sim", protocol.TypeShutdown, protocol.ShutdownMsg{Tick: 10})
	v.HandleMessage(env)
	select {
	case <-v.Done():
	default:
		t.Fatalf("vehicle not stopped after shutdown")
	}
}
