package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reliefnet/internal/simgraph"
)

func edge(from, to string) simgraph.Edge { return simgraph.Edge{From: from, To: to} }

const sampleYAML = `
simulation:
  tick_seconds: 1
  max_ticks: 40
  request_cooldown: 3
  random_seed: 1337

map:
  locations:
    - {name: depot, x: 0, y: 0}
    - {name: junction, x: 2, y: 1}
    - {name: camp, x: 4, y: 0}
  roads:
    - {from: depot, to: junction, base_time: 2}
    - {from: junction, to: camp, base_time: 3}
    - {from: depot, to: camp, base_time: 10, bidirectional: false}

events:
  road_close_prob: 0.2
  road_close_duration: [2, 5]
  attack_prob: 0.0

agents:
  world:
    id: world
  centers:
    - id: c1
      location: depot
      inventory: {food: 100, water: 80, medicine: 40}
      vehicles: [v1, v2]
  vehicles:
    - {id: v1, home: depot, home_center: c1, capacity: 20}
    - {id: v2, home: depot, home_center: c1, capacity: 15}
  groups:
    - id: g1
      location: camp
      assigned_center: c1
      stock: {food: 10, water: 10, medicine: 5}
      min_threshold: {food: 5, water: 5, medicine: 2}
      max_capacity: {food: 30, water: 30, medicine: 10}
      consumption_per_tick: {food: 2, water: 2, medicine: 1}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Sample(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Simulation.MaxTicks != 40 || cfg.Simulation.RandomSeed != 1337 {
		t.Fatalf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Events.RoadCloseProb != 0.2 || cfg.Events.RoadCloseDuration != [2]int{2, 5} {
		t.Fatalf("events = %+v", cfg.Events)
	}
	// Unset event fields fall back to defaults.
	if cfg.Events.DelayProb != 0.1 || cfg.Events.DemandSpikeAmount != [2]int{5, 20} {
		t.Fatalf("event defaults = %+v", cfg.Events)
	}
	// JIDs derive from ids when omitted.
	if cfg.Agents.World.JID != "world@sim" || cfg.Agents.Centers[0].JID != "c1@sim" {
		t.Fatalf("jid defaults: world=%q center=%q", cfg.Agents.World.JID, cfg.Agents.Centers[0].JID)
	}

	m := cfg.BuildMap()
	if len(m.Locations) != 3 {
		t.Fatalf("locations = %d", len(m.Locations))
	}
	// Default-bidirectional road appears both ways; explicit one-way does not.
	if _, ok := m.BaseEdges[edge("junction", "depot")]; !ok {
		t.Fatal("missing reverse edge for bidirectional road")
	}
	if _, ok := m.BaseEdges[edge("camp", "depot")]; ok {
		t.Fatal("one-way road materialized a reverse edge")
	}
}

func TestLoad_UnknownCenterIsFatal(t *testing.T) {
	bad := strings.Replace(sampleYAML, "assigned_center: c1", "assigned_center: c9", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "assigned_center") {
		t.Fatalf("expected assigned_center error, got %v", err)
	}
}

func TestLoad_UnknownHomeCenterIsFatal(t *testing.T) {
	bad := strings.Replace(sampleYAML, "home_center: c1, capacity: 20", "home_center: nope, capacity: 20", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "home_center") {
		t.Fatalf("expected home_center error, got %v", err)
	}
}

func TestLoad_RoadToUnknownLocation(t *testing.T) {
	bad := strings.Replace(sampleYAML, "{from: junction, to: camp, base_time: 3}", "{from: junction, to: nowhere, base_time: 3}", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "unknown location") {
		t.Fatalf("expected unknown location error, got %v", err)
	}
}
