// Package config loads and validates the simulation configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"reliefnet/internal/resource"
	"reliefnet/internal/simgraph"
)

type Config struct {
	Simulation SimulationSpec `yaml:"simulation"`
	Map        MapSpec        `yaml:"map"`
	Events     EventsSpec     `yaml:"events"`
	Agents     AgentsSpec     `yaml:"agents"`
}

type SimulationSpec struct {
	TickSeconds     int    `yaml:"tick_seconds"`
	MaxTicks        int    `yaml:"max_ticks"`
	RequestCooldown int    `yaml:"request_cooldown"`
	RandomSeed      int64  `yaml:"random_seed"`
	LogLevel        string `yaml:"log_level"`
}

type MapSpec struct {
	Locations []LocationSpec `yaml:"locations"`
	Roads     []RoadSpec     `yaml:"roads"`
}

type LocationSpec struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

type RoadSpec struct {
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	BaseTime      int    `yaml:"base_time"`
	Bidirectional *bool  `yaml:"bidirectional"` // nil means true
}

// EventsSpec holds the per-tick hazard probabilities and their ranges.
// Ranges are inclusive [min, max] pairs.
type EventsSpec struct {
	RoadCloseProb     float64    `yaml:"road_close_prob"`
	RoadCloseDuration [2]int     `yaml:"road_close_duration"`
	DelayProb         float64    `yaml:"delay_prob"`
	DelayDuration     [2]int     `yaml:"delay_duration"`
	DelayAmount       [2]int     `yaml:"delay_amount"`
	AttackProb        float64    `yaml:"attack_prob"`
	AttackDelay       [2]int     `yaml:"attack_delay"`
	AttackLoss        [2]float64 `yaml:"attack_loss"`
	DemandSpikeProb   float64    `yaml:"demand_spike_prob"`
	DemandSpikeAmount [2]int     `yaml:"demand_spike_amount"`
}

type AgentsSpec struct {
	World    WorldSpec     `yaml:"world"`
	Centers  []CenterSpec  `yaml:"centers"`
	Vehicles []VehicleSpec `yaml:"vehicles"`
	Groups   []GroupSpec   `yaml:"groups"`
}

type WorldSpec struct {
	ID  string `yaml:"id"`
	JID string `yaml:"jid"`
}

type CenterSpec struct {
	ID        string          `yaml:"id"`
	JID       string          `yaml:"jid"`
	Location  string          `yaml:"location"`
	Inventory resource.Bundle `yaml:"inventory"`
	Vehicles  []string        `yaml:"vehicles"`
}

type VehicleSpec struct {
	ID         string `yaml:"id"`
	JID        string `yaml:"jid"`
	Home       string `yaml:"home"`
	HomeCenter string `yaml:"home_center"`
	Capacity   int    `yaml:"capacity"`
}

type GroupSpec struct {
	ID                 string          `yaml:"id"`
	JID                string          `yaml:"jid"`
	Location           string          `yaml:"location"`
	AssignedCenter     string          `yaml:"assigned_center"`
	Stock              resource.Bundle `yaml:"stock"`
	MinThreshold       resource.Bundle `yaml:"min_threshold"`
	MaxCapacity        resource.Bundle `yaml:"max_capacity"`
	ConsumptionPerTick resource.Bundle `yaml:"consumption_per_tick"`
}

// Load reads and validates a config file. Validation failures here are the
// fatal-at-startup class of errors: nothing is allowed to start on a config
// that references unknown agents or locations.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Normalize fills defaults and derived fields.
func (c *Config) Normalize() {
	s := &c.Simulation
	if s.TickSeconds <= 0 {
		s.TickSeconds = 1
	}
	if s.MaxTicks <= 0 {
		s.MaxTicks = 60
	}
	if s.RequestCooldown <= 0 {
		s.RequestCooldown = 3
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}

	e := &c.Events
	if e.RoadCloseProb == 0 {
		e.RoadCloseProb = 0.1
	}
	if e.RoadCloseDuration == [2]int{} {
		e.RoadCloseDuration = [2]int{2, 5}
	}
	if e.DelayProb == 0 {
		e.DelayProb = 0.1
	}
	if e.DelayDuration == [2]int{} {
		e.DelayDuration = [2]int{2, 4}
	}
	if e.DelayAmount == [2]int{} {
		e.DelayAmount = [2]int{1, 3}
	}
	if e.AttackProb == 0 {
		e.AttackProb = 0.05
	}
	if e.AttackDelay == [2]int{} {
		e.AttackDelay = [2]int{1, 3}
	}
	if e.AttackLoss == [2]float64{} {
		e.AttackLoss = [2]float64{0.1, 0.3}
	}
	if e.DemandSpikeProb == 0 {
		e.DemandSpikeProb = 0.1
	}
	if e.DemandSpikeAmount == [2]int{} {
		e.DemandSpikeAmount = [2]int{5, 20}
	}

	if c.Agents.World.ID == "" {
		c.Agents.World.ID = "world"
	}
	if c.Agents.World.JID == "" {
		c.Agents.World.JID = c.Agents.World.ID + "@sim"
	}
	for i := range c.Agents.Centers {
		if c.Agents.Centers[i].JID == "" {
			c.Agents.Centers[i].JID = c.Agents.Centers[i].ID + "@sim"
		}
	}
	for i := range c.Agents.Vehicles {
		if c.Agents.Vehicles[i].JID == "" {
			c.Agents.Vehicles[i].JID = c.Agents.Vehicles[i].ID + "@sim"
		}
	}
	for i := range c.Agents.Groups {
		if c.Agents.Groups[i].JID == "" {
			c.Agents.Groups[i].JID = c.Agents.Groups[i].ID + "@sim"
		}
	}
}

func (c *Config) Validate() error {
	locations := map[string]bool{}
	for _, l := range c.Map.Locations {
		if l.Name == "" {
			return fmt.Errorf("map: location with empty name")
		}
		if locations[l.Name] {
			return fmt.Errorf("map: duplicate location %q", l.Name)
		}
		locations[l.Name] = true
	}
	for _, r := range c.Map.Roads {
		if !locations[r.From] || !locations[r.To] {
			return fmt.Errorf("map: road %s -> %s references unknown location", r.From, r.To)
		}
		if r.BaseTime <= 0 {
			return fmt.Errorf("map: road %s -> %s has non-positive base_time", r.From, r.To)
		}
	}

	centers := map[string]bool{}
	for _, cs := range c.Agents.Centers {
		if cs.ID == "" {
			return fmt.Errorf("agents: center with empty id")
		}
		if centers[cs.ID] {
			return fmt.Errorf("agents: duplicate center id %q", cs.ID)
		}
		centers[cs.ID] = true
		if !locations[cs.Location] {
			return fmt.Errorf("agents: center %s at unknown location %q", cs.ID, cs.Location)
		}
	}

	vehicles := map[string]bool{}
	for _, v := range c.Agents.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("agents: vehicle with empty id")
		}
		if vehicles[v.ID] {
			return fmt.Errorf("agents: duplicate vehicle id %q", v.ID)
		}
		vehicles[v.ID] = true
		if !centers[v.HomeCenter] {
			return fmt.Errorf("agents: vehicle %s has unknown home_center %q", v.ID, v.HomeCenter)
		}
		if !locations[v.Home] {
			return fmt.Errorf("agents: vehicle %s at unknown home %q", v.ID, v.Home)
		}
		if v.Capacity <= 0 {
			return fmt.Errorf("agents: vehicle %s has non-positive capacity", v.ID)
		}
	}

	for _, cs := range c.Agents.Centers {
		for _, vid := range cs.Vehicles {
			if !vehicles[vid] {
				return fmt.Errorf("agents: center %s lists unknown vehicle %q", cs.ID, vid)
			}
		}
	}

	groups := map[string]bool{}
	for _, g := range c.Agents.Groups {
		if g.ID == "" {
			return fmt.Errorf("agents: group with empty id")
		}
		if groups[g.ID] {
			return fmt.Errorf("agents: duplicate group id %q", g.ID)
		}
		groups[g.ID] = true
		if !centers[g.AssignedCenter] {
			return fmt.Errorf("agents: group %s has unknown assigned_center %q", g.ID, g.AssignedCenter)
		}
		if !locations[g.Location] {
			return fmt.Errorf("agents: group %s at unknown location %q", g.ID, g.Location)
		}
	}

	return nil
}

// BuildMap materializes the transport graph from the map section.
func (c *Config) BuildMap() *simgraph.Map {
	locations := make(map[string]simgraph.Point, len(c.Map.Locations))
	for _, l := range c.Map.Locations {
		locations[l.Name] = simgraph.Point{X: l.X, Y: l.Y}
	}
	roads := make([]simgraph.Road, 0, len(c.Map.Roads))
	for _, r := range c.Map.Roads {
		roads = append(roads, simgraph.Road{
			From:          r.From,
			To:            r.To,
			BaseTime:      r.BaseTime,
			Bidirectional: r.Bidirectional == nil || *r.Bidirectional,
		})
	}
	return simgraph.BuildMap(locations, roads)
}

// CenterByID is a lookup used when wiring vehicles and groups to their
// centers at startup.
func (c *Config) CenterByID(id string) (CenterSpec, bool) {
	for _, cs := range c.Agents.Centers {
		if cs.ID == id {
			return cs, true
		}
	}
	return CenterSpec{}, false
}

// VehicleByID resolves a vehicle spec by id.
func (c *Config) VehicleByID(id string) (VehicleSpec, bool) {
	for _, v := range c.Agents.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return VehicleSpec{}, false
}
