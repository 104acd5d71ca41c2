package main

import (
	"context"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"reliefnet/internal/bus"
	"reliefnet/internal/config"
	persistlog "reliefnet/internal/persistence/log"
	"reliefnet/internal/persistence/runindex"
	"reliefnet/internal/sim/agents"
	"reliefnet/internal/transport/observer"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dataDir    string
		seed       int64
		maxTicks   int
		disableDB  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.RandomSeed = seed
			}
			if cmd.Flags().Changed("max-ticks") {
				cfg.Simulation.MaxTicks = maxTicks
			}
			return runSimulation(cfg, addr, dataDir, disableDB)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "http listen address (metrics, pprof, observer feed; empty to disable)")
	cmd.Flags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the config seed")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "override the config tick limit")
	cmd.Flags().BoolVar(&disableDB, "disable-db", false, "skip writing the run index")
	return cmd
}

func runSimulation(cfg *config.Config, addr, dataDir string, disableDB bool) error {
	logger := log.New(os.Stdout, "[sim] ", log.LstdFlags|log.Lmicroseconds)
	runID := uuid.New().String()
	startedAt := time.Now()
	m := cfg.BuildMap()

	logger.Printf("run %s: seed %d, %d ticks of %ds, %d locations, %d centers, %d vehicles, %d groups",
		runID, cfg.Simulation.RandomSeed, cfg.Simulation.MaxTicks, cfg.Simulation.TickSeconds,
		len(cfg.Map.Locations), len(cfg.Agents.Centers), len(cfg.Agents.Vehicles), len(cfg.Agents.Groups))
	for _, cs := range cfg.Agents.Centers {
		logger.Printf("center %s at %s: %s, fleet %v", cs.ID, cs.Location, cs.Inventory.Phrase(true), cs.Vehicles)
	}
	for _, gs := range cfg.Agents.Groups {
		logger.Printf("group %s at %s (center %s): stock %s, threshold %s",
			gs.ID, gs.Location, gs.AssignedCenter, gs.Stock.Phrase(true), gs.MinThreshold.Phrase(true))
	}

	eventLog := persistlog.NewEventLogger(dataDir, runID)
	defer eventLog.Close()

	locations := make([]string, 0, len(cfg.Map.Locations))
	for _, l := range cfg.Map.Locations {
		locations = append(locations, l.Name)
	}
	sort.Strings(locations)
	obs := observer.NewServer(observer.BootstrapResponse{
		RunID:     runID,
		Seed:      cfg.Simulation.RandomSeed,
		MaxTicks:  cfg.Simulation.MaxTicks,
		Locations: locations,
	}, logger)
	defer obs.Shutdown()

	sink := agents.MultiSink(eventLog, obs)

	var httpServer *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/observer/ws", obs.WSHandler())
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		httpServer = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http server: %v", err)
			}
		}()
		logger.Printf("serving metrics and observer feed on %s", addr)
	}

	// Every endpoint must exist before any agent starts so no registration
	// races a missing mailbox.
	b := bus.New()
	worldJID := cfg.Agents.World.JID
	endpoints := map[string]*bus.Endpoint{worldJID: b.Endpoint(worldJID)}
	for _, cs := range cfg.Agents.Centers {
		endpoints[cs.JID] = b.Endpoint(cs.JID)
	}
	for _, vs := range cfg.Agents.Vehicles {
		endpoints[vs.JID] = b.Endpoint(vs.JID)
	}
	for _, gs := range cfg.Agents.Groups {
		endpoints[gs.JID] = b.Endpoint(gs.JID)
	}
	defer b.Close()

	world := agents.NewWorld(agents.WorldConfig{
		JID:      worldJID,
		Map:      m,
		Events:   cfg.Events,
		MaxTicks: cfg.Simulation.MaxTicks,
		Seed:     cfg.Simulation.RandomSeed,
		Send:     b,
		Logger:   log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
		Sink:     sink,
	})

	var centers []*agents.Center
	for _, cs := range cfg.Agents.Centers {
		fleet := make(map[string]int, len(cs.Vehicles))
		for _, vid := range cs.Vehicles {
			vs, _ := cfg.VehicleByID(vid)
			fleet[vs.JID] = vs.Capacity
		}
		centers = append(centers, agents.NewCenter(agents.CenterConfig{
			ID:        cs.ID,
			JID:       cs.JID,
			Location:  cs.Location,
			WorldJID:  worldJID,
			Inventory: cs.Inventory,
			Fleet:     fleet,
			Send:      b,
			Logger:    log.New(os.Stdout, "[center "+cs.ID+"] ", log.LstdFlags|log.Lmicroseconds),
			Sink:      sink,
		}))
	}

	var vehicles []*agents.Vehicle
	for _, vs := range cfg.Agents.Vehicles {
		home, _ := cfg.CenterByID(vs.HomeCenter)
		vehicles = append(vehicles, agents.NewVehicle(agents.VehicleConfig{
			ID:            vs.ID,
			JID:           vs.JID,
			Home:          vs.Home,
			HomeCenterJID: home.JID,
			WorldJID:      worldJID,
			Capacity:      vs.Capacity,
			Map:           m,
			Send:          b,
			Logger:        log.New(os.Stdout, "[vehicle "+vs.ID+"] ", log.LstdFlags|log.Lmicroseconds),
			Sink:          sink,
		}))
	}

	var groups []*agents.Group
	for _, gs := range cfg.Agents.Groups {
		center, _ := cfg.CenterByID(gs.AssignedCenter)
		groups = append(groups, agents.NewGroup(agents.GroupConfig{
			ID:                 gs.ID,
			JID:                gs.JID,
			Location:           gs.Location,
			CenterJID:          center.JID,
			WorldJID:           worldJID,
			Stock:              gs.Stock,
			MinThreshold:       gs.MinThreshold,
			MaxCapacity:        gs.MaxCapacity,
			ConsumptionPerTick: gs.ConsumptionPerTick,
			RequestCooldown:    cfg.Simulation.RequestCooldown,
			Send:               b,
			Logger:             log.New(os.Stdout, "[group "+gs.ID+"] ", log.LstdFlags|log.Lmicroseconds),
			Sink:               sink,
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tick := time.Duration(cfg.Simulation.TickSeconds) * time.Second
	var wg sync.WaitGroup
	start := func(jid string, h agents.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agents.Run(ctx, h, endpoints[jid].Receive(), tick)
		}()
	}

	// World first so every registration finds it listening.
	start(worldJID, world)
	for i, cs := range cfg.Agents.Centers {
		start(cs.JID, centers[i])
	}
	for i, vs := range cfg.Agents.Vehicles {
		start(vs.JID, vehicles[i])
	}
	for i, gs := range cfg.Agents.Groups {
		start(gs.JID, groups[i])
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-world.Done():
		logger.Printf("world finished after %d ticks", world.Tick())
		// Grace period so in-flight deliveries and status reports land
		// before the agents stop.
		time.Sleep(2 * tick)
	case sig := <-sigc:
		logger.Printf("received %s; stopping", sig)
	}
	cancel()
	wg.Wait()

	if httpServer != nil {
		shutctx, shutcancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = httpServer.Shutdown(shutctx)
		shutcancel()
	}
	if err := eventLog.Close(); err != nil {
		logger.Printf("close event log: %v", err)
	}

	finishedAt := time.Now()
	printSummary(world, centers, vehicles, groups)

	if !disableDB {
		if err := writeRunIndex(filepath.Join(dataDir, "runs.db"), runID, cfg.Simulation.RandomSeed,
			startedAt, finishedAt, eventLog.Path(), world, centers, vehicles, groups); err != nil {
			logger.Printf("write run index: %v", err)
		}
	}
	logger.Printf("run %s finished in %s", runID, finishedAt.Sub(startedAt).Round(time.Millisecond))
	return nil
}

func printSummary(world *agents.World, centers []*agents.Center, vehicles []*agents.Vehicle, groups []*agents.Group) {
	ws := world.Stats()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("World")
	tw.AppendHeader(table.Row{"Ticks", "Closures", "Delays", "Attacks", "Demand spikes"})
	tw.AppendRow(table.Row{ws.Ticks, ws.RoadClosures, ws.RoadDelays, ws.Attacks, ws.DemandSpikes})
	tw.Render()

	tw = table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Centers")
	tw.AppendHeader(table.Row{"Center", "Requests", "Dispatches", "Unserved", "Shipped", "Inventory left"})
	for _, c := range centers {
		st := c.Stats()
		tw.AppendRow(table.Row{c.ID(), st.Requests, st.Dispatches, c.PendingCount(),
			st.Shipped.Phrase(false), c.Inventory().Phrase(true)})
	}
	tw.Render()

	tw = table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Vehicles")
	tw.AppendHeader(table.Row{"Vehicle", "Deliveries", "Attacks", "Delivered", "End state"})
	for _, v := range vehicles {
		st := v.Stats()
		tw.AppendRow(table.Row{v.ID(), st.Deliveries, st.Attacks,
			st.Delivered.Phrase(false), v.Status() + " at " + v.Location()})
	}
	tw.Render()

	tw = table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Groups")
	tw.AppendHeader(table.Row{"Group", "Requests", "Deliveries", "Received", "Final stock"})
	for _, g := range groups {
		st := g.Stats()
		tw.AppendRow(table.Row{g.ID(), st.Requests, st.Deliveries,
			st.Received.Phrase(false), g.Stock().Phrase(true)})
	}
	tw.Render()
}

func writeRunIndex(path, runID string, seed int64, startedAt, finishedAt time.Time, eventLogPath string,
	world *agents.World, centers []*agents.Center, vehicles []*agents.Vehicle, groups []*agents.Group) error {
	idx, err := runindex.Open(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	ws := world.Stats()
	if err := idx.RecordRun(runindex.RunRow{
		RunID:        runID,
		Seed:         seed,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Ticks:        ws.Ticks,
		RoadClosures: ws.RoadClosures,
		RoadDelays:   ws.RoadDelays,
		Attacks:      ws.Attacks,
		DemandSpikes: ws.DemandSpikes,
		EventLogPath: eventLogPath,
	}); err != nil {
		return err
	}
	for _, c := range centers {
		st := c.Stats()
		if err := idx.RecordCenter(runindex.CenterRow{
			RunID: runID, CenterID: c.ID(),
			Requests: st.Requests, Dispatches: st.Dispatches, PendingAtEnd: c.PendingCount(),
			Shipped: st.Shipped, FinalInventory: c.Inventory(),
		}); err != nil {
			return err
		}
	}
	for _, v := range vehicles {
		st := v.Stats()
		if err := idx.RecordVehicle(runindex.VehicleRow{
			RunID: runID, VehicleID: v.ID(),
			Deliveries: st.Deliveries, Attacks: st.Attacks, Delivered: st.Delivered,
			FinalStatus: v.Status(), FinalLocation: v.Location(),
		}); err != nil {
			return err
		}
	}
	for _, g := range groups {
		st := g.Stats()
		if err := idx.RecordGroup(runindex.GroupRow{
			RunID: runID, GroupID: g.ID(),
			Requests: st.Requests, Deliveries: st.Deliveries,
			Received: st.Received, FinalStock: g.Stock(),
		}); err != nil {
			return err
		}
	}
	return nil
}
