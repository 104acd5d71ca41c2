// Package runindex keeps an SQLite index of finished runs: one summary row
// per run plus per-agent outcome rows. It is written once at the end of a
// run and never read by the simulation itself.
package runindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reliefnet/internal/resource"
)

type Index struct {
	db *sql.DB
}

func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL for append-style workloads; NORMAL durability is enough for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			ticks INTEGER NOT NULL,
			road_closures INTEGER NOT NULL,
			road_delays INTEGER NOT NULL,
			attacks INTEGER NOT NULL,
			demand_spikes INTEGER NOT NULL,
			event_log_path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);`,
		`CREATE TABLE IF NOT EXISTS group_results (
			run_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			requests INTEGER NOT NULL,
			deliveries INTEGER NOT NULL,
			received_food INTEGER NOT NULL,
			received_water INTEGER NOT NULL,
			received_medicine INTEGER NOT NULL,
			final_food INTEGER NOT NULL,
			final_water INTEGER NOT NULL,
			final_medicine INTEGER NOT NULL,
			PRIMARY KEY (run_id, group_id)
		);`,
		`CREATE TABLE IF NOT EXISTS center_results (
			run_id TEXT NOT NULL,
			center_id TEXT NOT NULL,
			requests INTEGER NOT NULL,
			dispatches INTEGER NOT NULL,
			pending_at_end INTEGER NOT NULL,
			shipped_food INTEGER NOT NULL,
			shipped_water INTEGER NOT NULL,
			shipped_medicine INTEGER NOT NULL,
			final_food INTEGER NOT NULL,
			final_water INTEGER NOT NULL,
			final_medicine INTEGER NOT NULL,
			PRIMARY KEY (run_id, center_id)
		);`,
		`CREATE TABLE IF NOT EXISTS vehicle_results (
			run_id TEXT NOT NULL,
			vehicle_id TEXT NOT NULL,
			deliveries INTEGER NOT NULL,
			attacks INTEGER NOT NULL,
			delivered_food INTEGER NOT NULL,
			delivered_water INTEGER NOT NULL,
			delivered_medicine INTEGER NOT NULL,
			final_status TEXT NOT NULL,
			final_location TEXT NOT NULL,
			PRIMARY KEY (run_id, vehicle_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) Close() error { return x.db.Close() }

// RunRow is the per-run summary.
type RunRow struct {
	RunID        string
	Seed         int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Ticks        int
	RoadClosures int
	RoadDelays   int
	Attacks      int
	DemandSpikes int
	EventLogPath string
}

type GroupRow struct {
	RunID      string
	GroupID    string
	Requests   int
	Deliveries int
	Received   resource.Bundle
	FinalStock resource.Bundle
}

type CenterRow struct {
	RunID          string
	CenterID       string
	Requests       int
	Dispatches     int
	PendingAtEnd   int
	Shipped        resource.Bundle
	FinalInventory resource.Bundle
}

type VehicleRow struct {
	RunID         string
	VehicleID     string
	Deliveries    int
	Attacks       int
	Delivered     resource.Bundle
	FinalStatus   string
	FinalLocation string
}

func (x *Index) RecordRun(r RunRow) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO runs
		(run_id, seed, started_at, finished_at, ticks, road_closures, road_delays, attacks, demand_spikes, event_log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Seed,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.Ticks, r.RoadClosures, r.RoadDelays, r.Attacks, r.DemandSpikes, r.EventLogPath,
	)
	return err
}

func (x *Index) RecordGroup(r GroupRow) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO group_results
		(run_id, group_id, requests, deliveries,
		 received_food, received_water, received_medicine,
		 final_food, final_water, final_medicine)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.GroupID, r.Requests, r.Deliveries,
		r.Received.Food, r.Received.Water, r.Received.Medicine,
		r.FinalStock.Food, r.FinalStock.Water, r.FinalStock.Medicine,
	)
	return err
}

func (x *Index) RecordCenter(r CenterRow) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO center_results
		(run_id, center_id, requests, dispatches, pending_at_end,
		 shipped_food, shipped_water, shipped_medicine,
		 final_food, final_water, final_medicine)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.CenterID, r.Requests, r.Dispatches, r.PendingAtEnd,
		r.Shipped.Food, r.Shipped.Water, r.Shipped.Medicine,
		r.FinalInventory.Food, r.FinalInventory.Water, r.FinalInventory.Medicine,
	)
	return err
}

func (x *Index) RecordVehicle(r VehicleRow) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO vehicle_results
		(run_id, vehicle_id, deliveries, attacks,
		 delivered_food, delivered_water, delivered_medicine,
		 final_status, final_location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.VehicleID, r.Deliveries, r.Attacks,
		r.Delivered.Food, r.Delivered.Water, r.Delivered.Medicine,
		r.FinalStatus, r.FinalLocation,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (x *Index) RecentRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := x.db.Query(
		`SELECT run_id, seed, started_at, finished_at, ticks,
		        road_closures, road_delays, attacks, demand_spikes, event_log_path
		 FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.Seed, &started, &finished, &r.Ticks,
			&r.RoadClosures, &r.RoadDelays, &r.Attacks, &r.DemandSpikes, &r.EventLogPath); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GroupResults returns the per-group outcome rows for one run.
func (x *Index) GroupResults(runID string) ([]GroupRow, error) {
	rows, err := x.db.Query(
		`SELECT run_id, group_id, requests, deliveries,
		        received_food, received_water, received_medicine,
		        final_food, final_water, final_medicine
		 FROM group_results WHERE run_id = ? ORDER BY group_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var r GroupRow
		if err := rows.Scan(&r.RunID, &r.GroupID, &r.Requests, &r.Deliveries,
			&r.Received.Food, &r.Received.Water, &r.Received.Medicine,
			&r.FinalStock.Food, &r.FinalStock.Water, &r.FinalStock.Medicine); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
