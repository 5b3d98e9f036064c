package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/config"
	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/research"
	"github.com/sells-group/property-research/internal/store"
	"github.com/sells-group/property-research/internal/worker"
)

// stubWorker returns a fixed payload after an optional delay.
type stubWorker struct {
	name     string
	category model.Category
	critical bool
	delay    time.Duration
	timeout  time.Duration
	payload  model.Payload
	err      error
}

func (s *stubWorker) Name() string             { return s.name }
func (s *stubWorker) Category() model.Category { return s.category }
func (s *stubWorker) Set() worker.Set          { return worker.Standard }
func (s *stubWorker) Label() string            { return "Checking " + s.name }
func (s *stubWorker) Timeout() time.Duration   { return s.timeout }
func (s *stubWorker) Critical() bool           { return s.critical }

func (s *stubWorker) Run(ctx context.Context, _ worker.Request) (model.Payload, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.payload, s.err
}

func stubRegistry(t *testing.T, workers ...*stubWorker) *worker.Registry {
	t.Helper()
	if len(workers) == 0 {
		workers = []*stubWorker{
			{name: "parcel", category: model.CategoryParcel, critical: true,
				payload: &model.ParcelFacts{Beds: 3, Baths: 2, Sqft: 1800}},
			{name: "avm", category: model.CategoryValuation, critical: true,
				payload: &model.Valuation{Source: "avm", Primary: true, Estimate: 450000}},
			{name: "flood", category: model.CategoryRisk,
				payload: &model.FloodRisk{Zone: "AE", InsuranceRequired: true}},
		}
	}
	reg := worker.NewRegistry()
	for _, w := range workers {
		require.NoError(t, reg.Register(w))
	}
	return reg
}

func tempStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cmd.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func testOrchestrator(t *testing.T, st store.Store, reg *worker.Registry) *research.Orchestrator {
	t.Helper()
	o := research.New(st, reg, research.Config{Concurrency: 2})
	t.Cleanup(o.Wait)
	return o
}

// sqliteConfig returns a config pointing at a fresh SQLite file.
func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "research.db")},
		Log:   config.LogConfig{Level: "error", Format: "json"},
		Research: config.ResearchConfig{
			Concurrency:              2,
			DefaultWorkerTimeoutSecs: 1,
			WaitTimeoutSecs:          5,
		},
		Server: config.ServerConfig{Port: 8080},
	}
}
