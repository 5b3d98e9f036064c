package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-research/internal/config"
	"github.com/sells-group/property-research/internal/metrics"
	"github.com/sells-group/property-research/internal/model"
)

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := sqliteConfig(t)
	c.Store.Driver = "mysql"
	_, err := initStore(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitEnv_ValidationFails(t *testing.T) {
	c := sqliteConfig(t)
	c.Research.Concurrency = 0
	_, err := initEnv(context.Background(), c, "run", nil)
	assert.ErrorContains(t, err, "research.concurrency")
}

func TestInitEnv_SQLite(t *testing.T) {
	ctx := context.Background()
	c := sqliteConfig(t)
	reg := prometheus.NewRegistry()

	env, err := initEnv(ctx, c, "serve", reg)
	require.NoError(t, err)
	assert.Len(t, mustSelect(t, env), 12)
	assert.Equal(t, 20, env.Registry.Len())
	assert.NotNil(t, env.Metrics)
	assert.Nil(t, env.cache)
	require.NoError(t, env.Close(ctx))

	// The research collectors already live on reg.
	assert.Panics(t, func() { metrics.New(reg) })
}

func mustSelect(t *testing.T, env *appEnv) []string {
	t.Helper()
	ws, err := env.Registry.Select(false)
	require.NoError(t, err)
	names := make([]string, 0, len(ws))
	for _, w := range ws {
		names = append(names, w.Name())
	}
	return names
}

func TestBuildRegistry_Catalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  workers:
    noise:
      disabled: true
    comps_sales:
      timeout_secs: 45
      label: Pulling recent sales
`), 0o644))

	c := sqliteConfig(t)
	c.Catalog.Path = path
	reg, breakers, err := buildRegistry(c)
	require.NoError(t, err)
	require.NotNil(t, breakers)

	assert.Equal(t, 19, reg.Len())
	_, err = reg.Get("noise")
	assert.ErrorIs(t, err, model.ErrUnknownWorker)
	w, err := reg.Get("comps_sales")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, w.Timeout())
	assert.Equal(t, "Pulling recent sales", w.Label())

	c.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = buildRegistry(c)
	assert.Error(t, err)
}

func TestResearchConfig(t *testing.T) {
	c := &config.Config{Research: config.ResearchConfig{
		Concurrency:              6,
		DefaultWorkerTimeoutSecs: 15,
		WorkerTimeouts:           map[string]int{"avm": 40},
		WaitTimeoutSecs:          90,
		CeilingGraceSecs:         5,
		PortfolioLimit:           25,
	}}
	rc := researchConfig(c)
	assert.Equal(t, 6, rc.Concurrency)
	assert.Equal(t, 15*time.Second, rc.DefaultWorkerTimeout)
	assert.Equal(t, 40*time.Second, rc.WorkerTimeouts["avm"])
	assert.Equal(t, 90*time.Second, rc.WaitTimeout)
	assert.Equal(t, 5*time.Second, rc.CeilingGrace)
	assert.Equal(t, 25, rc.PortfolioLimit)
}
