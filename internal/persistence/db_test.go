package persistence_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridmarket/internal/engine"
	"github.com/talgya/gridmarket/internal/persistence"
)

func newTestDB(t *testing.T) *persistence.DB {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecorder_RoundTripsSeries(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	sim, err := engine.NewSimulation(engine.DefaultParams())
	require.NoError(t, err)
	rec, err := db.StartRun(sim.Params)
	require.NoError(t, err)

	// Act: flush twice mid-run, then close.
	for i := 0; i < 40; i++ {
		require.NoError(t, sim.Step())
		if (i+1)%15 == 0 {
			require.NoError(t, rec.Flush(sim.Metrics))
		}
	}
	require.NoError(t, rec.Close(sim.Metrics))

	// Assert
	txs, err := db.LoadTransactionSeries(rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, sim.Metrics.TransactionSeries(), txs)

	prices, err := db.LoadPriceSeries(rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, sim.Metrics.PriceSeries(), prices)

	means, err := db.LoadMeanPriceSeries(rec.RunID)
	require.NoError(t, err)
	want := sim.Metrics.MeanPriceSeries()
	require.Len(t, means, len(want))
	for i := range want {
		assert.Equal(t, want[i].Step, means[i].Step)
		assert.InDelta(t, want[i].Mean, means[i].Mean, 1e-9)
	}

	run, err := db.GetRun(rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, 40, run.Steps)
	assert.True(t, run.Finished)
	assert.Equal(t, 10, run.NumSellers)
	assert.Equal(t, 20, run.NumBuyers)
}

func TestRecorder_FlushIsIdempotentWithoutNewSamples(t *testing.T) {
	db := newTestDB(t)
	c := engine.NewCollector()
	c.Collect(0, 0, []engine.PricePoint{{AgentID: 0, Price: 9}})
	rec, err := db.StartRun(engine.DefaultParams())
	require.NoError(t, err)

	require.NoError(t, rec.Flush(c))
	require.NoError(t, rec.Flush(c))

	txs, err := db.LoadTransactionSeries(rec.RunID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	_, err := db.CreateRun(engine.DefaultParams())
	require.NoError(t, err)
	_, err = db.CreateRun(engine.DefaultParams())
	require.NoError(t, err)

	runs, err := db.ListRuns(10)

	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.False(t, runs[0].Finished)
}

func TestGetRun_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetRun("missing")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
	assert.ErrorIs(t, db.FinishRun("missing"), persistence.ErrRunNotFound)
}
