package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sequencer/migrations"
)

// setupHistoryDB opens an in-memory database with the embedded migrations applied.
func setupHistoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return db.DB
}

func float(f float64) *float64 { return &f }

func TestRecordSampleAndGetHistory(t *testing.T) {
	repo := NewSQLiteRepository(setupHistoryDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for i, v := range []float64{20.5, 21, 21.5} {
		require.NoError(t, repo.RecordSample(ctx, Sample{
			Variable:   "room_temp",
			EventKey:   "esw.test.temp",
			Param:      "value",
			EventID:    "ev-" + string(rune('a'+i)),
			Value:      json.RawMessage("[" + jsonFloat(v) + "]"),
			Numeric:    float(v),
			Source:     "esw.test.temp",
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	samples, err := repo.GetHistory(ctx, "room_temp", 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "ev-c", samples[0].EventID, "newest first")
	assert.Equal(t, "ev-b", samples[1].EventID)
	require.NotNil(t, samples[0].Numeric)
	assert.InDelta(t, 21.5, *samples[0].Numeric, 1e-9)
	assert.JSONEq(t, "[21.5]", string(samples[0].Value))
	assert.True(t, samples[0].RecordedAt.Equal(base.Add(2*time.Second)))
	assert.Equal(t, "esw.test.temp", samples[0].EventKey)
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f) //nolint:errcheck // float64 always encodes
	return string(b)
}

func TestRecordSampleDefaults(t *testing.T) {
	repo := NewSQLiteRepository(setupHistoryDB(t))
	fixed := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, repo.RecordSample(ctx, Sample{Variable: "mode", EventKey: "esw.test.mode"}))

	samples, err := repo.GetHistory(ctx, "mode", 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Nil(t, samples[0].Numeric)
	assert.Equal(t, "null", string(samples[0].Value))
	assert.True(t, samples[0].RecordedAt.Equal(fixed))
}

func TestRecordSampleRequiresVariable(t *testing.T) {
	repo := NewSQLiteRepository(setupHistoryDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.RecordSample(ctx, Sample{}), ErrVariableRequired)
	_, err := repo.GetHistory(ctx, "", 10)
	assert.ErrorIs(t, err, ErrVariableRequired)
}

func TestGetHistoryUnknownVariable(t *testing.T) {
	repo := NewSQLiteRepository(setupHistoryDB(t))

	samples, err := repo.GetHistory(context.Background(), "nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestPruneHistory(t *testing.T) {
	repo := NewSQLiteRepository(setupHistoryDB(t))
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		require.NoError(t, repo.RecordSample(ctx, Sample{
			Variable:   "room_temp",
			EventKey:   "esw.test.temp",
			RecordedAt: now.Add(-age),
		}))
	}

	removed, err := repo.PruneHistory(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	samples, err := repo.GetHistory(ctx, "room_temp", 10)
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	_, err = repo.PruneHistory(ctx, 0)
	assert.Error(t, err)
}
