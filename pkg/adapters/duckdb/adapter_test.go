package duckdb

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapview/internal/testutil"
	"github.com/leapstack-labs/leapview/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg adapter.Config) *Adapter {
	t.Helper()
	a := New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_Registered(t *testing.T) {
	assert.True(t, adapter.IsRegistered("duckdb"))
}

func TestAdapter_Metadata(t *testing.T) {
	ctx := context.Background()
	a := connect(t, adapter.Config{Type: "duckdb"})

	_, err := a.DB.ExecContext(ctx, `
		CREATE TABLE events (id BIGINT NOT NULL, label VARCHAR, score DOUBLE);
		INSERT INTO events VALUES (1, 'a', 1.5), (2, NULL, 2.5), (3, 'c', NULL);
	`)
	require.NoError(t, err)

	meta, err := a.GetTableMetadata(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, "main", meta.Schema)
	assert.Equal(t, int64(3), meta.RowCount)
	require.Len(t, meta.Columns, 3)
	assert.Equal(t, "id", meta.Columns[0].Name)
	assert.Equal(t, "BIGINT", meta.Columns[0].Type)
	assert.False(t, meta.Columns[0].Nullable)
	assert.True(t, meta.Columns[1].Nullable)

	tables, err := a.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, tables)

	_, err = a.GetTableMetadata(ctx, "missing")
	require.Error(t, err)
}

func TestAdapter_Settings(t *testing.T) {
	a := connect(t, adapter.Config{
		Type:   "duckdb",
		Params: map[string]any{"settings": map[string]any{"threads": 2}},
	})

	row, err := a.QueryRow(context.Background(), "SELECT current_setting('threads')")
	require.NoError(t, err)
	var threads int64
	require.NoError(t, row.Scan(&threads))
	assert.Equal(t, int64(2), threads)
}

func TestAdapter_RejectsBadParams(t *testing.T) {
	a := New(nil)
	err := a.Connect(context.Background(), adapter.Config{
		Params: map[string]any{"settings": map[string]any{"bad name": "x"}},
	})
	require.Error(t, err)
	assert.False(t, a.IsConnected())
}
