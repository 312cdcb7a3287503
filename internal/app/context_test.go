package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/standards"
)

func TestOpen_SeedsBuiltinStandardsOnce(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ws, err := Open(ctx, dir, "tester")
	require.NoError(t, err)
	n, err := ws.Engine.Repo.CountStandards(ctx)
	require.NoError(t, err)
	assert.Equal(t, standards.Default().Len(), n)
	require.NoError(t, ws.Close())

	ws, err = Open(ctx, dir, "tester")
	require.NoError(t, err)
	defer ws.Close()
	written, err := EnsureStandards(ctx, dir, ws.Engine, "tester")
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestOpen_UsesConfiguredCatalog(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("standards:\n  catalog: limits.jsonc\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "limits.jsonc"), []byte(`{
  "standards": [
    // tighter site limit
    {"measurement_type": "rcd_trip_time", "max_acceptable": 40, "standard_reference": "Site RCD rule"},
  ]
}`), 0o644))

	ws, err := Open(ctx, dir, "tester")
	require.NoError(t, err)
	defer ws.Close()
	list, err := ws.Engine.ListStandards(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.MeasurementRCDTripTime, list[0].MeasurementType)
}

func TestCatalog_MissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Standards.Catalog = "nope.jsonc"
	_, _, err := Catalog(t.TempDir(), cfg)
	assert.ErrorContains(t, err, "standards catalog")
}
