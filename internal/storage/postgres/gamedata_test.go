package postgres_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/storage/postgres"
	"github.com/cory-johannsen/palworld-lens/internal/testutil"
)

func setupRepo(t *testing.T) (*postgres.GamedataRepository, *testutil.PostgresContainer) {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return pc.Pool.Gamedata(), pc
}

func TestGamedataRepository_EmptyStore(t *testing.T) {
	repo, _ := setupRepo(t)
	tables, err := repo.LoadTables(context.Background())
	require.NoError(t, err)
	for table, n := range tables.Counts() {
		assert.Zero(t, n, table)
	}
}

func TestGamedataRepository_RoundTripsShippedTables(t *testing.T) {
	repo, pc := setupRepo(t)
	ctx := context.Background()

	want, err := gamedata.LoadDir(filepath.Join(testutil.RepoRoot(t), "gamedata"))
	require.NoError(t, err)
	require.NoError(t, repo.Replace(ctx, want))

	got, err := repo.LoadTables(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}

	// Replace is total, not a merge.
	small := gamedata.NewTables()
	small.Species["PinkCat"] = &gamedata.Species{ID: "PinkCat", Name: "Cattiva", Elements: []string{"Normal"}}
	require.NoError(t, repo.Replace(ctx, small))
	got, err = repo.LoadTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		gamedata.TableSpecies: 1, gamedata.TablePassive: 0, gamedata.TableElement: 0,
		gamedata.TableWorkType: 0, "trust_thresholds": 0, "map_points": 0,
	}, got.Counts())

	assert.NoError(t, pc.Pool.Health(ctx, time.Second))
}

func TestGamedataRepository_ImplementsSource(t *testing.T) {
	var _ gamedata.Source = (*postgres.GamedataRepository)(nil)
}

func TestProperty_ReplaceKeepsThresholdOrder(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "n")
		tables := gamedata.NewTables()
		points := int64(0)
		for level := 1; level <= n; level++ {
			points += rapid.Int64Range(1, 5000).Draw(rt, "step")
			tables.TrustThresholds = append(tables.TrustThresholds, gamedata.TrustThreshold{Level: level, Points: points})
		}
		if err := repo.Replace(ctx, tables); err != nil {
			rt.Fatalf("replace: %v", err)
		}
		got, err := repo.LoadTables(ctx)
		if err != nil {
			rt.Fatalf("load: %v", err)
		}
		if diff := cmp.Diff(tables.TrustThresholds, got.TrustThresholds, cmpopts.EquateEmpty()); diff != "" {
			rt.Fatalf("thresholds (-want +got):\n%s", diff)
		}
		for _, th := range tables.TrustThresholds {
			if got.TrustLevel(th.Points) != th.Level {
				rt.Fatalf("TrustLevel(%d) = %d, want %d", th.Points, got.TrustLevel(th.Points), th.Level)
			}
		}
	})
}
