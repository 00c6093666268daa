package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/palworld-lens/internal/app"
	"github.com/cory-johannsen/palworld-lens/internal/config"
	"github.com/cory-johannsen/palworld-lens/internal/gamedata"
	"github.com/cory-johannsen/palworld-lens/internal/loader"
	"github.com/cory-johannsen/palworld-lens/internal/schema"
	"github.com/cory-johannsen/palworld-lens/internal/testutil"
)

const (
	ashUID  = "11111111-0000-0000-0000-000000000001"
	ashInst = "aaaaaaaa-0000-0000-0000-000000000001"
	catInst = "bbbbbbbb-0000-0000-0000-000000000001"
)

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	root := testutil.RepoRoot(t)
	return config.Config{
		Save: config.SaveConfig{PlayerWorkers: 2},
		Schema: config.SchemaConfig{
			Dir:              filepath.Join(root, "schemas"),
			ScriptsDir:       filepath.Join(root, "scripts", "transforms"),
			InstructionLimit: 100000,
		},
		Gamedata: config.GamedataConfig{Source: config.GamedataFiles, Dir: filepath.Join(root, "gamedata")},
	}
}

func TestBuild_FromFiles(t *testing.T) {
	p, err := app.Build(context.Background(), zaptest.NewLogger(t), fileConfig(t))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	assert.Nil(t, p.Pool)
	assert.NotZero(t, p.Tables.Counts()["species"])
	assert.NoError(t, p.Schemas.Require(schema.KindCharacter, schema.KindPlayer, schema.KindPal, schema.KindGuild))
	assert.True(t, p.Scripts.Has("nickname"))
	assert.True(t, p.Scripts.Has("guild_players"))
}

func TestBuild_MissingSchemaDir(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Schema.Dir = filepath.Join(t.TempDir(), "nope")
	_, err := app.Build(context.Background(), zaptest.NewLogger(t), cfg)
	assert.Error(t, err)
}

func TestBuild_MissingGamedataDir(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Gamedata.Dir = filepath.Join(t.TempDir(), "nope")
	_, err := app.Build(context.Background(), zaptest.NewLogger(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading lookup tables")
}

func TestBuild_BrokenScript(t *testing.T) {
	cfg := fileConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644))
	cfg.Schema.ScriptsDir = dir
	_, err := app.Build(context.Background(), zaptest.NewLogger(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading transform scripts")
}

func TestDecodeOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := app.DecodeOptions(config.SaveConfig{})
		require.NoError(t, err)
		assert.False(t, opts.HintFallback)
		assert.NotZero(t, opts.Hints.Len())
	})

	t.Run("extra hints layered over built-ins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hints.yaml")
		require.NoError(t, os.WriteFile(path, []byte("hints:\n  .worldSaveData.ModdedMap.Key: Guid\n"), 0o644))
		builtin, err := app.DecodeOptions(config.SaveConfig{})
		require.NoError(t, err)

		opts, err := app.DecodeOptions(config.SaveConfig{HintsFile: path, HintFallback: true})
		require.NoError(t, err)
		assert.True(t, opts.HintFallback)
		assert.Equal(t, builtin.Hints.Len()+1, opts.Hints.Len())
		got, ok := opts.Hints.Lookup(".worldSaveData.ModdedMap.Key")
		require.True(t, ok)
		assert.Equal(t, "Guid", got)
	})

	t.Run("unreadable hints file", func(t *testing.T) {
		_, err := app.DecodeOptions(config.SaveConfig{HintsFile: filepath.Join(t.TempDir(), "missing.yaml")})
		assert.Error(t, err)
	})
}

func TestPipeline_LoadsSave(t *testing.T) {
	cfg := fileConfig(t)
	p, err := app.Build(context.Background(), zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	ldr, err := p.NewLoader(zaptest.NewLogger(t), cfg.Save)
	require.NoError(t, err)

	sd := testutil.NewSaveDir(t, testutil.World{
		Players: []testutil.PlayerSpec{{UID: ashUID, InstanceID: ashInst, Name: "Ash", Level: 5}},
		Pals:    []testutil.PalSpec{{InstanceID: catInst, CharacterID: "PinkCat", OwnerUID: ashUID, Level: 3}},
	}, "Pipeline World")

	snap, err := ldr.Load(context.Background(), sd.Dir)
	require.NoError(t, err)
	assert.Equal(t, "Pipeline World", snap.WorldName)
	require.Len(t, snap.Pals, 1)
	assert.Equal(t, "Ash", snap.Pals[0].OwnerName)
	assert.Equal(t, loader.StateLoaded, ldr.Snapshot().Status.State)
}

func TestBuild_FromPostgres(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	ctx := context.Background()

	want, err := gamedata.LoadDir(filepath.Join(testutil.RepoRoot(t), "gamedata"))
	require.NoError(t, err)
	require.NoError(t, pc.Pool.Gamedata().Replace(ctx, want))

	cfg := fileConfig(t)
	cfg.Gamedata = config.GamedataConfig{Source: config.GamedataPostgres}
	cfg.Database = pc.Config

	p, err := app.Build(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	require.NotNil(t, p.Pool)
	assert.Equal(t, want.Counts(), p.Tables.Counts())
}
