package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/palworld-lens/internal/schema"
	"github.com/cory-johannsen/palworld-lens/internal/scripting"
	"github.com/cory-johannsen/palworld-lens/internal/testutil"
)

// shippedTransforms loads the repository's transform scripts.
func shippedTransforms(t *testing.T) *schema.Transforms {
	t.Helper()
	mgr := scripting.NewManager(zap.NewNop())
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Load(filepath.Join(testutil.RepoRoot(t), "scripts", "transforms"), 0))
	return schema.NewTransforms(mgr)
}

func shippedSet(t *testing.T) *schema.Set {
	t.Helper()
	set, err := schema.Load(filepath.Join(testutil.RepoRoot(t), "schemas"), shippedTransforms(t))
	require.NoError(t, err)
	return set
}

func writeSchema(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ShippedSchemas(t *testing.T) {
	set := shippedSet(t)
	assert.Equal(t, []string{
		schema.KindBase, schema.KindCharacter, schema.KindContainer, schema.KindGuild,
		schema.KindMapObject, schema.KindPal, schema.KindPlayer, schema.KindPlayerSave, schema.KindWorldMeta,
	}, set.Kinds())
	require.NoError(t, set.Require(schema.KindCharacter, schema.KindPlayer, schema.KindPal, schema.KindGuild))

	es, ok := set.Schema(schema.KindCharacter)
	require.True(t, ok)
	require.NotNil(t, es.Collection)
	assert.Equal(t, "worldSaveData.CharacterSaveParameterMap", es.Collection.Source)
}

func TestSet_RequireNamesMissingKinds(t *testing.T) {
	set := shippedSet(t)
	err := set.Require(schema.KindPal, "dungeon", "raid")
	var se *schema.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Problems, 2)
	assert.Contains(t, err.Error(), `"dungeon"`)
}

func TestLoadFile_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty kind", "fields: [{target: a, source: A}]", "kind must not be empty"},
		{"no fields", "kind: k", "fields must not be empty"},
		{"empty target", "kind: k\nfields: [{source: A}]", "target must not be empty"},
		{"empty source", "kind: k\nfields: [{target: a}]", "source must not be empty"},
		{"duplicate target", "kind: k\nfields: [{target: a, source: A}, {target: a, source: B}]", "duplicate target"},
		{"unknown transform", "kind: k\nfields: [{target: a, source: A, transform: shout}]", `unknown transform "shout"`},
		{"unknown scope", "kind: k\nfields: [{target: a, source: A, scope: sideways}]", `unknown scope "sideways"`},
		{"entry without collection", "kind: k\nfields: [{target: a, source: A, scope: entry}]", "scope entry requires a collection"},
		{"empty collection source", "kind: k\ncollection: {key: K}\nfields: [{target: a, source: A}]", "collection.source must not be empty"},
		{"filter without source", "kind: k\ncollection: {source: S, filter: {equals: x}}\nfields: [{target: a, source: A}]", "collection.filter.source must not be empty"},
		{"unloaded lua", "kind: k\nfields: [{target: a, source: A, transform: 'lua:nope'}]", `lua function "nope" not loaded`},
		{"bad yaml", "kind: [", "parsing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeSchema(t, t.TempDir(), "bad.yaml", tc.body)
			_, err := schema.LoadFile(path, schema.NewTransforms(nil))
			var se *schema.SchemaError
			require.True(t, errors.As(err, &se), "want SchemaError, got %v", err)
			assert.Equal(t, path, se.File)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFile_CollectsEveryProblem(t *testing.T) {
	path := writeSchema(t, t.TempDir(), "bad.yaml", "fields: [{target: a}, {source: B, transform: shout}]")
	_, err := schema.LoadFile(path, schema.NewTransforms(nil))
	var se *schema.SchemaError
	require.True(t, errors.As(err, &se))
	assert.GreaterOrEqual(t, len(se.Problems), 4)
}

func TestLoad_DuplicateKind(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "a.yaml", "kind: k\nfields: [{target: a, source: A}]")
	writeSchema(t, dir, "b.yml", "kind: k\nfields: [{target: b, source: B}]")
	_, err := schema.Load(dir, schema.NewTransforms(nil))
	var se *schema.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "kind already defined")
}

func TestLoad_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "README.txt", "not a schema")
	_, err := schema.Load(dir, schema.NewTransforms(nil))
	var se *schema.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "no schema files")
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := schema.Load(filepath.Join(t.TempDir(), "absent"), schema.NewTransforms(nil))
	require.Error(t, err)
	var se *schema.SchemaError
	assert.False(t, errors.As(err, &se))
}

func TestTransforms_Names(t *testing.T) {
	names := schema.NewTransforms(nil).Names()
	assert.Contains(t, names, "guid")
	assert.Contains(t, names, "milli")
	assert.NotContains(t, names, "")
}
