package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/palworld-lens/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core))
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func TestManager_Load_CallsFunction(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "transforms.lua", `
		function double(x)
			return x * 2
		end
	`)
	require.NoError(t, mgr.Load(dir, 0))
	assert.True(t, mgr.Has("double"))

	ret, err := mgr.Call("double", int64(21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret)
}

func TestManager_Call_MissingFunction(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "empty.lua", `-- nothing`), 0))
	assert.False(t, mgr.Has("nope"))

	_, err := mgr.Call("nope", nil)
	assert.ErrorIs(t, err, scripting.ErrNoFunction)
}

func TestManager_Call_BeforeLoad(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.False(t, mgr.Has("anything"))
	_, err := mgr.Call("anything", nil)
	assert.ErrorIs(t, err, scripting.ErrNoFunction)
}

func TestManager_Call_RuntimeErrorReturnedAndLogged(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "bad.lua", `
		function boom(x)
			error("kaboom")
		end
	`), 0))

	_, err := mgr.Call("boom", "x")
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestManager_Load_SyntaxError(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Load(writeTempLua(t, "broken.lua", `function (`), 0)
	assert.Error(t, err)
}

func TestManager_Load_MissingDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.Load(filepath.Join(t.TempDir(), "missing"), 0))
}

func TestManager_Call_BudgetResetsPerCall(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "loop.lua", `
		function spin(n)
			local s = 0
			for i = 1, n do s = s + i end
			return s
		end
	`), 200))

	// Each call fits the budget on its own; together they would exceed it.
	for i := 0; i < 20; i++ {
		ret, err := mgr.Call("spin", int64(10))
		require.NoError(t, err)
		assert.Equal(t, int64(55), ret)
	}
	_, err := mgr.Call("spin", int64(100000))
	assert.Error(t, err)
}

func TestManager_Call_TableConversion(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "tables.lua", `
		function names(list)
			local out = {}
			for _, p in ipairs(list) do
				table.insert(out, { uid = p.uid, name = p.info.name })
			end
			return out
		end
	`), 0))

	arg := []any{
		map[string]any{"uid": "u1", "info": map[string]any{"name": "Ash"}},
		map[string]any{"uid": "u2", "info": map[string]any{"name": "Misty"}},
	}
	ret, err := mgr.Call("names", arg)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"uid": "u1", "name": "Ash"},
		map[string]any{"uid": "u2", "name": "Misty"},
	}, ret)
}

func TestManager_Call_ConcurrentSafe(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "inc.lua", `
		function inc(x) return x + 1 end
	`), 0))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ret, err := mgr.Call("inc", int64(i))
			assert.NoError(t, err)
			assert.Equal(t, int64(i+1), ret)
		}(i)
	}
	wg.Wait()
}

func TestProperty_FromLuaToLuaScalars(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "id.lua", `function id(x) return x end`), 0))
	rapid.Check(t, func(rt *rapid.T) {
		var in any
		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			in = rapid.StringMatching(`[a-z]{0,12}`).Draw(rt, "s")
		case 1:
			in = rapid.Int64Range(-1<<40, 1<<40).Draw(rt, "i")
		default:
			in = rapid.Bool().Draw(rt, "b")
		}
		out, err := mgr.Call("id", in)
		if err != nil {
			rt.Fatalf("call: %v", err)
		}
		if out != in {
			rt.Fatalf("want %v (%T), got %v (%T)", in, in, out, out)
		}
	})
}
