package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrNoFunction is returned by Call when the named global is not a function.
var ErrNoFunction = errors.New("lua function not defined")

// Manager owns one sandboxed LState holding every transform script of a
// directory and dispatches calls into it.
//
// Manager is safe for concurrent Call; calls are serialized because an LState
// is single-threaded.
type Manager struct {
	mu     sync.Mutex
	L      *lua.LState
	cancel func()
	limit  int
	logger *zap.Logger

	// Lookup resolves lens.lookup(table, key). nil = always returns nil.
	Lookup func(table, key string) (string, bool)
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Manager; Has reports false for every name.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Load creates a sandboxed VM, registers the lens.* module, then executes
// every *.lua file in scriptDir in lexicographic order. A previously loaded
// VM is replaced.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: The VM is registered; returns error on Lua load failure.
func (m *Manager) Load(scriptDir string, instLimit int) error {
	L := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		ResetBudget(L, instLimit)
		if err := L.DoFile(path); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	if m.L != nil {
		if m.cancel != nil {
			m.cancel()
		}
		m.L.Close()
	}
	m.L = L
	m.limit = instLimit
	m.mu.Unlock()

	m.logger.Info("scripting: transform scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// Has reports whether fn names a global Lua function in the loaded VM.
func (m *Manager) Has(fn string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return false
	}
	_, ok := m.L.GetGlobal(fn).(*lua.LFunction)
	return ok
}

// Call invokes the global Lua function fn with arg converted to a Lua value
// and returns its first result converted back to Go. Each call gets a fresh
// instruction budget. Lua runtime errors are logged at Debug and returned.
//
// Precondition: arg must be built from nil, bool, numbers, string, []byte,
// []any and map[string]any.
// Postcondition: Returns the converted result, or an error.
func (m *Manager) Call(fn string, arg any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return nil, fmt.Errorf("scripting: %w: %s (no scripts loaded)", ErrNoFunction, fn)
	}
	f, ok := m.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("scripting: %w: %s", ErrNoFunction, fn)
	}

	m.cancel = ResetBudget(m.L, m.limit)
	if err := m.L.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, ToLua(m.L, arg)); err != nil {
		m.logger.Debug("scripting: Lua runtime error",
			zap.String("function", fn),
			zap.Error(err),
		)
		return nil, fmt.Errorf("scripting: calling %s: %w", fn, err)
	}

	ret := m.L.Get(-1)
	m.L.Pop(1)
	return FromLua(ret), nil
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}
