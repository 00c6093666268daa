package scripting

import (
	"math"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the lens.* Lua table into L.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: lens global is defined in L with log, lookup, strip_prefix
// and clamp.
func (m *Manager) RegisterModules(L *lua.LState) {
	lens := L.NewTable()

	log := L.NewTable()
	for name, fn := range map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
	} {
		L.SetField(log, name, L.NewFunction(func(L *lua.LState) int {
			fn("lua: "+L.CheckString(1), zap.String("source", "script"))
			return 0
		}))
	}
	L.SetField(lens, "log", log)

	L.SetField(lens, "lookup", L.NewFunction(func(L *lua.LState) int {
		table, key := L.CheckString(1), L.CheckString(2)
		if m.Lookup == nil {
			L.Push(lua.LNil)
			return 1
		}
		v, ok := m.Lookup(table, key)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(v))
		return 1
	}))

	L.SetField(lens, "strip_prefix", L.NewFunction(func(L *lua.LState) int {
		s, prefix := L.CheckString(1), L.CheckString(2)
		L.Push(lua.LString(strings.TrimPrefix(s, prefix)))
		return 1
	}))

	L.SetField(lens, "clamp", L.NewFunction(func(L *lua.LState) int {
		v, lo, hi := float64(L.CheckNumber(1)), float64(L.CheckNumber(2)), float64(L.CheckNumber(3))
		L.Push(lua.LNumber(math.Min(math.Max(v, lo), hi)))
		return 1
	}))

	L.SetGlobal("lens", lens)
}

// ToLua converts a plain Go value into a Lua value. Unsupported types become nil.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []any:
		t := L.CreateTable(len(x), 0)
		for _, it := range x {
			t.Append(ToLua(L, it))
		}
		return t
	case []string:
		t := L.CreateTable(len(x), 0)
		for _, it := range x {
			t.Append(lua.LString(it))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, ToLua(L, x[k]))
		}
		return t
	}
	return lua.LNil
}

// FromLua converts a Lua value into a plain Go value. Integral numbers become
// int64, other numbers float64; tables with only 1..n keys become []any and
// all other tables map[string]any.
func FromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		n := x.MaxN()
		count := 0
		x.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if n > 0 && n == count {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, FromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any, count)
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = FromLua(val)
		})
		return out
	}
	return nil
}
