package luaregistry

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/Shopify/go-lua"

	"github.com/AntonStoeckl/metamodel-go/metamodel"
)

// builtinFields are the mm fields every script can rely on.
var builtinFields = map[string]func(context.Context, *metamodel.MetaModel) lua.Function{
	"model_name": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			state.PushString(mm.ModelName())
			return 1
		}
	},
	"description": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			state.PushString(mm.Description())
			return 1
		}
	},
	"set_description": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			mm.SetDescription(lua.CheckString(state, 1))
			return 0
		}
	},
	"solve_count": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			state.PushInteger(mm.SolveCount())
			return 1
		}
	},
	"increment_solve_count": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(*lua.State) int {
			mm.IncrementSolveCount()
			return 0
		}
	},
	"optimal": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			state.PushBoolean(mm.Optimal())
			return 1
		}
	},
	"set_optimal": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			mm.SetOptimal(state.ToBoolean(1))
			return 0
		}
	},
	"replaying": func(_ context.Context, mm *metamodel.MetaModel) lua.Function {
		return func(state *lua.State) int {
			state.PushBoolean(mm.Replaying())
			return 1
		}
	},
}

// pushHostTable pushes the mm table for one operation call.
func (s *script) pushHostTable(ctx context.Context, mm *metamodel.MetaModel) {
	state := s.state
	state.NewTable()

	for name, build := range builtinFields {
		state.PushGoFunction(build(ctx, mm))
		state.SetField(-2, name)
	}

	for name, fn := range s.hostFunctions {
		state.PushGoFunction(hostFunction(ctx, mm, fn))
		state.SetField(-2, name)
	}
}

func hostFunction(ctx context.Context, mm *metamodel.MetaModel, fn HostFunction) lua.Function {
	return func(state *lua.State) int {
		raw := make([]any, 0, state.Top())
		for i := 1; i <= state.Top(); i++ {
			raw = append(raw, toGo(state, i))
		}

		args, err := metamodel.CanonicalArgs(raw)
		if err != nil {
			lua.Errorf(state, "%s", err.Error())
			return 0
		}

		result, err := fn(ctx, mm, args)
		if err != nil {
			lua.Errorf(state, "%s", err.Error())
			return 0
		}

		if result == nil {
			return 0
		}

		pushValue(state, result)

		return 1
	}
}

// pushValue pushes a canonical Go value as a Lua value; sequences become 1-based tables.
func pushValue(state *lua.State, v any) {
	switch value := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(value)
	case string:
		state.PushString(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			state.PushString(value.String())
			return
		}
		state.PushNumber(f)
	case float64:
		state.PushNumber(value)
	case int:
		state.PushInteger(value)
	case []any:
		state.NewTable()
		for i, item := range value {
			pushValue(state, item)
			state.RawSetInt(-2, i+1)
		}
	case map[string]any:
		state.NewTable()
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(state, value[k])
			state.SetField(-2, k)
		}
	default:
		canonical, err := metamodel.CanonicalValue(value)
		if err != nil {
			state.PushNil()
			return
		}
		pushValue(state, canonical)
	}
}

// toGo converts the Lua value at index; tables with keys 1..n become sequences, others string-keyed maps.
func toGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, toGo(state, -1))
			state.Pop(1)
		}

		return result
	}

	output := map[string]any{}
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = toGo(state, -1)
		}
		state.Pop(1)
	}

	return output
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int64(value)
	}

	return value
}
