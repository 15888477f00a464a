package sandbox

import (
	"encoding/json"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
)

// ToGoValue converts a Lua value into a plain Go value (nil, bool, float64,
// string, []interface{}, map[string]interface{}) suitable for
// encoding/json or for returning as an ExecutionResult.
func ToGoValue(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return v.String()
	}
}

// tableToGo converts an LTable to a []interface{} if it is a dense
// 1..n integer-keyed array, otherwise to a map[string]interface{}.
func tableToGo(t *lua.LTable) interface{} {
	n := t.Len()
	isArray := n > 0
	if isArray {
		for i := 1; i <= n; i++ {
			if t.RawGetInt(i) == lua.LNil {
				isArray = false
				break
			}
		}
	}
	// An empty table with no string keys either is an empty array by
	// convention (json.encode({}) -> "[]").
	hasStringKeys := false
	t.ForEach(func(k, _ lua.LValue) {
		if _, ok := k.(lua.LString); ok {
			hasStringKeys = true
		}
	})

	if isArray && !hasStringKeys {
		out := make([]interface{}, n)
		for i := 1; i <= n; i++ {
			out[i-1] = ToGoValue(t.RawGetInt(i))
		}
		return out
	}
	if n == 0 && !hasStringKeys {
		return []interface{}{}
	}

	out := map[string]interface{}{}
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = ToGoValue(v)
	})
	return out
}

// ToLuaValue converts a plain Go value (as produced by encoding/json.Unmarshal
// into interface{}) into a Lua value.
func ToLuaValue(L *lua.LState, v interface{}) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case float64:
		return lua.LNumber(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case []interface{}:
		tbl := L.NewTable()
		for i, elem := range t {
			tbl.RawSetInt(i+1, ToLuaValue(L, elem))
		}
		return tbl
	case map[string]interface{}:
		tbl := L.NewTable()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, ToLuaValue(L, t[k]))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// jsonEncode implements json.encode(value) over the standard JSON grammar
// (§4.5).
func jsonEncode(L *lua.LState) int {
	val := L.CheckAny(1)
	goVal := ToGoValue(val)
	out, err := json.Marshal(goVal)
	if err != nil {
		L.RaiseError("json.encode: %v", err)
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

// jsonDecode implements json.decode(text) (§4.5).
func jsonDecode(L *lua.LState) int {
	text := L.CheckString(1)
	var goVal interface{}
	if err := json.Unmarshal([]byte(text), &goVal); err != nil {
		L.RaiseError("json.decode: %v", err)
		return 0
	}
	L.Push(ToLuaValue(L, goVal))
	return 1
}

// DecodeJSONResponse decodes an upstream HTTP JSON body into a Lua value,
// used by the SDK binding layer (§4.6 step 8). An empty body decodes to nil.
func DecodeJSONResponse(L *lua.LState, body []byte, opName string) (lua.LValue, error) {
	if len(body) == 0 {
		return lua.LNil, nil
	}
	var goVal interface{}
	if err := json.Unmarshal(body, &goVal); err != nil {
		return nil, &apperrors.Decoding{Operation: opName, Err: err}
	}
	return ToLuaValue(L, goVal), nil
}
