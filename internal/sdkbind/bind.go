// Package sdkbind binds each manifest Operation to a callable in the VM
// under sdk.<op_name>, handling argument marshaling, credential resolution,
// dispatch, and result decoding (§4.6).
package sdkbind

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yosida95/uritemplate/v3"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
	"github.com/codemcp-dev/codemcp/internal/creds"
	"github.com/codemcp-dev/codemcp/internal/dispatch"
	"github.com/codemcp-dev/codemcp/internal/manifest"
	"github.com/codemcp-dev/codemcp/internal/sandbox"
)

// Runtime is the set of collaborators bound functions need at call time.
// It is scoped to a single execution: the credential map and execution are
// both execution-owned (§3, §5).
type Runtime struct {
	Manifest   *manifest.Manifest
	Dispatcher *dispatch.Dispatcher
	Execution  *sandbox.Execution
	Creds      creds.Map
}

// BindAll builds the sdk.<op_name> callable for every operation in the
// manifest.
func BindAll(rt *Runtime) map[string]lua.LGFunction {
	out := make(map[string]lua.LGFunction, len(rt.Manifest.AllOperations()))
	for _, api := range rt.Manifest.Apis {
		for _, op := range api.Operations {
			out[op.ID] = bindOperation(rt, api, op)
		}
	}
	return out
}

func bindOperation(rt *Runtime, api *manifest.Api, op *manifest.Operation) lua.LGFunction {
	visible := op.VisibleParams()
	hasParams := len(visible) > 0

	return func(L *lua.LState) int {
		argIdx := 1
		var paramsTable *lua.LTable
		if hasParams {
			paramsTable = L.OptTable(argIdx, L.NewTable())
			argIdx++
		}
		var bodyVal lua.LValue = lua.LNil
		if op.HasBody {
			bodyVal = L.OptTable(argIdx, L.NewTable())
		}

		pathValues := map[string]string{}
		query := map[string]string{}
		headers := map[string]string{}

		for _, p := range op.ParamOrder() {
			var strVal string
			var present bool

			if p.Frozen() {
				strVal = *p.FrozenValue
				present = true
			} else {
				lv := paramsTable.RawGetString(p.Name)
				if lv == lua.LNil {
					if p.Required {
						raiseCatchable(L, &apperrors.MissingParam{Operation: op.ID, Param: p.Name})
						return 0
					}
					continue
				}
				var err error
				strVal, err = coerce(op.ID, p, lv)
				if err != nil {
					raiseCatchable(L, err)
					return 0
				}
				present = true
			}

			if !present {
				continue
			}
			switch p.In {
			case manifest.ParamPath:
				pathValues[p.Name] = strVal
			case manifest.ParamQuery:
				query[p.Name] = strVal
			case manifest.ParamHeader:
				headers[p.Name] = strVal
			}
		}

		dispatchURL, err := expandPath(op.PathTemplate, api.BaseURL, pathValues, query)
		if err != nil {
			raiseCatchable(L, &apperrors.BadPathTemplate{Operation: op.ID, Path: op.PathTemplate, Reason: err.Error()})
			return 0
		}

		var bodyBytes []byte
		if op.HasBody {
			goVal := sandbox.ToGoValue(bodyVal)
			b, err := json.Marshal(goVal)
			if err != nil {
				raiseCatchable(L, &apperrors.BadParam{Operation: op.ID, Param: "body", Reason: err.Error()})
				return 0
			}
			bodyBytes = b
		}

		if err := rt.Execution.ReserveAPICall(); err != nil {
			// Uncatchable: unwind immediately, the execution is already
			// marked aborted.
			raiseCatchable(L, err)
			return 0
		}

		cred := rt.Creds.Get(api.Slug)
		req := dispatch.Request{
			Operation: op.ID,
			Method:    op.Method,
			URL:       dispatchURL,
			Headers:   headers,
			Body:      bodyBytes,
			Auth:      api.Auth,
			Cred:      cred,
			Timeout:   rt.Execution.RemainingDeadline(),
		}

		resp, err := rt.Dispatcher.Do(context.Background(), req)
		if err != nil {
			raiseCatchable(L, err)
			return 0
		}

		result := resultTable(L, resp)
		if resp.Status < 200 || resp.Status > 299 {
			raiseCatchable(L, result)
			return 0
		}

		if resp.IsJSON {
			L.Push(sandbox.ToLuaValue(L, resp.JSON))
		} else {
			L.Push(result)
		}
		return 1
	}
}

// resultTable renders a dispatch.Response as the table shape the script
// sees on a non-2xx status or a non-JSON body: {status, body_text} or
// {status, body} (§4.7, §9 open question resolution recorded in DESIGN.md).
func resultTable(L *lua.LState, resp dispatch.Response) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "status", lua.LNumber(resp.Status))
	if resp.IsJSON {
		L.SetField(tbl, "body", sandbox.ToLuaValue(L, resp.JSON))
	} else {
		L.SetField(tbl, "body_text", lua.LString(resp.BodyText))
	}
	return tbl
}

// raiseCatchable surfaces err to the script as a Lua error value a pcall
// can inspect (§4.6 last paragraph, §7 propagation rule). Table-shaped
// errors (HTTP failures) are raised as-is; everything else becomes
// {message = err.Error()}.
func raiseCatchable(L *lua.LState, err interface{}) {
	switch v := err.(type) {
	case *lua.LTable:
		L.SetField(v, "message", lua.LString(errMessage(v)))
		L.Error(v, 1)
	case error:
		tbl := L.NewTable()
		L.SetField(tbl, "message", lua.LString(v.Error()))
		L.Error(tbl, 1)
	}
}

func errMessage(tbl *lua.LTable) string {
	status := tbl.RawGetString("status")
	return "upstream call failed with status " + status.String()
}

// coerce validates and stringifies a parameter value per §4.6 step 3-4:
// integers/numbers accept VM numbers, strings accept VM strings, booleans
// accept VM booleans, enums are validated strings. Non-string values are
// stringified in canonical form.
func coerce(opID string, p *manifest.Parameter, lv lua.LValue) (string, error) {
	if len(p.Enum) > 0 {
		s, ok := lv.(lua.LString)
		if !ok {
			return "", &apperrors.BadParam{Operation: opID, Param: p.Name, Reason: "enum parameter must be a string"}
		}
		for _, allowed := range p.Enum {
			if string(s) == allowed {
				return string(s), nil
			}
		}
		return "", &apperrors.EnumViolation{Operation: opID, Param: p.Name, Value: string(s), Allowed: p.Enum}
	}

	switch p.Type.Kind {
	case "integer":
		n, ok := lv.(lua.LNumber)
		if !ok {
			return "", &apperrors.BadParam{Operation: opID, Param: p.Name, Reason: "expected an integer"}
		}
		return strconv.FormatInt(int64(n), 10), nil
	case "number":
		n, ok := lv.(lua.LNumber)
		if !ok {
			return "", &apperrors.BadParam{Operation: opID, Param: p.Name, Reason: "expected a number"}
		}
		return strconv.FormatFloat(float64(n), 'g', -1, 64), nil
	case "boolean":
		b, ok := lv.(lua.LBool)
		if !ok {
			return "", &apperrors.BadParam{Operation: opID, Param: p.Name, Reason: "expected a boolean"}
		}
		if bool(b) {
			return "true", nil
		}
		return "false", nil
	default:
		s, ok := lv.(lua.LString)
		if !ok {
			return "", &apperrors.BadParam{Operation: opID, Param: p.Name, Reason: "expected a string"}
		}
		return string(s), nil
	}
}

// expandPath substitutes path parameters via RFC 6570 template expansion
// and appends query parameters, both against the API's base URL (§4.6
// step 4).
func expandPath(pathTemplate, baseURL string, pathValues, query map[string]string) (string, error) {
	tmpl, err := uritemplate.New(pathTemplate)
	if err != nil {
		return "", err
	}
	vars := uritemplate.Values{}
	for k, v := range pathValues {
		vars.Set(k, uritemplate.String(v))
	}
	expandedPath, err := tmpl.Expand(vars)
	if err != nil {
		return "", err
	}

	full := strings.TrimSuffix(baseURL, "/") + expandedPath
	if len(query) == 0 {
		return full, nil
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
