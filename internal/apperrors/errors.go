// Package apperrors declares the typed error taxonomy shared across spec
// loading, manifest building, script execution, and transport auth.
//
// Each kind wraps enough context to render a useful message without ever
// carrying credential material. Callers use errors.As to recover a specific
// kind at a boundary (CLI, tool-call handler, HTTP transport) and decide how
// to surface it.
package apperrors

import "fmt"

// BadSpec reports a spec source that failed to parse as YAML or JSON.
type BadSpec struct {
	Path   string
	Reason string
}

func (e *BadSpec) Error() string {
	return fmt.Sprintf("bad spec %s: %s", e.Path, e.Reason)
}

// SpecFetch reports a failed network fetch of a remote spec URL.
type SpecFetch struct {
	URL string
	Err error
}

func (e *SpecFetch) Error() string {
	return fmt.Sprintf("fetch spec %s: %v", e.URL, e.Err)
}

func (e *SpecFetch) Unwrap() error { return e.Err }

// UnsupportedRef reports a $ref that points outside the document's own
// components section.
type UnsupportedRef struct {
	Ref string
}

func (e *UnsupportedRef) Error() string {
	return fmt.Sprintf("unsupported external $ref: %s", e.Ref)
}

// ReservedHeader reports a header parameter whose name collides with an
// auth header the dispatcher injects.
type ReservedHeader struct {
	Operation string
	Header    string
}

func (e *ReservedHeader) Error() string {
	return fmt.Sprintf("operation %s declares reserved header parameter %q", e.Operation, e.Header)
}

// DuplicateName reports a manifest naming collision that survived
// disambiguation (should not happen; indicates a builder bug or pathological
// input).
type DuplicateName struct {
	Kind string
	Name string
}

func (e *DuplicateName) Error() string {
	return fmt.Sprintf("duplicate %s name: %s", e.Kind, e.Name)
}

// BadPathTemplate reports a path template whose placeholders don't match its
// declared path parameters.
type BadPathTemplate struct {
	Operation string
	Path      string
	Reason    string
}

func (e *BadPathTemplate) Error() string {
	return fmt.Sprintf("operation %s has bad path template %q: %s", e.Operation, e.Path, e.Reason)
}

// MissingParam reports a required, non-frozen parameter absent from the
// script's params table.
type MissingParam struct {
	Operation string
	Param     string
}

func (e *MissingParam) Error() string {
	return fmt.Sprintf("%s: missing required parameter %q", e.Operation, e.Param)
}

// BadParam reports a parameter value of the wrong type or shape.
type BadParam struct {
	Operation string
	Param     string
	Reason    string
}

func (e *BadParam) Error() string {
	return fmt.Sprintf("%s: bad parameter %q: %s", e.Operation, e.Param, e.Reason)
}

// EnumViolation reports an enum-constrained parameter value outside the
// declared set.
type EnumViolation struct {
	Operation string
	Param     string
	Value     string
	Allowed   []string
}

func (e *EnumViolation) Error() string {
	return fmt.Sprintf("%s: parameter %q value %q not in %v", e.Operation, e.Param, e.Value, e.Allowed)
}

// ApiCallLimitExceeded reports that a script execution has hit its
// configured upstream call cap. It is uncatchable inside the script — it
// terminates the execution.
type ApiCallLimitExceeded struct {
	Limit int
}

func (e *ApiCallLimitExceeded) Error() string {
	return fmt.Sprintf("api call limit exceeded (max %d)", e.Limit)
}

// Network reports a transport-level failure dispatching an upstream request.
// Surfaced to the script as a catchable error value.
type Network struct {
	Operation string
	Err       error
}

func (e *Network) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Operation, e.Err)
}

func (e *Network) Unwrap() error { return e.Err }

// Decoding reports a failure to decode an upstream JSON response body.
// Surfaced to the script as a catchable error value.
type Decoding struct {
	Operation string
	Err       error
}

func (e *Decoding) Error() string {
	return fmt.Sprintf("%s: decode error: %v", e.Operation, e.Err)
}

func (e *Decoding) Unwrap() error { return e.Err }

// Timeout reports that a script execution exceeded its wall-clock deadline.
// Uncatchable; terminates the execution.
type Timeout struct {
	DeadlineMS int64
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("script execution timed out after %dms", e.DeadlineMS)
}

// Memory reports that a script execution exceeded its memory quota.
// Uncatchable; terminates the execution.
type Memory struct {
	LimitMB int
}

func (e *Memory) Error() string {
	return fmt.Sprintf("script execution exceeded memory limit of %dMB", e.LimitMB)
}

// ScriptError reports an uncaught Lua-level error from the script body.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

// MissingHeader reports a missing Authorization header on the HTTP
// transport.
type MissingHeader struct{}

func (e *MissingHeader) Error() string { return "missing Authorization header" }

// InvalidHeader reports a malformed Authorization header.
type InvalidHeader struct {
	Reason string
}

func (e *InvalidHeader) Error() string { return "invalid Authorization header: " + e.Reason }

// InvalidToken reports a JWT that failed signature, issuer, audience, or
// expiry validation.
type InvalidToken struct {
	Reason string
}

func (e *InvalidToken) Error() string { return "invalid token: " + e.Reason }

// JwksFetch reports a failure fetching or refreshing the JWKS document.
type JwksFetch struct {
	URI string
	Err error
}

func (e *JwksFetch) Error() string { return fmt.Sprintf("jwks fetch %s: %v", e.URI, e.Err) }

func (e *JwksFetch) Unwrap() error { return e.Err }

// InternalError wraps an unexpected failure that should never leak its
// underlying detail to a caller.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "internal error" }

func (e *InternalError) Unwrap() error { return e.Err }
