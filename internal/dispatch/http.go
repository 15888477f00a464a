// Package dispatch performs outbound HTTP requests on behalf of SDK-bound
// operations: credential injection, deadline propagation, and response
// decoding (§4.7).
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/codemcp-dev/codemcp/internal/apperrors"
	"github.com/codemcp-dev/codemcp/internal/creds"
	"github.com/codemcp-dev/codemcp/internal/manifest"
)

// Request is one fully-constructed upstream call.
type Request struct {
	Operation string
	Method    string
	URL       string
	Headers   map[string]string // custom header parameters, applied after auth
	Body      []byte            // nil if no body
	Auth      manifest.AuthScheme
	Cred      creds.Credential
	Timeout   time.Duration // remaining script deadline (§4.7)
}

// Response is the result of one dispatch, already classified as JSON or
// opaque text (§4.7).
type Response struct {
	Status   int
	JSON     interface{} // set when the response Content-Type is application/json
	IsJSON   bool
	BodyText string // set when not JSON
}

// Dispatcher performs upstream HTTP calls with a single pooled client
// reused across every execution in the server's process (§4.7, §5).
type Dispatcher struct {
	client *http.Client
}

// New builds a Dispatcher with a pooled client. No client-level timeout is
// set: each request's timeout is bound per-call to the remaining script
// deadline instead.
func New() *Dispatcher {
	return &Dispatcher{client: &http.Client{}}
}

// Do performs one upstream request, applying credentials before custom
// headers, capping the request at the remaining script deadline, and never
// retrying (§4.7).
func (d *Dispatcher) Do(ctx context.Context, req Request) (Response, error) {
	auth := req.Auth
	if req.Cred.Kind == "" || req.Cred.Kind == "none" {
		// No credential resolved: send the request without auth material.
		auth = manifest.AuthScheme{Kind: "none"}
	}
	finalURL, extraHeader, err := applyAuth(req.URL, auth, req.Cred)
	if err != nil {
		return Response{}, &apperrors.Network{Operation: req.Operation, Err: err}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, finalURL, bodyReader)
	if err != nil {
		return Response{}, &apperrors.Network{Operation: req.Operation, Err: err}
	}

	if extraHeader != "" {
		httpReq.Header.Set("Authorization", extraHeader)
	}
	if auth.Kind == "api_key" && auth.KeyIn == "header" {
		httpReq.Header.Set(auth.KeyName, req.Cred.Token)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return Response{}, &apperrors.Network{Operation: req.Operation, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &apperrors.Network{Operation: req.Operation, Err: err}
	}

	out := Response{Status: resp.StatusCode}
	contentType := resp.Header.Get("Content-Type")
	if isJSONContentType(contentType) {
		if len(data) == 0 {
			out.IsJSON = true
			out.JSON = nil
		} else {
			var parsed interface{}
			if err := json.Unmarshal(data, &parsed); err != nil {
				return Response{}, &apperrors.Decoding{Operation: req.Operation, Err: err}
			}
			out.IsJSON = true
			out.JSON = parsed
		}
	} else {
		out.BodyText = string(data)
	}

	return out, nil
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	for i := 0; i < len(ct); i++ {
		if ct[i] == ';' {
			ct = ct[:i]
			break
		}
	}
	return ct == "application/json" || ct == "text/json"
}

// applyAuth returns the final request URL (with an api-key query parameter
// appended if the scheme calls for it) and an Authorization header value to
// set, if any (§4.7).
func applyAuth(rawURL string, auth manifest.AuthScheme, cred creds.Credential) (string, string, error) {
	switch auth.Kind {
	case "bearer":
		return rawURL, "Bearer " + cred.Token, nil
	case "basic":
		encoded := base64.StdEncoding.EncodeToString([]byte(cred.User + ":" + cred.Pass))
		return rawURL, "Basic " + encoded, nil
	case "api_key":
		if auth.KeyIn == "query" {
			u, err := url.Parse(rawURL)
			if err != nil {
				return "", "", err
			}
			q := u.Query()
			q.Set(auth.KeyName, cred.Token)
			u.RawQuery = q.Encode()
			return u.String(), "", nil
		}
		return rawURL, "", nil
	default:
		return rawURL, "", nil
	}
}
