// Package funcnode is a reference func-runtime: a node whose func_id names
// an HTTP endpoint, invoked with the merged input JSON-encoded as the
// request body. Grounded on the
// teacher's internal/node/builtin/http_node.go, generalized from a single
// hardcoded endpoint to a func_id → Endpoint registry so one runtime
// instance serves every func node in a flow.
package funcnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smilemakc/dataflow/internal/domain"
	"github.com/smilemakc/dataflow/internal/runtime"
)

// Endpoint is one func_id's HTTP binding.
type Endpoint struct {
	Method  string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// HTTPClient is the minimal client surface Runtime depends on, so tests can
// substitute a fake without a real listener.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Runtime executes func nodes by looking up their func_id in a static
// Endpoint registry and issuing a JSON-body HTTP request.
type Runtime struct {
	endpoints map[string]Endpoint
	client    HTTPClient
}

// New builds a func-runtime from a func_id -> Endpoint registry. client may
// be nil, in which case a plain *http.Client is used per-call with the
// endpoint's own timeout.
func New(endpoints map[string]Endpoint, client HTTPClient) *Runtime {
	return &Runtime{endpoints: endpoints, client: client}
}

func (r *Runtime) Type() domain.RuntimeType { return domain.RuntimeFunc }

func (r *Runtime) Execute(ctx context.Context, rc runtime.RunContext) (runtime.Outcome, error) {
	funcID, _ := rc.Config["func_id"].(string)
	out, err := r.Call(ctx, funcID, rc.Input)
	return runtime.Completed(out, err), nil
}

// Call invokes funcID directly with input, outside the NodeRuntime contract.
// It is the mechanism the cycle runtime uses to drive a func_id-only cycle's
// step and continue_func_id check without spawning a child node for every
// iteration: a cycle step is
// just a func call repeated under a loop, not a suspend/resume boundary,
// unlike a nested-template cycle which has no synchronous call to make.
func (r *Runtime) Call(ctx context.Context, funcID string, input any) (any, error) {
	ep, ok := r.endpoints[funcID]
	if !ok {
		return nil, fmt.Errorf("funcnode: unknown func_id %q", funcID)
	}

	var body io.Reader
	if input != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(input); err != nil {
			return nil, fmt.Errorf("funcnode: encode input: %w", err)
		}
		body = buf
	}

	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, body)
	if err != nil {
		return nil, fmt.Errorf("funcnode: build request: %w", err)
	}
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := r.client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("funcnode: %s: %w", funcID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("funcnode: %s: status %s: %s", funcID, resp.Status, snippet)
	}

	var out any
	if resp.ContentLength != 0 {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("funcnode: decode response: %w", err)
		}
	}
	return out, nil
}
