package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/sony/gobreaker"
)

// HTTPEvaluator evaluates decisions against a remote OPA (or OPA-compatible)
// server over REST, grounded in the teacher gateway's policy/opa.go client.
// Unlike the teacher's client, calls are wrapped in a circuit breaker so a
// flapping remote server degrades to fast fail-closed denials instead of
// hanging every request on its HTTP timeout.
type HTTPEvaluator struct {
	mu       sync.RWMutex
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	policyID string
	version  string
}

// NewHTTPEvaluator points the evaluator at a remote decision endpoint
// (e.g. "http://opa-sidecar:8181/v1/data/archimedes/decision").
func NewHTTPEvaluator(baseURL string, client *http.Client) *HTTPEvaluator {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	settings := gobreaker.Settings{
		Name:        "archimedes-authz-remote",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPEvaluator{
		baseURL: baseURL,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (e *HTTPEvaluator) Reload(_ context.Context, bundle *Bundle) error {
	e.mu.Lock()
	e.policyID = "archimedes-remote"
	e.version = bundle.Manifest.Revision
	e.mu.Unlock()
	return nil
}

type remoteRequestBody struct {
	Input Input `json:"input"`
}

type remoteResponseBody struct {
	Result struct {
		Allow  bool   `json:"allow"`
		Reason string `json:"reason"`
	} `json:"result"`
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	start := time.Now()

	raw, err := e.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(remoteRequestBody{Input: input})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, archerr.New(archerr.KindAuthorizationDenied, "remote policy server returned non-200")
		}
		var parsed remoteResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	})

	elapsed := time.Since(start)
	if err != nil {
		return Decision{}, archerr.Wrap(archerr.KindAuthorizationDenied, err, "remote policy evaluation failed")
	}

	parsed := raw.(remoteResponseBody)
	e.mu.RLock()
	policyID, version := e.policyID, e.version
	e.mu.RUnlock()

	return Decision{
		Allowed: parsed.Result.Allow, Reason: parsed.Result.Reason,
		PolicyID: policyID, PolicyVersion: version, EvaluationNanos: elapsed.Nanoseconds(),
	}, nil
}
