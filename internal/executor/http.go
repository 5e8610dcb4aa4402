package executor

import (
	"context"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
	"github.com/fluxfuzzer/fluxfuzzer/internal/requester"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// HTTPExecutor runs a persistent-mode fuzzing target reachable over HTTP:
// the mutated input becomes the request body, and the target is expected
// to report its own coverage as a JSON array in the response body, which
// this executor decodes with gjson (response headers are not read). Built on the teacher's fasthttp-based
// requester.Client (kept) and its existing x/time/rate limiter.
type HTTPExecutor struct {
	client      *requester.Client
	limiter     *rate.Limiter
	method      string
	url         string
	headers     map[string]string
	covJSONPath string // gjson path into the response body for the coverage array, e.g. "coverage"
}

// HTTPExecutorConfig configures an HTTPExecutor.
type HTTPExecutorConfig struct {
	Method      string
	URL         string
	Headers     map[string]string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	CovJSONPath string
}

// NewHTTPExecutor creates an executor posting mutated bodies to cfg.URL and
// decoding per-run coverage from the JSON response at cfg.CovJSONPath.
func NewHTTPExecutor(cfg HTTPExecutorConfig) *HTTPExecutor {
	opts := requester.DefaultClientOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	method := cfg.Method
	if method == "" {
		method = "POST"
	}
	covPath := cfg.CovJSONPath
	if covPath == "" {
		covPath = "coverage"
	}

	return &HTTPExecutor{
		client:      requester.NewClient(opts),
		limiter:     rate.NewLimiter(limit, burst),
		method:      method,
		url:         cfg.URL,
		headers:     cfg.Headers,
		covJSONPath: covPath,
	}
}

// Execute sends input as the request body and decodes the response.
func (e *HTTPExecutor) Execute(ctx context.Context, input []byte) (*coverage.ExecutionResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := &requester.Request{
		Method:  e.method,
		URL:     e.url,
		Headers: e.headers,
		Body:    input,
	}

	resp := e.client.Do(req)
	res := &coverage.ExecutionResult{Duration: resp.ResponseTime}

	if resp.Error != nil {
		res.TimedOut = isTimeoutErr(resp.Error)
		classify(res)
		res.Trace = make([]byte, coverage.MapSize)
		return res, nil
	}

	res.ExitCode = resp.StatusCode
	res.Output = resp.Body
	res.Crashed = resp.StatusCode >= 500

	res.Trace = decodeCoverage(resp.Body, e.covJSONPath)
	classify(res)
	return res, nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}

// decodeCoverage extracts a JSON array of hit counts at jsonPath from body
// using gjson, zero-padded/truncated to coverage.MapSize.
func decodeCoverage(body []byte, jsonPath string) []byte {
	out := make([]byte, coverage.MapSize)
	result := gjson.GetBytes(body, jsonPath)
	if !result.IsArray() {
		return out
	}
	i := 0
	result.ForEach(func(_, value gjson.Result) bool {
		if i >= coverage.MapSize {
			return false
		}
		out[i] = byte(value.Int())
		i++
		return true
	})
	return out
}
