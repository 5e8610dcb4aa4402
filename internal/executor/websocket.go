package executor

import (
	"context"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
	"github.com/tidwall/gjson"
)

// WebSocketExecutor runs a persistent-mode target over a WebSocket
// connection: one mutated frame per run, with the target's coverage
// reported back as a JSON text frame. Grounded on the teacher's
// gofiber/websocket/v2 dependency (previously only exercised by the web
// dashboard's live log stream, internal/web/server.go); this executor
// drives the lower-level fasthttp/websocket dialer gofiber/websocket/v2
// itself wraps, since this is a client connection rather than a server
// upgrade.
type WebSocketExecutor struct {
	dialer      *websocket.Dialer
	url         string
	timeout     time.Duration
	covJSONPath string
}

// WebSocketExecutorConfig configures a WebSocketExecutor.
type WebSocketExecutorConfig struct {
	URL         string
	Timeout     time.Duration
	CovJSONPath string
}

// NewWebSocketExecutor creates an executor dialing cfg.URL fresh for every
// run (persistent-mode targets that crash take the connection down with
// them, so a fresh dial per input is the safe default).
func NewWebSocketExecutor(cfg WebSocketExecutorConfig) *WebSocketExecutor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	covPath := cfg.CovJSONPath
	if covPath == "" {
		covPath = "coverage"
	}
	return &WebSocketExecutor{
		dialer:      &websocket.Dialer{HandshakeTimeout: timeout},
		url:         cfg.URL,
		timeout:     timeout,
		covJSONPath: covPath,
	}
}

// Execute dials the target, sends input as a single binary frame, and
// reads back one text frame carrying the run's coverage/crash report.
func (e *WebSocketExecutor) Execute(ctx context.Context, input []byte) (*coverage.ExecutionResult, error) {
	res := &coverage.ExecutionResult{}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	conn, _, err := e.dialer.DialContext(runCtx, e.url, nil)
	if err != nil {
		res.Crashed = true
		res.Duration = time.Since(start)
		classify(res)
		res.Trace = make([]byte, coverage.MapSize)
		return res, nil
	}
	defer conn.Close()

	deadline, ok := runCtx.Deadline()
	if ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, input); err != nil {
		res.Duration = time.Since(start)
		res.Crashed = true
		classify(res)
		res.Trace = make([]byte, coverage.MapSize)
		return res, nil
	}

	_, body, err := conn.ReadMessage()
	res.Duration = time.Since(start)
	if err != nil {
		res.TimedOut = runCtx.Err() == context.DeadlineExceeded
		if !res.TimedOut {
			res.Crashed = true
		}
		classify(res)
		res.Trace = make([]byte, coverage.MapSize)
		return res, nil
	}

	res.Output = body
	res.Crashed = gjson.GetBytes(body, "crashed").Bool()
	res.Trace = decodeCoverage(body, e.covJSONPath)
	classify(res)
	return res, nil
}
