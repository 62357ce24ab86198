// Package telemetry sets up the simulator's structured logger and
// shutdown hooks. It follows the teacher's InicializarLogger pattern
// (one slog.Logger tagged with the module name) and additionally
// stamps every line with a per-run correlation id, since a REPL
// session has no network request to correlate log lines by.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Telemetry bundles the logger and run identity for one simulator
// invocation.
type Telemetry struct {
	Log   *slog.Logger
	RunID string
}

// Init builds the module logger at the given level ("debug", "info",
// "warn", "error"; anything else falls back to "info").
func Init(logLevel, moduleName string) *Telemetry {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	runID := xid.New().String()
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("modulo", moduleName, "run_id", runID)

	return &Telemetry{Log: logger, RunID: runID}
}

// RegisterShutdown wires a cleanup function into the process-wide
// atexit chain, logging its name when it runs. Cleanup order is LIFO,
// matching atexit's own contract.
func (t *Telemetry) RegisterShutdown(name string, fn func()) {
	atexit.Register(func() {
		t.Log.Info("running shutdown hook", "hook", name)
		fn()
	})
}

// Exit runs every registered shutdown hook and terminates the process
// with the given status code.
func Exit(code int) {
	atexit.Exit(code)
}
