// Package reporting forwards internal-consistency failures to Sentry. The
// engine treats these as bugs (never normal user-facing conditions), so they
// are captured with full context when a DSN is configured and dropped
// silently otherwise.
package reporting

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

var enabled atomic.Bool

// Init configures the Sentry client. Safe to skip entirely; every capture
// function is a no-op until Init succeeds.
func Init(dsn, environment string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		logger.Debug("error reporting disabled, no DSN configured")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		logger.Warn("failed to initialize error reporting", zap.Error(err))
		return err
	}
	enabled.Store(true)
	logger.Info("error reporting initialized", zap.String("environment", environment))
	return nil
}

// CaptureInternalError reports an internal-consistency failure, tagged with
// the run it occurred in.
func CaptureInternalError(err error, runID string) {
	if !enabled.Load() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetLevel(sentry.LevelFatal)
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic from a worker goroutine.
func CapturePanic(recovered any, runID, nodeID string) {
	if !enabled.Load() || recovered == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetTag("node_id", nodeID)
		scope.SetLevel(sentry.LevelFatal)
		sentry.CurrentHub().Recover(recovered)
	})
}

// Flush waits for buffered events to be delivered, up to the timeout.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}
