// Package messaging publishes run reports over NATS and serves run requests
// from a subject, connecting the execution engine to the surrounding system.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	inats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/engine"
)

// ReportPublisher publishes run reports to the configured report subject,
// retrying transient failures.
type ReportPublisher struct {
	conn   *nats.Conn
	config *inats.ConnectionConfig
	logger *zap.Logger
}

// NewReportPublisher creates a publisher over an established connection.
func NewReportPublisher(conn *nats.Conn, config *inats.ConnectionConfig, logger *zap.Logger) (*ReportPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection is required")
	}
	if config == nil {
		return nil, fmt.Errorf("connection config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportPublisher{conn: conn, config: config, logger: logger}, nil
}

// Publish serializes the report and publishes it, retrying up to
// PublishMaxRetries times with a short delay.
func (p *ReportPublisher) Publish(ctx context.Context, report *engine.Report) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report %s: %w", report.RunID, err)
	}

	retries := p.config.PublishMaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if lastErr = p.conn.Publish(p.config.ReportSubject, data); lastErr == nil {
			p.logger.Debug("report published",
				zap.String("run_id", report.RunID),
				zap.String("subject", p.config.ReportSubject),
				zap.Int("attempt", attempt+1))
			return nil
		}
		p.logger.Warn("report publish failed",
			zap.String("run_id", report.RunID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return fmt.Errorf("publishing report %s after %d attempts: %w", report.RunID, retries+1, lastErr)
}
