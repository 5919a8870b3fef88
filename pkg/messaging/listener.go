package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	inats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

// RunRequest asks for one execution of a registered graph.
type RunRequest struct {
	GraphID string         `json:"graphId"`
	Inputs  map[string]any `json:"inputs,omitempty"`
}

// RunListener consumes run requests from the run subject, executes the named
// graph, and publishes the resulting report.
type RunListener struct {
	conn      *nats.Conn
	config    *inats.ConnectionConfig
	engine    *engine.Engine
	registry  *registry.Registry
	publisher *ReportPublisher
	opts      engine.Options
	logger    *zap.Logger

	sub *nats.Subscription
}

// NewRunListener wires a listener over an established connection.
func NewRunListener(conn *nats.Conn, config *inats.ConnectionConfig, eng *engine.Engine, reg *registry.Registry, publisher *ReportPublisher, opts engine.Options, logger *zap.Logger) (*RunListener, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection is required")
	}
	if config == nil {
		return nil, fmt.Errorf("connection config is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("report publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunListener{
		conn:      conn,
		config:    config,
		engine:    eng,
		registry:  reg,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Start subscribes to the run subject. Each request is served on its own
// goroutine; the provided context bounds every run started from here.
func (l *RunListener) Start(ctx context.Context) error {
	if l.sub != nil {
		return fmt.Errorf("listener already started")
	}
	sub, err := l.conn.Subscribe(l.config.RunSubject, func(msg *nats.Msg) {
		go l.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %q: %w", l.config.RunSubject, err)
	}
	l.sub = sub
	l.logger.Info("run listener started", zap.String("subject", l.config.RunSubject))
	return nil
}

// Stop unsubscribes. In-flight runs finish on their own.
func (l *RunListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	err := l.sub.Unsubscribe()
	l.sub = nil
	return err
}

func (l *RunListener) handle(ctx context.Context, msg *nats.Msg) {
	var req RunRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.logger.Warn("dropping malformed run request", zap.Error(err))
		return
	}
	if req.GraphID == "" {
		l.logger.Warn("dropping run request without graph id")
		return
	}

	spec, ok := l.registry.Graph(req.GraphID)
	if !ok {
		l.logger.Warn("dropping run request for unknown graph",
			zap.String("graph_id", req.GraphID))
		return
	}

	report, err := l.engine.Execute(ctx, spec, l.registry, req.Inputs, l.opts)
	if err != nil {
		l.logger.Error("run request failed",
			zap.String("graph_id", req.GraphID),
			zap.Error(err))
		return
	}

	if err := l.publisher.Publish(ctx, report); err != nil {
		l.logger.Error("publishing report failed",
			zap.String("run_id", report.RunID),
			zap.Error(err))
	}
}
