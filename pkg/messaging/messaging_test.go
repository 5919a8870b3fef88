package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"

	inats "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

func TestNewReportPublisherValidation(t *testing.T) {
	cfg := inats.DefaultConnectionConfig("nats://localhost:4222")

	_, err := NewReportPublisher(nil, cfg, nil)
	require.Error(t, err)
}

func TestNewRunListenerValidation(t *testing.T) {
	cfg := inats.DefaultConnectionConfig("nats://localhost:4222")
	eng := engine.New(nil)
	reg := registry.New()

	_, err := NewRunListener(nil, cfg, eng, reg, nil, engine.Options{}, nil)
	require.Error(t, err)
}

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := inats.DefaultConnectionConfig("nats://localhost:4222")
	require.Equal(t, "nats://localhost:4222", cfg.URL)
	require.Equal(t, "daedalus.reports", cfg.ReportSubject)
	require.Equal(t, "daedalus.runs", cfg.RunSubject)
	require.Equal(t, 3, cfg.PublishMaxRetries)
	require.Positive(t, cfg.MaxReconnects)
}
