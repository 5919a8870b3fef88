package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/engine"
)

// ReportStore persists run reports as JSON blobs, one per run.
type ReportStore struct {
	blobClient BlobStorageClient
	logger     *zap.Logger
}

// NewReportStore creates a report store over a blob client.
func NewReportStore(blobClient BlobStorageClient, logger *zap.Logger) *ReportStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportStore{
		blobClient: blobClient,
		logger:     logger,
	}
}

// ReportPath returns the standard blob path for a run's report.
func ReportPath(graphID, runID string) string {
	return fmt.Sprintf("reports/%s/%s.json", graphID, runID)
}

// Save uploads the report and returns its blob URL.
func (s *ReportStore) Save(ctx context.Context, report *engine.Report) (string, error) {
	if s.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}
	if report == nil {
		return "", fmt.Errorf("report is required")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	blobPath := ReportPath(report.GraphID, report.RunID)
	blobURL, err := s.blobClient.Upload(ctx, blobPath, data, map[string]string{
		"graph_id":   report.GraphID,
		"run_id":     report.RunID,
		"status":     string(report.Status),
		"node_count": fmt.Sprintf("%d", len(report.NodeResults)),
		"saved_at":   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	s.logger.Info("report persisted",
		zap.String("graph_id", report.GraphID),
		zap.String("run_id", report.RunID),
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))

	return blobURL, nil
}

// Load downloads and parses a run's report.
func (s *ReportStore) Load(ctx context.Context, graphID, runID string) (*engine.Report, error) {
	if s.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := s.blobClient.Download(ctx, ReportPath(graphID, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to download report: %w", err)
	}

	var report engine.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LoadRaw downloads a report blob without parsing it.
func (s *ReportStore) LoadRaw(ctx context.Context, reference string) ([]byte, error) {
	if s.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}
	data, err := s.blobClient.Download(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to download report: %w", err)
	}
	return data, nil
}
