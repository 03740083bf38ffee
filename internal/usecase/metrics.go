package usecase

import (
	"context"
	"errors"
)

// ErrMetricsDisabled indicates no outcome log is configured.
var ErrMetricsDisabled = errors.New("prediction log not configured")

// MetricsSummary represents aggregated, anonymous prediction insights.
type MetricsSummary struct {
	TotalPredictions int64   `json:"total_predictions"`
	MpoxPredictions  int64   `json:"mpox_predictions"`
	MpoxRate         float64 `json:"mpox_rate"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *WizardUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrMetricsDisabled
	}
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalPredictions: aggregation.TotalCount,
		MpoxPredictions:  aggregation.MpoxCount,
		AverageLatencyMs: aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		total := float64(aggregation.TotalCount)
		summary.MpoxRate = float64(aggregation.MpoxCount) / total
		summary.CacheHitRate = float64(aggregation.CacheHitCount) / total
	}

	return summary, nil
}
