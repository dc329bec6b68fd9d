package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/prometheus/client_golang/prometheus"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

// MetricsTextfile exports the outcome of the last run of each operation
// for the node exporter textfile collector. Each operation owns its own
// file so a run never overwrites the figures of another operation.
type MetricsTextfile struct {
	Path string
}

func NewMetricsTextfile(path string) MetricsTextfile {
	return MetricsTextfile{Path: path}
}

func (m MetricsTextfile) RecordRun(ctx context.Context, result types.OperationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Path) == "" {
		return nil
	}
	labels := prometheus.Labels{"operation": string(result.Operation)}
	registry := prometheus.NewRegistry()
	timestamp := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storagectl_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	}, []string{"operation"})
	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storagectl_last_run_success",
		Help: "1 when the last run succeeded.",
	}, []string{"operation"})
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storagectl_last_run_duration_seconds",
		Help: "Wall time of the last run.",
	}, []string{"operation"})
	steps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storagectl_last_run_steps",
		Help: "Steps executed by the last run, by status.",
	}, []string{"operation", "status"})
	registry.MustRegister(timestamp, success, duration, steps)

	timestamp.With(labels).Set(float64(result.FinishedAt.Unix()))
	if result.Succeeded() {
		success.With(labels).Set(1)
	} else {
		success.With(labels).Set(0)
	}
	duration.With(labels).Set(result.FinishedAt.Sub(result.StartedAt).Seconds())
	counts := map[types.StepStatus]int{}
	for _, step := range result.Steps {
		counts[step.Status]++
	}
	for status, count := range counts {
		steps.WithLabelValues(string(result.Operation), string(status)).Set(float64(count))
	}
	if result.Health != nil {
		score := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storagectl_health_score",
			Help: "Weighted health score measured by the last run.",
		}, []string{"operation"})
		registry.MustRegister(score)
		score.With(labels).Set(float64(result.Health.Score))
	}

	path := m.fileFor(result.Operation)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create metrics directory").
			WithCause(err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write metrics textfile").
			WithCause(err)
	}
	return nil
}

func (m MetricsTextfile) fileFor(op types.Operation) string {
	ext := filepath.Ext(m.Path)
	if ext == "" {
		ext = ".prom"
	}
	return strings.TrimSuffix(m.Path, filepath.Ext(m.Path)) + "_" + string(op) + ext
}

var _ ports.MetricsPort = MetricsTextfile{}
