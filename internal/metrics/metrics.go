// Package metrics exposes the run counters and stage-duration
// histograms via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "naverpost_agent_runs_total",
		Help: "Total completed runs by overall_status.",
	}, []string{"overall_status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "naverpost_agent_stage_duration_seconds",
		Help:    "Duration of each lettered run stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ImageUploadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "naverpost_agent_image_upload_attempts_total",
		Help: "Image upload attempts by classification.",
	}, []string{"classification"})

	RecoveryStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "naverpost_agent_recovery_steps_total",
		Help: "Recovery Manager steps that reported progress, by step.",
	}, []string{"step"})
)

// Handler returns the HTTP handler serving the registered metrics
// (mounted by cmd/postagent's serve command).
func Handler() http.Handler {
	return promhttp.Handler()
}
