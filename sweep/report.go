package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/tnqbao/gau-vm-session-service/sweep")

const (
	SweepHeartbeatTimeout = "heartbeat_timeout"
	SweepMaxDuration      = "max_duration"
	SweepReconcileFast    = "reconcile_fast"
	SweepReconcileFull    = "reconcile_full"
	SweepHeartbeatArchive = "heartbeat_archive"
)

// SweepReport holds the counters of one sweep run.
type SweepReport struct {
	Sweep     string
	RunID     uuid.UUID
	StartedAt time.Time

	Checked      int
	Terminated   int
	Mismatches   int
	Deallocated  int
	Inconclusive int
	Errors       int
	Archived     int
	Recovered    int
}

func newReport(sweep string) SweepReport {
	return SweepReport{
		Sweep:     sweep,
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
}

// Anomalies reports whether the run saw anything beyond routine completion.
func (r SweepReport) Anomalies() bool {
	return r.Mismatches > 0 || r.Errors > 0 || r.Inconclusive > 0 || r.Terminated > 0 || r.Recovered > 0
}

func (r *SweepReport) merge(o SweepReport) {
	r.Checked += o.Checked
	r.Terminated += o.Terminated
	r.Mismatches += o.Mismatches
	r.Deallocated += o.Deallocated
	r.Inconclusive += o.Inconclusive
	r.Errors += o.Errors
	r.Archived += o.Archived
	r.Recovered += o.Recovered
}

func (r SweepReport) outcomes() map[string]int {
	return map[string]int{
		"checked":      r.Checked,
		"terminated":   r.Terminated,
		"mismatch":     r.Mismatches,
		"deallocated":  r.Deallocated,
		"inconclusive": r.Inconclusive,
		"error":        r.Errors,
		"archived":     r.Archived,
		"recovered":    r.Recovered,
	}
}

func finish(ctx context.Context, logger *infra.LoggerClient, metrics *infra.MetricsClient, r SweepReport) SweepReport {
	metrics.ObserveSweep(r.Sweep, r.StartedAt, r.outcomes())

	format := "[Sweep %s] run=%s checked=%d terminated=%d mismatches=%d deallocated=%d inconclusive=%d errors=%d archived=%d recovered=%d took=%s"
	args := []interface{}{r.Sweep, r.RunID, r.Checked, r.Terminated, r.Mismatches, r.Deallocated,
		r.Inconclusive, r.Errors, r.Archived, r.Recovered, time.Since(r.StartedAt).Round(time.Millisecond)}
	if r.Anomalies() {
		logger.WarningWithContextf(ctx, format, args...)
	} else {
		logger.InfoWithContextf(ctx, format, args...)
	}
	return r
}
