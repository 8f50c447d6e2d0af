package sweep

import (
	"context"
	"time"

	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra"
)

const (
	ReasonNoHeartbeat = "no heartbeat"
	ReasonMaxDuration = "max duration exceeded"
)

// LivenessMonitor force-terminates sessions whose agent went silent or that
// ran past the maximum duration.
type LivenessMonitor struct {
	sessions         SessionFinder
	terminator       Terminator
	logger           *infra.LoggerClient
	metrics          *infra.MetricsClient
	clock            clock.Clock
	heartbeatTimeout time.Duration
	maxDuration      time.Duration
	stuckAfter       time.Duration
}

type LivenessConfig struct {
	HeartbeatTimeout time.Duration
	MaxDuration      time.Duration
	// TerminatingTimeout is how long a close-out may run before the
	// max-duration sweep finishes it. Defaults to 5 minutes.
	TerminatingTimeout time.Duration
}

func NewLivenessMonitor(sessions SessionFinder, terminator Terminator, logger *infra.LoggerClient, metrics *infra.MetricsClient, clk clock.Clock, cfg LivenessConfig) *LivenessMonitor {
	if logger == nil {
		logger = infra.NewDiscardLogger()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.TerminatingTimeout <= 0 {
		cfg.TerminatingTimeout = 5 * time.Minute
	}
	return &LivenessMonitor{
		sessions:         sessions,
		terminator:       terminator,
		logger:           logger,
		metrics:          metrics,
		clock:            clk,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		maxDuration:      cfg.MaxDuration,
		stuckAfter:       cfg.TerminatingTimeout,
	}
}

// SweepHeartbeats terminates sessions silent for longer than the timeout.
// A session younger than the timeout is never selected, so its first
// heartbeat has time to arrive.
func (m *LivenessMonitor) SweepHeartbeats(ctx context.Context) SweepReport {
	report := newReport(SweepHeartbeatTimeout)
	ctx, span := tracer.Start(ctx, "LivenessMonitor.SweepHeartbeats")
	defer span.End()

	cutoff := m.clock.Now().Add(-m.heartbeatTimeout)
	sessions, err := m.sessions.FindStaleHeartbeats(ctx, cutoff)
	if err != nil {
		m.logger.ErrorWithContextf(ctx, err, "[Liveness] Failed to query stale sessions: %v", err)
		report.Errors++
		return finish(ctx, m.logger, m.metrics, report)
	}

	m.terminateAll(ctx, &report, sessions, ReasonNoHeartbeat)
	return finish(ctx, m.logger, m.metrics, report)
}

// SweepMaxDuration terminates sessions that started before now - max duration.
// It then finishes close-outs that have been terminating for longer than the
// terminating timeout, which would otherwise block their user and VM forever.
func (m *LivenessMonitor) SweepMaxDuration(ctx context.Context) SweepReport {
	report := newReport(SweepMaxDuration)
	ctx, span := tracer.Start(ctx, "LivenessMonitor.SweepMaxDuration")
	defer span.End()

	cutoff := m.clock.Now().Add(-m.maxDuration)
	sessions, err := m.sessions.FindStartedBefore(ctx, cutoff)
	if err != nil {
		m.logger.ErrorWithContextf(ctx, err, "[Liveness] Failed to query long running sessions: %v", err)
		report.Errors++
	} else {
		m.terminateAll(ctx, &report, sessions, ReasonMaxDuration)
	}

	m.finishStuck(ctx, &report)
	return finish(ctx, m.logger, m.metrics, report)
}

func (m *LivenessMonitor) finishStuck(ctx context.Context, report *SweepReport) {
	stuck, err := m.sessions.FindStuckTerminating(ctx, m.clock.Now().Add(-m.stuckAfter))
	if err != nil {
		m.logger.ErrorWithContextf(ctx, err, "[Liveness] Failed to query stuck sessions: %v", err)
		report.Errors++
		return
	}

	for _, s := range stuck {
		if ctx.Err() != nil {
			return
		}
		report.Checked++

		view, err := m.terminator.FinishTerminating(ctx, s.ID)
		if err != nil {
			m.logger.ErrorWithContextf(ctx, err, "[Liveness] Failed to finish session %s: %v", s.ID, err)
			report.Errors++
			continue
		}
		if view != nil && view.Session != nil && view.Session.Status.IsTerminal() {
			report.Recovered++
			m.logger.WarningWithContextf(ctx, "[Liveness] Session %s of user %s recovered from terminating as %s", s.ID, s.UserID, view.Session.Status)
		}
	}
}

func (m *LivenessMonitor) terminateAll(ctx context.Context, report *SweepReport, sessions []entity.Session, reason string) {
	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}
		report.Checked++

		view, err := m.terminator.ForceTerminate(ctx, s.ID, reason)
		if err != nil {
			m.logger.ErrorWithContextf(ctx, err, "[Liveness] Failed to terminate session %s (%s): %v", s.ID, reason, err)
			report.Errors++
			continue
		}
		if view != nil && view.Session != nil && view.Session.FailureReason == reason {
			report.Terminated++
			m.logger.WarningWithContextf(ctx, "[Liveness] Session %s of user %s terminated: %s", s.ID, s.UserID, reason)
		}
	}
}
