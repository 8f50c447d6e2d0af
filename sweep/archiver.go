package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/infra"
)

const archiveBatchLimit = 100

// HeartbeatArchiver moves heartbeat rows of long-ended sessions to object storage.
type HeartbeatArchiver struct {
	sessions   ArchiveSessionFinder
	heartbeats HeartbeatArchive
	objects    ObjectWriter
	logger     *infra.LoggerClient
	metrics    *infra.MetricsClient
	clock      clock.Clock
	retention  time.Duration
}

func NewHeartbeatArchiver(sessions ArchiveSessionFinder, heartbeats HeartbeatArchive, objects ObjectWriter, logger *infra.LoggerClient, metrics *infra.MetricsClient, clk clock.Clock, retention time.Duration) *HeartbeatArchiver {
	if logger == nil {
		logger = infra.NewDiscardLogger()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &HeartbeatArchiver{
		sessions:   sessions,
		heartbeats: heartbeats,
		objects:    objects,
		logger:     logger,
		metrics:    metrics,
		clock:      clk,
		retention:  retention,
	}
}

func ArchiveKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("heartbeats/%s.ndjson", sessionID)
}

// Archive uploads one NDJSON object per session and deletes the rows only
// after the upload succeeded.
func (a *HeartbeatArchiver) Archive(ctx context.Context) SweepReport {
	report := newReport(SweepHeartbeatArchive)
	ctx, span := tracer.Start(ctx, "HeartbeatArchiver.Archive")
	defer span.End()

	ids, err := a.sessions.FindArchivableIDs(ctx, a.clock.Now().Add(-a.retention), archiveBatchLimit)
	if err != nil {
		a.logger.ErrorWithContextf(ctx, err, "[Archiver] Failed to list archivable sessions: %v", err)
		report.Errors++
		return finish(ctx, a.logger, a.metrics, report)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		n, err := a.archiveSession(ctx, id)
		if err != nil {
			a.logger.ErrorWithContextf(ctx, err, "[Archiver] Failed to archive heartbeats of session %s: %v", id, err)
			report.Errors++
			continue
		}
		report.Archived += int(n)
	}

	return finish(ctx, a.logger, a.metrics, report)
}

func (a *HeartbeatArchiver) archiveSession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	records, err := a.heartbeats.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list heartbeats: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return 0, fmt.Errorf("encode heartbeat: %w", err)
		}
	}

	if err := a.objects.PutObject(ctx, ArchiveKey(sessionID), buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, err
	}

	deleted, err := a.heartbeats.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete archived heartbeats: %w", err)
	}
	return deleted, nil
}
