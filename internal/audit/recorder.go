// Package audit owns the durable security event log. Other components only
// append through Record; nothing here ever mutates or deletes an event.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"tradewatch/internal/models"
	"tradewatch/internal/repository"

	"github.com/google/uuid"
)

// Recorder appends security events to the durable store. A storage failure
// is reported to the operational logger and swallowed: a security-relevant
// action must never be blocked because the audit sink is down.
type Recorder struct {
	repo   repository.SecurityEventRepository
	logger *slog.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo repository.SecurityEventRepository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends one event. Metadata values must not contain secrets; callers
// never pass plaintext passwords or codes here.
func (r *Recorder) Record(
	ctx context.Context,
	eventType models.SecurityEventType,
	severity models.Severity,
	rctx models.RequestContext,
	metadata map[string]string,
	userID *uuid.UUID,
) {
	meta := "{}"
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}

	event := &models.SecurityEvent{
		UserID:    userID,
		Type:      eventType,
		Severity:  severity,
		IPAddress: rctx.IP,
		UserAgent: rctx.UserAgent,
		Metadata:  meta,
	}

	if err := r.repo.Create(ctx, event); err != nil {
		r.logger.Error("failed to record security event",
			"event_type", string(eventType),
			"severity", string(severity),
			"error", err,
		)
	}
}
