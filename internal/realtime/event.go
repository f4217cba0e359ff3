package realtime

import (
	"time"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
)

// ReportEvent is broadcast whenever a report's pipeline status changes.
type ReportEvent struct {
	ReportID         string         `json:"reportId"`
	Status           reports.Status `json:"status"`
	ReportKind       reports.Kind   `json:"reportKind,omitempty"`
	ProcessingTimeMs *int64         `json:"processingTimeMs,omitempty"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	At               time.Time      `json:"at"`
}

// EventFor snapshots r as an event.
func EventFor(r *reports.Report) ReportEvent {
	ev := ReportEvent{
		ReportID:         r.ID.String(),
		Status:           r.Status,
		ReportKind:       r.ReportKind,
		ProcessingTimeMs: r.ProcessingTimeMs,
		At:               r.UpdatedAt,
	}
	if r.ErrorMessage != nil {
		ev.ErrorMessage = *r.ErrorMessage
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
