package reports

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Report is one uploaded video and the outputs of its most recent analysis run.
type Report struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Status Status    `gorm:"column:status;not null;index" json:"status"`

	// SourceFileRef is the media intake handle; never changes after create.
	SourceFileRef    string `gorm:"column:source_file_ref;not null" json:"sourceFileRef"`
	VideoFilename    string `gorm:"column:video_filename;not null" json:"videoFilename"`
	VideoContentType string `gorm:"column:video_content_type" json:"videoContentType,omitempty"`
	VideoSizeBytes   int64  `gorm:"column:video_size_bytes;not null;default:0" json:"videoSizeBytes"`
	VideoStorageKey  string `gorm:"column:video_storage_key" json:"videoStorageKey,omitempty"`

	SupervisorNotes string `gorm:"column:supervisor_notes" json:"supervisorNotes"`

	RawSummary       *string        `gorm:"column:raw_summary" json:"rawSummary,omitempty"`
	ReportKind       Kind           `gorm:"column:report_kind" json:"reportKind,omitempty"`
	// json rather than jsonb keeps the stored text byte for byte.
	StructuredReport datatypes.JSON `gorm:"column:structured_report;type:json" json:"structuredReport,omitempty"`
	ProcessingTimeMs *int64         `gorm:"column:processing_time_ms" json:"processingTimeMs,omitempty"`
	ErrorMessage     *string        `gorm:"column:error_message" json:"errorMessage,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Report) TableName() string { return "report" }

// Patch lists the fields an update may touch; nil means unchanged.
type Patch struct {
	Status           *Status
	SupervisorNotes  *string
	RawSummary       *string
	ReportKind       *Kind
	StructuredReport json.RawMessage
	ProcessingTimeMs *int64
	ErrorMessage     *string

	// ResetRun clears every output of a previous analysis run.
	ResetRun bool
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.SupervisorNotes == nil && p.RawSummary == nil && p.ReportKind == nil &&
		p.StructuredReport == nil && p.ProcessingTimeMs == nil && p.ErrorMessage == nil && !p.ResetRun
}

// Columns renders the patch as a column map for gorm Updates.
// Explicit values win over ResetRun.
func (p Patch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.ResetRun {
		cols["raw_summary"] = nil
		cols["structured_report"] = nil
		cols["report_kind"] = ""
		cols["processing_time_ms"] = nil
		cols["error_message"] = nil
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.SupervisorNotes != nil {
		cols["supervisor_notes"] = *p.SupervisorNotes
	}
	if p.RawSummary != nil {
		cols["raw_summary"] = *p.RawSummary
	}
	if p.ReportKind != nil {
		cols["report_kind"] = *p.ReportKind
	}
	if p.StructuredReport != nil {
		cols["structured_report"] = datatypes.JSON(p.StructuredReport)
	}
	if p.ProcessingTimeMs != nil {
		cols["processing_time_ms"] = *p.ProcessingTimeMs
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	return cols
}

// Apply merges the patch into r in memory.
func (p Patch) Apply(r *Report, now time.Time) {
	if r == nil {
		return
	}
	if p.ResetRun {
		r.RawSummary = nil
		r.StructuredReport = nil
		r.ReportKind = ""
		r.ProcessingTimeMs = nil
		r.ErrorMessage = nil
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.SupervisorNotes != nil {
		r.SupervisorNotes = *p.SupervisorNotes
	}
	if p.RawSummary != nil {
		v := *p.RawSummary
		r.RawSummary = &v
	}
	if p.ReportKind != nil {
		r.ReportKind = *p.ReportKind
	}
	if p.StructuredReport != nil {
		r.StructuredReport = datatypes.JSON(append([]byte(nil), p.StructuredReport...))
	}
	if p.ProcessingTimeMs != nil {
		v := *p.ProcessingTimeMs
		r.ProcessingTimeMs = &v
	}
	if p.ErrorMessage != nil {
		v := *p.ErrorMessage
		r.ErrorMessage = &v
	}
	r.UpdatedAt = now
}

// ParseID accepts only canonical report identifiers.
func ParseID(id string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, false
	}
	return parsed, true
}
