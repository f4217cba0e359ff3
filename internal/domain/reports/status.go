package reports

import "errors"

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusAnalyzing  Status = "analyzing"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusUploaded, StatusAnalyzing, StatusProcessing, StatusComplete, StatusError:
		return true
	default:
		return false
	}
}

// InFlight reports whether an analysis run currently owns the record.
func (s Status) InFlight() bool {
	return s == StatusAnalyzing || s == StatusProcessing
}

// RunStartStatuses are the states a new analysis run may start from.
// In-flight states are only taken over once stale.
var RunStartStatuses = []Status{StatusUploaded, StatusError, StatusComplete}

var (
	ErrNotFound           = errors.New("report not found")
	ErrTransitionRejected = errors.New("report has an analysis run in progress")
	ErrStoreUnavailable   = errors.New("report store unavailable")
)
