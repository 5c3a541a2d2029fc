package types

import "fmt"

const (
	CodeValidation          = "VALIDATION"
	CodeCanvasNotFound      = "CANVAS_NOT_FOUND"
	CodeSnapshotNotFound    = "SNAPSHOT_NOT_FOUND"
	CodeHistoryNotFound     = "HISTORY_NOT_FOUND"
	CodeAnalysisUnavailable = "ANALYSIS_UNAVAILABLE"
	CodeAnalysisFailed      = "ANALYSIS_FAILED"
	CodeCaptureFailed       = "CAPTURE_FAILED"
	CodeStorageFailure      = "STORAGE_FAILURE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}
