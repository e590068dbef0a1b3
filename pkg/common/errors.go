// Package common provides shared utilities and error handling for the SkyWatch
// threat assessment platform.
package common

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrorSeverity represents the severity level of an error.
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Error codes used across the assessment pipeline. The taxonomy separates
// recoverable per-event and per-estimator failures from stage-level and
// fatal orchestration failures.
const (
	// CodeValidation marks a malformed input event; the event is skipped.
	CodeValidation = "E3001"
	// CodeEstimator marks a failed sub-estimator; confidence is degraded.
	CodeEstimator = "E3101"
	// CodeProvider marks an unreachable external collaborator; a fallback
	// path is used and a warning recorded.
	CodeProvider = "E2101"
	// CodeStageTimeout marks a pipeline stage that exceeded its budget.
	CodeStageTimeout = "E4101"
	// CodeFatal marks an unexpected failure escaping all stage guards.
	CodeFatal = "E4001"
	// CodeNotFound marks a lookup miss (session or cached entity).
	CodeNotFound = "E3201"
	// CodeNotReady marks a result requested before its session finished.
	CodeNotReady = "E3301"
)

// ErrorCodeInfo contains metadata about error codes.
type ErrorCodeInfo struct {
	Severity    ErrorSeverity
	Category    string
	Description string
}

var errorCodes = map[string]ErrorCodeInfo{
	CodeValidation:   {SeverityWarning, "Validation", "Malformed input event"},
	CodeEstimator:    {SeverityWarning, "Estimator", "Sub-estimator failure"},
	CodeProvider:     {SeverityWarning, "Provider", "External provider unreachable"},
	CodeStageTimeout: {SeverityError, "Stage", "Pipeline stage exceeded budget"},
	CodeFatal:        {SeverityCritical, "System", "Unexpected orchestration failure"},
	CodeNotFound:     {SeverityInfo, "Lookup", "Entity not found"},
	CodeNotReady:     {SeverityInfo, "Lookup", "Session result not ready"},
}

// Thread-safe per-code error counters.
var errorCounts = func() map[string]*atomic.Uint64 {
	m := make(map[string]*atomic.Uint64, len(errorCodes))
	for code := range errorCodes {
		m[code] = &atomic.Uint64{}
	}
	return m
}()

// PipelineError is the error type carried across stage boundaries. It keeps
// the originating cause, a stable code from the taxonomy above, and optional
// metadata for logging.
type PipelineError struct {
	Code      string
	Message   string
	Err       error
	Severity  ErrorSeverity
	Metadata  map[string]interface{}
	Timestamp time.Time
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the originating cause for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError creates a PipelineError with the given code. Unknown codes are
// coerced to CodeFatal so a miscoded call site still surfaces loudly.
func NewError(code string, message string, metadata map[string]interface{}) *PipelineError {
	info, ok := errorCodes[code]
	if !ok {
		code = CodeFatal
		info = errorCodes[code]
	}
	errorCounts[code].Add(1)

	return &PipelineError{
		Code:      code,
		Message:   message,
		Severity:  info.Severity,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// WrapError wraps an existing error preserving its code when it already is a
// PipelineError, so a cause keeps its taxonomy position as it climbs stages.
func WrapError(err error, message string, metadata map[string]interface{}) error {
	if err == nil {
		return nil
	}

	var perr *PipelineError
	if errors.As(err, &perr) {
		return &PipelineError{
			Code:      perr.Code,
			Message:   message,
			Err:       err,
			Severity:  perr.Severity,
			Metadata:  mergeMaps(perr.Metadata, metadata),
			Timestamp: time.Now().UTC(),
		}
	}
	e := NewError(CodeFatal, message, metadata)
	e.Err = err
	return e
}

// WrapWithCode wraps an error under an explicit code, overriding any code the
// cause carries. Stage boundaries use this to reclassify, e.g. a provider
// error surfacing as an estimator failure.
func WrapWithCode(err error, code string, message string, metadata map[string]interface{}) error {
	if err == nil {
		return nil
	}
	e := NewError(code, message, metadata)
	e.Err = err
	return e
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code string) bool {
	var perr *PipelineError
	return errors.As(err, &perr) && perr.Code == code
}

// ErrorCounts returns a snapshot of per-code error counters.
func ErrorCounts() map[string]uint64 {
	out := make(map[string]uint64, len(errorCounts))
	for code, counter := range errorCounts {
		out[code] = counter.Load()
	}
	return out
}

func mergeMaps(m1, m2 map[string]interface{}) map[string]interface{} {
	if m1 == nil && m2 == nil {
		return nil
	}
	result := make(map[string]interface{}, len(m1)+len(m2))
	for k, v := range m1 {
		result[k] = v
	}
	for k, v := range m2 {
		result[k] = v
	}
	return result
}
