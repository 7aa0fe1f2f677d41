// Package envelope defines the uniform response shape returned by every
// gateway endpoint. Success and failure share one wire format correlated
// by a per-request log ID.
package envelope

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Response is the envelope serialized as the primary payload of every
// gateway response. ErrorCode 0 means success and Result is present;
// any other code means failure and Result is absent.
type Response struct {
	LogID     string          `json:"logId"`
	ErrorCode int             `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// OK reports whether the envelope represents a successful outcome.
func (r Response) OK() bool {
	return r.ErrorCode == 0
}

// NewLogID returns a fresh request identifier. Uniqueness is advisory
// for traceability; nothing else depends on it.
func NewLogID() string {
	return uuid.NewString()
}

// NewError builds an error envelope. Result is always absent. An empty
// logID is replaced with a freshly generated one so that even failures
// that never reached admission are traceable.
func NewError(code int, msg string, logID string) Response {
	if logID == "" {
		logID = NewLogID()
	}
	return Response{
		LogID:     logID,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// NewSuccess builds a success envelope carrying result as its payload.
func NewSuccess(result json.RawMessage, logID string) Response {
	if logID == "" {
		logID = NewLogID()
	}
	return Response{
		LogID:    logID,
		ErrorMsg: "Success",
		Result:   result,
	}
}
