package errors

import (
	"fmt"
)

// ValidationError reports a chat turn rejected before reaching any sink.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// StorageError reports a failure of the local store or of an export.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage: " + e.Op
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RemoteDeliveryError reports a write the remote research sink did not accept.
// StatusCode is zero when no HTTP response was received.
type RemoteDeliveryError struct {
	Sink       string
	StatusCode int
	Err        error
}

func NewRemoteDeliveryError(sink string, statusCode int, err error) *RemoteDeliveryError {
	return &RemoteDeliveryError{Sink: sink, StatusCode: statusCode, Err: err}
}

func (e *RemoteDeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote delivery to %s failed (status %d): %v", e.Sink, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote delivery to %s failed: %v", e.Sink, e.Err)
}

func (e *RemoteDeliveryError) Unwrap() error { return e.Err }
