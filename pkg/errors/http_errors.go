package errors

import (
	stderrors "errors"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// NotFoundWithDetails creates a 404 Not Found error with details
func NotFoundWithDetails(code string, message string, details any) *AppError {
	return NewNotFoundError(code, message).WithDetails(details)
}

// FromError converts an error to an AppError.
// AppErrors are returned as-is, domain error kinds map to their status codes
// and anything else is wrapped as an internal server error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var (
		validation *ValidationError
		storage    *StorageError
		remote     *RemoteDeliveryError
		out        *AppError
	)
	switch {
	case stderrors.As(err, &validation):
		out = BadRequestWithDetails("VALIDATION_ERROR", validation.Error(), map[string]any{"field": validation.Field})
	case stderrors.As(err, &storage):
		out = NewInternalServerError("STORAGE_ERROR", storage.Error())
	case stderrors.As(err, &remote):
		out = NewBadGatewayError("REMOTE_DELIVERY_ERROR", remote.Error())
	default:
		out = NewInternalServerError("INTERNAL_ERROR", "An unexpected error occurred: "+err.Error())
	}
	out.cause = err
	return out
}

// GetStatusCode extracts the HTTP status code, returns 500 for unknown errors
func GetStatusCode(err error) int {
	if appErr := FromError(err); appErr != nil {
		return appErr.StatusCode
	}
	return http.StatusOK
}

// GetErrorMessage extracts the error message, returns original error message if not an AppError
func GetErrorMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}

// IsStorage reports whether err carries a StorageError
func IsStorage(err error) bool {
	var s *StorageError
	return stderrors.As(err, &s)
}

// IsRemoteDelivery reports whether err carries a RemoteDeliveryError
func IsRemoteDelivery(err error) bool {
	var r *RemoteDeliveryError
	return stderrors.As(err, &r)
}
