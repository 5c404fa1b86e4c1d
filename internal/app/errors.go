package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"digiprofile/api/internal/auth"
	"digiprofile/api/internal/authpw"
	"digiprofile/api/internal/export"
	"digiprofile/api/internal/media"
	"digiprofile/api/internal/report"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/wardstat"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func datasetNotFound(slug string) *DomainError {
	return domainError(http.StatusNotFound, "DATASET_NOT_FOUND", fmt.Sprintf("Dataset %q does not exist", slug), nil)
}

func duplicateRecord(key wardstat.Key, existingID string) *DomainError {
	details := map[string]any{
		"fields": wardstat.FieldErrors{{
			Field:   "category",
			Code:    wardstat.CodeDuplicate,
			Message: fmt.Sprintf("ward %d already has a record for %s", key.WardNumber, key.Category),
		}},
	}
	if existingID != "" {
		details["existingId"] = existingID
	}
	return domainError(http.StatusConflict, "DUPLICATE_RECORD", "A record for this ward and category already exists", details)
}

// mapError turns service errors into the HTTP error envelope.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var fieldErrs wardstat.FieldErrors
	if errors.As(err, &fieldErrs) {
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed", map[string]any{"fields": fieldErrs}
	}
	var rowErrs export.ImportErrors
	if errors.As(err, &rowErrs) {
		return http.StatusUnprocessableEntity, "IMPORT_INVALID", "Some rows are invalid; nothing was imported", map[string]any{"rows": []export.RowError(rowErrs)}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE_RECORD", "A record for this ward and category already exists", nil
	case errors.Is(err, report.ErrUnknownDataset):
		return http.StatusNotFound, "DATASET_NOT_FOUND", "Dataset does not exist", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrDeactivated):
		return http.StatusForbidden, "ACCOUNT_DEACTIVATED", "Account is deactivated", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidEmail), errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrInvalidRole):
		return http.StatusBadRequest, "INVALID_USER", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Format must be xlsx or pdf", nil
	case errors.Is(err, export.ErrBadWorkbook):
		return http.StatusBadRequest, "INVALID_WORKBOOK", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Only JPEG, PNG, WebP images and PDF documents are accepted", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
