package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ldcasilang/sui-portfolio/internal/auth"
	"github.com/ldcasilang/sui-portfolio/internal/export"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
	"github.com/ldcasilang/sui-portfolio/internal/submit"
	"github.com/ldcasilang/sui-portfolio/internal/syncer"
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

var submitStatus = map[submit.Kind]struct {
	status int
	code   string
}{
	submit.KindValidation:             {http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	submit.KindBusy:                   {http.StatusConflict, "SUBMISSION_BUSY"},
	submit.KindUserRejected:           {http.StatusBadRequest, "USER_REJECTED"},
	submit.KindInsufficientFunds:      {http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	submit.KindRemoteFunctionMismatch: {http.StatusBadGateway, "REMOTE_FUNCTION_MISMATCH"},
	submit.KindUnknown:                {http.StatusBadGateway, "SUBMISSION_FAILED"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var submitErr *submit.Error
	if errors.As(err, &submitErr) {
		mapped, ok := submitStatus[submitErr.Kind]
		if !ok {
			mapped = submitStatus[submit.KindUnknown]
		}
		if submitErr.Kind == submit.KindValidation {
			var verr *portfolio.ValidationError
			if errors.As(err, &verr) {
				details = map[string]any{"problems": verr.Problems}
			}
		}
		return mapped.status, mapped.code, submitErr.Error(), details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	}
	if errors.Is(err, syncer.ErrClosed) {
		return http.StatusServiceUnavailable, "SHUTTING_DOWN", "Service is shutting down", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
