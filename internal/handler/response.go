package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type abortDetails struct {
	Instruction int             `json:"instruction"`
	Facility    domain.Address  `json:"facility"`
	Category    domain.Category `json:"category"`
	Reason      string          `json:"reason"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps ledger errors to responses. An aborted instruction
// reports where it failed and how the failure is classified.
func RespondDomainError(w http.ResponseWriter, err error) {
	var ixErr *runtime.InstructionError
	if errors.As(err, &ixErr) {
		RespondAppError(w, ErrTransactionAborted, abortDetails{
			Instruction: ixErr.Index,
			Facility:    ixErr.Facility,
			Category:    domain.CategoryOf(ixErr.Err),
			Reason:      ixErr.Err.Error(),
		})
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrDuplicateTransaction):
		appErr = ErrDuplicateTransaction
	case errors.Is(err, domain.ErrInvalidSignature):
		appErr = ErrInvalidSignature
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidAddress):
		appErr = ErrInvalidRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	default:
		switch domain.CategoryOf(err) {
		case domain.CategoryAuthorization:
			appErr = ErrUnauthorizedAccount
		case domain.CategoryAccountShape:
			appErr = ErrInvalidAccount
		case domain.CategoryArithmetic:
			appErr = ErrArithmeticOverflow
		default:
			slog.Error("unhandled domain error", "error", err)
			appErr = ErrInternalError
		}
	}

	RespondAppError(w, appErr, nil)
}
