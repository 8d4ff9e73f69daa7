package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Operator role does not allow this action"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidSignature     = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Transaction signature is invalid or missing"}
	ErrDuplicateTransaction = &AppError{http.StatusConflict, "DUPLICATE_TRANSACTION", "Transaction already processed"}
	ErrTransactionAborted   = &AppError{http.StatusUnprocessableEntity, "TRANSACTION_ABORTED", "Transaction aborted; no state was changed"}
	ErrInsufficientFunds    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInvalidAccount       = &AppError{http.StatusUnprocessableEntity, "INVALID_ACCOUNT", "Account does not have the expected shape"}
	ErrUnauthorizedAccount  = &AppError{http.StatusUnprocessableEntity, "UNAUTHORIZED_ACCOUNT", "Account is not held by the expected authority"}
	ErrArithmeticOverflow   = &AppError{http.StatusUnprocessableEntity, "ARITHMETIC_OVERFLOW", "Amount out of range"}
)
