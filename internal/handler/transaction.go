package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

const maxBodyBytes = 1 << 20

type transactionService interface {
	Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error)
}

type TransactionHandler struct {
	node transactionService
}

func NewTransactionHandler(node transactionService) *TransactionHandler {
	return &TransactionHandler{node: node}
}

// submitTransactionRequest is the wire form of a signed transaction.
// Addresses are base58 and byte strings are base64.
type submitTransactionRequest struct {
	ID           uuid.UUID             `json:"id"`
	Instructions []runtime.Instruction `json:"instructions"`
	Signatures   []runtime.Signature   `json:"signatures"`
}

func (r submitTransactionRequest) Validate() []FieldError {
	var errs []FieldError
	if r.ID == uuid.Nil {
		errs = append(errs, FieldError{Field: "id", Message: "required"})
	}
	if len(r.Instructions) == 0 {
		errs = append(errs, FieldError{Field: "instructions", Message: "at least one instruction is required"})
	}
	if len(r.Signatures) == 0 {
		errs = append(errs, FieldError{Field: "signatures", Message: "required"})
	}
	for i, ix := range r.Instructions {
		if len(ix.Accounts) == 0 && len(ix.Data) == 0 {
			errs = append(errs, FieldError{Field: fmt.Sprintf("instructions[%d]", i), Message: "empty instruction"})
		}
	}
	return errs
}

func (h *TransactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req submitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	receipt, err := h.node.Submit(r.Context(), &runtime.Transaction{
		ID:           req.ID,
		Instructions: req.Instructions,
		Signatures:   req.Signatures,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, receipt)
}
