package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/josh-kwaku/custody-ledger/internal/auth"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
)

type airdropService interface {
	Airdrop(ctx context.Context, addr domain.Address, lamports uint64) (*runtime.Receipt, error)
}

type AdminHandler struct {
	node airdropService
}

func NewAdminHandler(node airdropService) *AdminHandler {
	return &AdminHandler{node: node}
}

type airdropRequest struct {
	Address  *domain.Address `json:"address"`
	Lamports uint64          `json:"lamports"`
}

func (r airdropRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Address == nil {
		errs = append(errs, FieldError{Field: "address", Message: "required"})
	}
	if r.Lamports == 0 {
		errs = append(errs, FieldError{Field: "lamports", Message: "must be greater than zero"})
	}
	return errs
}

// Airdrop credits lamports outside any transaction. Admin operators only.
func (h *AdminHandler) Airdrop(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}
	if claims.Role != auth.RoleAdmin {
		RespondAppError(w, ErrForbidden, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req airdropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	receipt, err := h.node.Airdrop(r.Context(), *req.Address, req.Lamports)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	logging.FromContext(r.Context()).Info("airdrop granted",
		"operator", claims.Subject,
		"address", req.Address.String(),
		"lamports", req.Lamports,
	)
	RespondSuccess(w, http.StatusOK, receipt)
}
