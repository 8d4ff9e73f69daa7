package handler

import (
	"context"
	"net/http"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
)

type accountService interface {
	Account(ctx context.Context, addr domain.Address) (*domain.Account, error)
}

type AccountHandler struct {
	node accountService
}

func NewAccountHandler(node accountService) *AccountHandler {
	return &AccountHandler{node: node}
}

type accountDTO struct {
	Address    domain.Address `json:"address"`
	Owner      domain.Address `json:"owner"`
	Lamports   uint64         `json:"lamports"`
	Data       []byte         `json:"data"`
	Executable bool           `json:"executable"`
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "address", Message: "must be a base58 address"}})
		return
	}

	acct, err := h.node.Account(r.Context(), addr)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, accountDTO{
		Address:    addr,
		Owner:      acct.Owner,
		Lamports:   acct.Lamports,
		Data:       acct.Data,
		Executable: acct.Executable,
	})
}
