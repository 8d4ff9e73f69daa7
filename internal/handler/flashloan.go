package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/service"
)

type quoteService interface {
	Quote(ctx context.Context, pool domain.Address, fee uint16, requested uint64) (*service.Quote, error)
}

type FlashLoanHandler struct {
	node quoteService
}

func NewFlashLoanHandler(node quoteService) *FlashLoanHandler {
	return &FlashLoanHandler{node: node}
}

// Quote answers GET /v1/flashloan/quote?pool=&fee=&amount=.
func (h *FlashLoanHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fields []FieldError

	pool, err := domain.ParseAddress(q.Get("pool"))
	if err != nil {
		fields = append(fields, FieldError{Field: "pool", Message: "must be a base58 address"})
	}
	fee, err := strconv.ParseUint(q.Get("fee"), 10, 16)
	if err != nil {
		fields = append(fields, FieldError{Field: "fee", Message: "must be basis points between 0 and 10000"})
	}
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		fields = append(fields, FieldError{Field: "amount", Message: "must be a positive integer"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	quote, err := h.node.Quote(r.Context(), pool, uint16(fee), amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, quote)
}
