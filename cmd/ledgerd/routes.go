package main

import (
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/custody-ledger/internal/handler"
	"github.com/josh-kwaku/custody-ledger/internal/middleware"
	"github.com/josh-kwaku/custody-ledger/internal/service"
)

func routes(node *service.Node, st store, operatorSecret string, logger *slog.Logger) http.Handler {
	health := handler.NewHealthHandler(st)
	transactions := handler.NewTransactionHandler(node)
	accounts := handler.NewAccountHandler(node)
	loans := handler.NewFlashLoanHandler(node)
	admin := handler.NewAdminHandler(node)

	operator := middleware.Auth(operatorSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)

	mux.HandleFunc("POST /v1/transactions", transactions.Submit)
	mux.HandleFunc("GET /v1/accounts/{address}", accounts.Get)
	mux.HandleFunc("GET /v1/flashloan/quote", loans.Quote)
	mux.Handle("POST /v1/admin/airdrop", operator(http.HandlerFunc(admin.Airdrop)))

	return middleware.Chain(mux, middleware.Tracing, middleware.Logging(logger), middleware.Recovery)
}
