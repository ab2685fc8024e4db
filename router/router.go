package router

import (
	"go-bank-transfers/handler"
	"net/http"

	_ "go-bank-transfers/docs"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// NewRouter mounts the public routes and, behind auth, the /api routes.
func NewRouter(
	accountHandler *handler.AccountHandler,
	transactionHandler *handler.TransactionHandler,
	healthHandler *handler.HealthHandler,
	auth func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.HealthCheck)
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	api := http.NewServeMux()
	api.Handle("POST /api/transfers", handler.ErrorHandlingMiddleware(transactionHandler.CreateTransfer))
	api.Handle("GET /api/transactions/{id}", handler.ErrorHandlingMiddleware(transactionHandler.GetTransaction))
	api.Handle("GET /api/accounts/{accountId}/transactions", handler.ErrorHandlingMiddleware(transactionHandler.ListTransactionsForAccount))

	api.Handle("POST /api/accounts", handler.ErrorHandlingMiddleware(accountHandler.CreateAccount))
	api.Handle("GET /api/accounts", handler.ErrorHandlingMiddleware(accountHandler.ListAccounts))
	api.Handle("GET /api/accounts/{id}", handler.ErrorHandlingMiddleware(accountHandler.GetAccount))
	api.Handle("POST /api/accounts/{id}/deposit", handler.ErrorHandlingMiddleware(accountHandler.Deposit))

	mux.Handle("/api/", auth(api))

	return mux
}
