package handler

import (
	"go-bank-transfers/common"
	"go-bank-transfers/model"
	"go-bank-transfers/service"
	"net/http"
	"strings"
)

// IdempotencyKeyHeader may carry the request id instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type TransactionHandler struct {
	service *service.TransactionService
}

func NewTransactionHandler(s *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: s}
}

// CreateTransfer godoc
// @Summary      Transfer money between accounts
// @Description  Moves funds from the source to the target account at most once per request id. Resubmitting a request id returns the recorded outcome; reusing it with a different payload is rejected.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string false "Request id, used when request_id is absent from the body"
// @Param        transfer body model.TransferRequest true "Transfer details"
// @Success      201  {object}  model.Transaction
// @Failure      400  {object}  common.AppError "Invalid request, same account"
// @Failure      401  {object}  common.AppError "Missing or invalid token"
// @Failure      404  {object}  common.AppError "Account not found"
// @Failure      409  {object}  common.AppError "Request id conflict or concurrent modification"
// @Failure      422  {object}  common.AppError "Insufficient balance"
// @Failure      423  {object}  common.AppError "Timed out waiting for a lock"
// @Failure      502  {object}  common.AppError "Currency exchange failed"
// @Failure      500  {object}  common.AppError "Internal server error"
// @Router       /api/transfers [post]
func (h *TransactionHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.TransferRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		return err
	}

	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}
	if req.Mode != "" {
		mode, ok := model.ParseFetchMode(string(req.Mode))
		if !ok {
			return common.NewAppError(http.StatusBadRequest, common.ErrInvalidMode.Error(), nil)
		}
		req.Mode = mode
	}
	if err := common.ValidateStruct(&req); err != nil {
		return err
	}

	txn, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		return common.FromError(err, "Could not process transfer")
	}

	writeJSON(w, txn.ResultCode, txn)
	return nil
}

// GetTransaction godoc
// @Summary      Get a transaction
// @Description  Returns the record of a transfer request by its request id.
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Request id"
// @Success      200  {object}  model.Transaction
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /api/transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) *common.AppError {
	txn, err := h.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		return common.FromError(err, "Could not retrieve transaction")
	}

	writeJSON(w, http.StatusOK, txn)
	return nil
}

// ListTransactionsForAccount godoc
// @Summary      List account transaction history
// @Description  Retrieves the transfers an account took part in, newest first.
// @Tags         transactions
// @Produce      json
// @Security     BearerAuth
// @Param        accountId path string true "Account id"
// @Success      200  {array}   model.Transaction
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /api/accounts/{accountId}/transactions [get]
func (h *TransactionHandler) ListTransactionsForAccount(w http.ResponseWriter, r *http.Request) *common.AppError {
	transactions, err := h.service.ListTransactionsForAccount(r.Context(), r.PathValue("accountId"))
	if err != nil {
		return common.FromError(err, "Could not retrieve transactions")
	}
	if transactions == nil {
		transactions = []*model.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
	return nil
}
