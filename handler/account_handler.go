package handler

import (
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/service"
	"net/http"

	"github.com/sirupsen/logrus"
)

type AccountHandler struct {
	service *service.AccountService
}

func NewAccountHandler(service *service.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// CreateAccount godoc
// @Summary      Open an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        account body model.CreateAccountRequest true "Currency and opening balance"
// @Success      201  {object}  model.Account
// @Failure      400  {object}  common.AppError
// @Failure      401  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /api/accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.CreateAccountRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	logger.Log.WithFields(logrus.Fields{
		"subject":  r.Context().Value(SubjectKey),
		"currency": req.Currency,
	}).Info("Create account request received")

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		return common.FromError(err, "Could not create account")
	}

	writeJSON(w, http.StatusCreated, account)
	return nil
}

// GetAccount godoc
// @Summary      Get an account
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Account id"
// @Success      200  {object}  model.Account
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError
// @Router       /api/accounts/{id} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) *common.AppError {
	account, err := h.service.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		return common.FromError(err, "Could not retrieve account")
	}

	writeJSON(w, http.StatusOK, account)
	return nil
}

// ListAccounts godoc
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   model.Account
// @Failure      401  {object}  common.AppError
// @Failure      500  {object}  common.AppError
// @Router       /api/accounts [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) *common.AppError {
	accounts, err := h.service.GetAllAccounts(r.Context())
	if err != nil {
		return common.FromError(err, "Could not retrieve accounts")
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}

	writeJSON(w, http.StatusOK, accounts)
	return nil
}

// Deposit godoc
// @Summary      Deposit into an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Account id"
// @Param        deposit body model.DepositRequest true "Amount to credit"
// @Success      200  {object}  model.Account
// @Failure      400  {object}  common.AppError
// @Failure      401  {object}  common.AppError
// @Failure      404  {object}  common.AppError
// @Router       /api/accounts/{id}/deposit [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) *common.AppError {
	var req model.DepositRequest
	if err := common.ValidateAndDecode(r, &req); err != nil {
		return err
	}

	account, err := h.service.DepositToAccount(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		return common.FromError(err, "Could not deposit to account")
	}

	writeJSON(w, http.StatusOK, account)
	return nil
}
