package common

import (
	"encoding/json"
	"errors"
	"go-bank-transfers/logger"
	"net/http"

	"github.com/sirupsen/logrus"
)

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FromError turns a service error into an AppError. Recorded transfer
// failures keep their recorded code and message; internal errors are not
// exposed to the client.
func FromError(err error, fallback string) *AppError {
	var failure *TransferFailure
	if errors.As(err, &failure) {
		return NewAppError(failure.Code, failure.Message, nil)
	}
	code := ResultCode(err)
	if code == http.StatusInternalServerError {
		return NewAppError(code, fallback, err)
	}
	return NewAppError(code, err.Error(), nil)
}

func (e *AppError) Send(w http.ResponseWriter) {
	if e.Err != nil {
		logger.Log.WithFields(logrus.Fields{
			"status_code":    e.Code,
			"internal_error": e.Err.Error(),
		}).Error(e.Message)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}
