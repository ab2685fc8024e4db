package handler

import (
	"encoding/json"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorHandlingMiddleware adapts a handler that returns an AppError into an
// http.HandlerFunc, writing the error as the JSON response.
func ErrorHandlingMiddleware(next func(http.ResponseWriter, *http.Request) *common.AppError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": err.Code,
			}).Info(err.Message)
			err.Send(w)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
