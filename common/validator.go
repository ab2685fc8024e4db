package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeJSON decodes the request body into payload.
func DecodeJSON(r *http.Request, payload interface{}) *AppError {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		return NewAppError(http.StatusBadRequest, "Invalid request body", nil)
	}
	return nil
}

// ValidateStruct runs the validate tags of payload.
func ValidateStruct(payload interface{}) *AppError {
	if err := validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewAppError(http.StatusBadRequest, validationErrors.Error(), nil)
		}
		return NewAppError(http.StatusBadRequest, "Invalid request body", err)
	}
	return nil
}

// ValidateAndDecode decodes the JSON body into payload and runs its validate tags.
func ValidateAndDecode(r *http.Request, payload interface{}) *AppError {
	if err := DecodeJSON(r, payload); err != nil {
		return err
	}
	return ValidateStruct(payload)
}
