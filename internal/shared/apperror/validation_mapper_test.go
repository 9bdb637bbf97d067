package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestMapValidationErrorRequiredField(t *testing.T) {
	type payload struct {
		Logs []string `validate:"required,min=1"`
	}
	err := validator.New().Struct(payload{})
	assert.Error(t, err)

	mapped := MapValidationError(err)
	var appErr *AppError
	assert.ErrorAs(t, mapped, &appErr)
	assert.Equal(t, CodeInvalidInput, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, "Logs is required", appErr.Message)
}

func TestMapValidationErrorFallsBackForNonValidatorErrors(t *testing.T) {
	mapped := MapValidationError(errors.New("unexpected EOF"))
	assert.Equal(t, ErrInvalidInput, mapped)
}
