package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAppErrorThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("handler: %w", NewSourceUnavailable(cause))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, CodeSourceUnavailable, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatus(err))
	assert.ErrorIs(t, err, cause)
}

func TestGetHTTPStatusDefaultsTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}

func TestMissingFieldsDetails(t *testing.T) {
	err := NewMissingFields([]string{"Dirección de entrega"})
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, []string{"Dirección de entrega"}, err.Details["missing"])
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("sale", "V-1")))
	assert.False(t, IsNotFound(NewForbidden("no")))
	assert.Equal(t, "x", NewValidation("bad").WithDetail("field", "x").Details["field"])
}
