package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorHandler_Handle_AppError(t *testing.T) {
	// Arrange
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/categories/1", nil)
	appErr := NewForbiddenError("cannot delete Other").WithCode(CodeProtectedCategory)

	// Act
	h.Handle(rec, req, appErr)

	// Assert
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Error)
	assert.Equal(t, string(ErrorTypeForbidden), body.Type)
	assert.Equal(t, CodeProtectedCategory, body.Code)
	assert.Nil(t, body.Details)
}

func TestErrorHandler_Handle_PlainErrorHidesMessage(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.Handle(rec, req, errors.New("connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestErrorHandler_Handle_DebugAddsStack(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), true)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.Handle(rec, req, NewDatabaseError("write snapshot", errors.New("boom")))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Details, "stack_trace")
}

func TestErrorHandler_Middleware_RecoversPanic(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	wrapped := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWrap_KeepsAppErrorType(t *testing.T) {
	err := Wrap(NewNotFoundError("category"), "delete category")

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "delete category: category not found", GetAppError(err).Message)
	assert.True(t, IsType(Wrap(errors.New("x"), "y"), ErrorTypeInternal))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestValidationErrors_AsAppError(t *testing.T) {
	v := NewValidationErrors()
	assert.Nil(t, v.AsAppError())

	v.Add("email", "email must be a valid email")
	v.Add("password", "password must be at least 8 characters")
	appErr := v.AsAppError()

	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, CodeFieldValidation, appErr.Code)
	fields := appErr.Details["fields"].(map[string]interface{})
	assert.Len(t, fields, 2)
}
