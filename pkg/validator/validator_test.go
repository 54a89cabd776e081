package validator

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
)

type contactStruct struct {
	Name    string `json:"name" validate:"notblank,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required,phone"`
	Address string `json:"address" validate:"notblank"`
}

func validContact() contactStruct {
	return contactStruct{
		Name:    "Nimal Perera",
		Email:   "nimal@example.lk",
		Phone:   "+94 77 123 4567",
		Address: "12 Galle Road, Colombo",
	}
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validContact()))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	s := validContact()
	s.Email = "not-an-email"

	var valErr *ValidationError
	require.ErrorAs(t, Validate(s), &valErr)

	fields := valErr.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, "email", fields[0].Field)
	assert.Equal(t, "must be a valid email address", fields[0].Message)
}

func TestValidate_BlankStringsRejected(t *testing.T) {
	s := validContact()
	s.Name = "   "
	s.Address = "\t"

	var valErr *ValidationError
	require.ErrorAs(t, Validate(s), &valErr)

	fields := valErr.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].Field)
	assert.Equal(t, "address", fields[1].Field)
	assert.Equal(t, "is required", fields[1].Message)
}

func TestValidate_Phone(t *testing.T) {
	tests := []struct {
		phone string
		ok    bool
	}{
		{"0771234567", true},
		{"+94 77 123 4567", true},
		{"077-123-4567", true},
		{"12345", false},
		{"phone", false},
		{"+94 77 123 456a", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			s := validContact()
			s.Phone = tt.phone
			err := Validate(s)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidationError_AppError(t *testing.T) {
	var valErr *ValidationError
	require.ErrorAs(t, Validate(contactStruct{}), &valErr)

	appErr := valErr.AppError()
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Len(t, appErr.Fields, 4)
	assert.True(t, errors.Is(appErr, apperrors.ErrValidationFailed))
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(contactStruct{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'name'")
	assert.Contains(t, err.Error(), "is required")
}

func TestVar(t *testing.T) {
	assert.Nil(t, Var("email", "a@b.lk", "required,email"))

	fe := Var("email", "nope", "required,email")
	require.NotNil(t, fe)
	assert.Equal(t, "email", fe.Field)
	assert.Equal(t, "must be a valid email address", fe.Message)
}

func TestVar_OrderID(t *testing.T) {
	for _, id := range []string{"ord-77", "7f3c9a2e-1b4d-4c8e-9f00-123456789abc", "ORD:2026.001"} {
		assert.Nil(t, Var("order_id", id, "orderid"), id)
	}
	for _, id := range []string{"", "-ord", "ord 7", "<script>"} {
		fe := Var("order_id", id, "orderid")
		require.NotNil(t, fe, id)
		assert.Equal(t, "must be a valid order id", fe.Message)
	}
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"name":"Nimal","email":"nimal@example.lk","phone":"0771234567","address":"Kandy"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s contactStruct
	require.NoError(t, DecodeAndValidate(req, &s))
	assert.Equal(t, "Nimal", s.Name)
	assert.Equal(t, "Kandy", s.Address)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var s contactStruct
	err := DecodeAndValidate(req, &s)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	body := `{"name":"","email":"bad","phone":"0771234567","address":"Kandy"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s contactStruct
	var valErr *ValidationError
	assert.ErrorAs(t, DecodeAndValidate(req, &s), &valErr)
}
