package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "device-loan-api/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loanBody struct {
	FirstName string  `json:"first_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	DeviceIDs []int64 `json:"device_ids" validate:"required,min=1,dive,gt=0"`
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		domains     []string
		expectError bool
		contains    string
	}{
		{name: "Valid email", email: "jo@x.test"},
		{name: "Valid email mixed case", email: " Jo@X.Test "},
		{name: "Empty email", email: "  ", expectError: true, contains: "required"},
		{name: "Missing at sign", email: "jo.x.test", expectError: true, contains: "invalid email"},
		{name: "Display name form rejected", email: "Jo <jo@x.test>", expectError: true, contains: "invalid email"},
		{name: "Host without domain rejected", email: "jo@localhost", expectError: true, contains: "invalid email"},
		{name: "IP literal rejected", email: "jo@[127.0.0.1]", expectError: true, contains: "invalid email"},
		{name: "Allowed domain", email: "jo@school.test", domains: []string{"school.test"}},
		{name: "Allowed domain case insensitive", email: "jo@School.Test", domains: []string{"school.test"}},
		{name: "Disallowed domain", email: "jo@gmail.test", domains: []string{"school.test"}, expectError: true, contains: "not allowed"},
		{name: "Subdomain is not the domain", email: "jo@evil.school.test", domains: []string{"school.test"}, expectError: true, contains: "not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email, tt.domains)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.contains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequireTrimmed(t *testing.T) {
	rubric, suffix, category := "  SHC-LQ ", "   ", "Laptop"
	errs := RequireTrimmed(map[string]*string{
		"rubric_id": &rubric,
		"suffix_id": &suffix,
		"category":  &category,
	})

	assert.Equal(t, "SHC-LQ", rubric)
	assert.Equal(t, map[string]string{"suffix_id": "is required"}, errs)

	suffix = "001"
	assert.Nil(t, RequireTrimmed(map[string]*string{"suffix_id": &suffix}))
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, UniqueIDs([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, UniqueIDs(nil))
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"first_name":"Jo","email":"jo@x.test","device_ids":[1,2]}`))
		var body loanBody
		require.NoError(t, DecodeJSONBody(req, &body))
		assert.Equal(t, []int64{1, 2}, body.DeviceIDs)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var body loanBody
		err := DecodeJSONBody(req, &body)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorCodeValidation, appErr.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"first_name":`))
		var body loanBody
		err := DecodeJSONBody(req, &body)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorCodeInvalidJSON, appErr.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"first_name":"Jo","email":"jo@x.test","device_ids":[1],"admin":true}`))
		var body loanBody
		err := DecodeJSONBody(req, &body)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorCodeInvalidJSON, appErr.Code)
	})

	t.Run("validation failure carries field details", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"first_name":"Jo","email":"jo@x.test","device_ids":[]}`))
		var body loanBody
		err := DecodeJSONBody(req, &body)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorCodeValidation, appErr.Code)
		assert.Contains(t, appErr.Details, "device_ids")
	})

	t.Run("element failures are keyed by index", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"nope","device_ids":[4,0]}`))
		var body loanBody
		err := DecodeJSONBody(req, &body)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Len(t, appErr.Details, 3)
		assert.Contains(t, appErr.Details, "device_ids[1]")
		assert.Contains(t, appErr.Details, "first_name")
		assert.Contains(t, appErr.Details, "email")
	})
}
