package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("product: %w", common.ErrNotFound), "NOT_FOUND", http.StatusNotFound},
		{common.ErrValidation, "VALIDATION_ERROR", http.StatusUnprocessableEntity},
		{common.ErrInsufficientCredit, "INSUFFICIENT_CREDIT", http.StatusPaymentRequired},
		{common.ErrInvalidStatusTransition, "INVALID_STATUS_TRANSITION", http.StatusConflict},
		{common.ErrAlreadyClaimed, "ALREADY_CLAIMED", http.StatusConflict},
		{common.ErrConflict, "CONFLICT", http.StatusConflict},
		{errors.New("boom"), "INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := common.Classify(tc.err)
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, common.Detailed(common.ErrInsufficientCredit, "insufficient credit", map[string]string{"shortfall": "100.00"}))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body common.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "INSUFFICIENT_CREDIT", body.Error.Code)
	require.Equal(t, map[string]any{"shortfall": "100.00"}, body.Error.Details)
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	common.WriteError(rec, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestValidateStructReportsFields(t *testing.T) {
	type payload struct {
		ProductID string `json:"productId" validate:"required,uuid"`
		Quantity  int    `json:"quantity" validate:"gt=0"`
	}
	err := common.ValidateStruct(payload{ProductID: "nope"})
	require.ErrorIs(t, err, common.ErrValidation)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	details := appErr.Details.(map[string]any)
	fields := details["fields"].([]common.FieldError)
	require.Len(t, fields, 2)
	require.Equal(t, "productId", fields[0].Field)
	require.Equal(t, "quantity", fields[1].Field)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4411"
	require.Equal(t, "10.0.0.5", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", common.ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-an-ip"
	require.Empty(t, common.ClientIP(req))
}
