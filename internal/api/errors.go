package api

import (
	"errors"
	"net/http"

	"yield-ledger/internal/ledger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ledger.ErrSelfReferral, http.StatusBadRequest, "self_referral"},
	{ledger.ErrUnknownReferrer, http.StatusBadRequest, "unknown_referrer"},
	{ledger.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{ledger.ErrInvalidTier, http.StatusBadRequest, "invalid_tier"},
	{ledger.ErrInvalidRate, http.StatusBadRequest, "invalid_rate"},
	{ledger.ErrBelowMinimum, http.StatusUnprocessableEntity, "below_minimum"},
	{ledger.ErrContractPaused, http.StatusServiceUnavailable, "paused"},
	{ledger.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{ledger.ErrDepositNotFound, http.StatusNotFound, "deposit_not_found"},
	{ledger.ErrDepositInactive, http.StatusConflict, "deposit_inactive"},
}

// statusFor maps a ledger error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
