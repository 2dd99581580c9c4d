package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/service"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err    error
		status int
		kind   string
	}{
		{service.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
		{fmt.Errorf("parse: %w", domain.ErrInvalidAmountFormat), http.StatusBadRequest, "InvalidAmount"},
		{service.ErrUnknownTransaction, http.StatusBadRequest, "UnknownTransaction"},
		{service.ErrAmountMismatch, http.StatusBadRequest, "AmountMismatch"},
		{service.ErrRaceCondition, http.StatusConflict, "RaceCondition"},
		{fmt.Errorf("create payment intent: %w", repository.ErrDuplicateKey), http.StatusConflict, "DuplicateKey"},
		{fmt.Errorf("%w: CREATED -> CONFIRMED", domain.ErrInvalidTransition), http.StatusConflict, "InvalidTransition"},
		{fmt.Errorf("%w: connection reset", service.ErrTransport), http.StatusBadGateway, "TransportError"},
		{errors.New("boom"), http.StatusInternalServerError, "Internal"},
	}

	for _, tc := range testCases {
		status, kind := mapError(tc.err)
		if status != tc.status || kind != tc.kind {
			t.Errorf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.kind, status, kind)
		}
	}
}
