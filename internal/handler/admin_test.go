package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
	"github.com/iliyamo/workshop-seat-booking/internal/utils"
)

func TestVoidReservation(t *testing.T) {
	now := time.Now()
	r := &mockReconciler{voidFn: func(_ context.Context, id string) (*model.Reservation, error) {
		switch id {
		case "r1":
			return &model.Reservation{ID: "r1", SeatNumber: 7, VoidedAt: &now}, nil
		case "r2":
			return nil, service.ErrAlreadyVoided
		}
		return nil, service.ErrReservationNotFound
	}}
	h := NewAdminHandler(r, &mockLocks{}, quiet())

	for id, want := range map[string]int{"r1": http.StatusOK, "r2": http.StatusConflict, "r3": http.StatusNotFound} {
		c, res := newCtx(http.MethodPost, "/", "")
		c.SetParamNames("id")
		c.SetParamValues(id)
		require.NoError(t, h.VoidReservation(c))
		assert.Equal(t, want, res.Code, id)
	}
}

func TestListFailures_Limit(t *testing.T) {
	var got int
	r := &mockReconciler{failuresFn: func(_ context.Context, limit int) ([]model.SettlementFailure, error) {
		got = limit
		return []model.SettlementFailure{{OrderCode: 1, Reason: model.FailureSeatConflict}}, nil
	}}
	h := NewAdminHandler(r, &mockLocks{}, quiet())

	c, res := newCtx(http.MethodGet, "/v1/admin/settlement-failures?limit=5", "")
	require.NoError(t, h.ListFailures(c))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 5, got)
	assert.Contains(t, res.Body.String(), model.FailureSeatConflict)

	c, res = newCtx(http.MethodGet, "/v1/admin/settlement-failures?limit=-1", "")
	require.NoError(t, h.ListFailures(c))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestListReservationsAndSweep(t *testing.T) {
	r := &mockReconciler{reservationsFn: func(context.Context) ([]model.Reservation, error) {
		return []model.Reservation{{ID: "r1"}}, nil
	}}
	locks := &mockLocks{sweepFn: func(context.Context) (int64, error) { return 3, nil }}
	h := NewAdminHandler(r, locks, quiet())

	c, res := newCtx(http.MethodGet, "/", "")
	require.NoError(t, h.ListReservations(c))
	assert.Contains(t, res.Body.String(), `"r1"`)

	c, res = newCtx(http.MethodPost, "/", "")
	require.NoError(t, h.Sweep(c))
	assert.JSONEq(t, `{"swept":3}`, res.Body.String())
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	h := NewAuthHandler(StaffAccount{Email: "Staff@Example.com", PasswordHash: hash}, "secret", 15, quiet())

	c, res := newCtx(http.MethodPost, "/v1/auth/login", `{"email":"staff@example.com","password":"pw"}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusOK, res.Code)
	access := decode(t, res)["access"].(map[string]interface{})
	assert.NotEmpty(t, access["token"])

	c, res = newCtx(http.MethodPost, "/v1/auth/login", `{"email":"staff@example.com","password":"nope"}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	c, res = newCtx(http.MethodPost, "/v1/auth/login", `{"email":""}`)
	require.NoError(t, h.Login(c))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
