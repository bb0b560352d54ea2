package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Poker/internal/adapters/identity"
	"github.com/dkeye/Poker/internal/adapters/signal"
	"github.com/dkeye/Poker/internal/adapters/store/memstore"
	"github.com/dkeye/Poker/internal/app"
	"github.com/dkeye/Poker/internal/app/orch"
	"github.com/dkeye/Poker/internal/config"
	"github.com/dkeye/Poker/internal/domain"
)

type env struct {
	t      *testing.T
	router *gin.Engine
	orch   *orch.Orchestrator
	tokens *identity.TokenService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	reg := app.NewRegistry()
	rooms := app.NewRoomManager(store, reg, app.SimplePolicy{}, signal.NewEncoder(nil))
	t.Cleanup(rooms.Close)
	o := orch.New(store, reg, rooms)
	o.NewRoomID = func() domain.RoomID { return "r1" }

	tokens, err := identity.NewTokenService("jwt-test", time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{Mode: "test", StaticPath: t.TempDir(), Secret: "cookie-test", PingPeriod: time.Second}
	r := SetupRouter(context.Background(), cfg, Deps{Orch: o, Tokens: tokens})
	return &env{t: t, router: r, orch: o, tokens: tokens}
}

// client keeps the session cookie between calls like a browser would.
type client struct {
	e      *env
	cookie string
	bearer string
}

func (e *env) client() *client { return &client{e: e} }

func (cl *client) do(method, path, body string) *httptest.ResponseRecorder {
	cl.e.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.cookie != "" {
		req.Header.Set("Cookie", cl.cookie)
	}
	if cl.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+cl.bearer)
	}
	w := httptest.NewRecorder()
	cl.e.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.SessionName {
			cl.cookie = c.Name + "=" + c.Value
		}
	}
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.client().do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMeIsStickyAndRenamable(t *testing.T) {
	e := newEnv(t)
	cl := e.client()

	first := decodeBody[meResponse](t, cl.do(http.MethodGet, "/api/me", ""))
	assert.True(t, first.Anonymous)
	assert.Equal(t, identity.DefaultName, first.DisplayName)

	w := cl.do(http.MethodPut, "/api/me", `{"displayName":"  Ann  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	renamed := decodeBody[meResponse](t, w)
	assert.Equal(t, first.UserID, renamed.UserID)
	assert.Equal(t, "Ann", renamed.DisplayName)

	again := decodeBody[meResponse](t, cl.do(http.MethodGet, "/api/me", ""))
	assert.Equal(t, "Ann", again.DisplayName)

	w = cl.do(http.MethodPut, "/api/me", `{"displayName":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_argument")
}

func TestRoomLifecycle(t *testing.T) {
	e := newEnv(t)
	owner := e.client()
	other := e.client()

	w := owner.do(http.MethodPost, "/api/rooms", `{"name":"Sprint 42"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[signal.StateFrame](t, w)
	assert.Equal(t, domain.RoomID("r1"), created.Room.RoomID)
	assert.Equal(t, "Sprint 42", created.Room.RoomName)

	w = owner.do(http.MethodPost, "/api/rooms", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	list := decodeBody[[]roomSummary](t, owner.do(http.MethodGet, "/api/rooms", ""))
	require.Len(t, list, 1)
	assert.True(t, list[0].Facilitator)
	assert.Equal(t, 1, list[0].Members)

	assert.Empty(t, decodeBody[[]roomSummary](t, other.do(http.MethodGet, "/api/rooms", "")))

	w = other.do(http.MethodGet, "/api/rooms/r1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = other.do(http.MethodDelete, "/api/rooms/r1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"permission_denied"}`, w.Body.String())

	w = owner.do(http.MethodDelete, "/api/rooms/r1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = owner.do(http.MethodGet, "/api/rooms/r1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = owner.do(http.MethodGet, "/api/rooms/r1/ws", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIdentityUpgradeMovesRooms(t *testing.T) {
	e := newEnv(t)
	cl := e.client()

	anon := decodeBody[meResponse](t, cl.do(http.MethodGet, "/api/me", ""))
	require.Equal(t, http.StatusCreated, cl.do(http.MethodPost, "/api/rooms", `{"name":"Sprint"}`).Code)

	w := cl.do(http.MethodPost, "/api/identity/upgrade", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := e.tokens.Issue(domain.Profile{UserID: "acct-1", DisplayName: "Ann"})
	require.NoError(t, err)
	cl.bearer = tok

	w = cl.do(http.MethodPost, "/api/identity/upgrade", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[upgradeResponse](t, w)
	assert.Equal(t, anon.UserID, resp.From)
	assert.Equal(t, domain.UserID("acct-1"), resp.To)
	assert.Equal(t, []domain.RoomID{"r1"}, resp.Replaced)
	assert.Empty(t, resp.Failed)

	r, err := e.orch.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	_, stale := r.Member(anon.UserID)
	assert.False(t, stale)
	assert.True(t, r.IsFacilitator("acct-1"))

	list := decodeBody[[]roomSummary](t, cl.do(http.MethodGet, "/api/rooms", ""))
	require.Len(t, list, 1)

	w = cl.do(http.MethodPut, "/api/me", `{"displayName":"Other"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// A second upgrade finds nothing left to move.
	resp = decodeBody[upgradeResponse](t, cl.do(http.MethodPost, "/api/identity/upgrade", ""))
	assert.Empty(t, resp.Replaced)
}

func TestForgedBearerRejected(t *testing.T) {
	e := newEnv(t)
	cl := e.client()
	cl.bearer = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, cl.do(http.MethodGet, "/api/me", "").Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{errors.Join(errors.New("dial"), domain.ErrTransient), http.StatusServiceUnavailable},
		{domain.ErrVotingClosed, http.StatusConflict},
		{domain.ErrNoVoters, http.StatusConflict},
		{domain.ErrInvalidEstimate, http.StatusBadRequest},
		{domain.ErrRoomNameEmpty, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
