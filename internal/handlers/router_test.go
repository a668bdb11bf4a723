package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/app"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
	"github.com/xelth-com/eckchat/internal/utils"
)

const (
	alice = "9990001111"
	bob   = "9990002222"
)

type client struct {
	t     *testing.T
	h     http.Handler
	token string
}

func newClient(t *testing.T, secret string) (*client, *app.App) {
	t.Helper()
	a := app.New(memstore.New(), nil, app.Options{JWTSecret: secret, MetricsEnabled: true})
	return &client{t: t, h: a.Handler}, a
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndBuildInfo(t *testing.T) {
	c, _ := newClient(t, "")
	require.Equal(t, http.StatusOK, c.do("GET", "/health", nil).Code)

	rec := c.do("GET", "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "running", decode[map[string]any](t, rec)["status"])

	require.Equal(t, http.StatusOK, c.do("GET", "/metrics", nil).Code)
}

func TestRegisterAndLogin(t *testing.T) {
	c, _ := newClient(t, "secret")

	rec := c.do("POST", "/api/auth/register", map[string]string{"phone": "+91 " + alice, "name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}](t, rec)
	require.Equal(t, alice, body.User.Phone)
	phone, err := utils.ValidatePhoneToken(body.Token, "secret")
	require.NoError(t, err)
	require.Equal(t, alice, phone)

	require.Equal(t, http.StatusBadRequest, c.do("POST", "/api/auth/register", map[string]string{"phone": alice}).Code)
	require.Equal(t, http.StatusOK, c.do("POST", "/api/auth/login", map[string]string{"phone": alice}).Code)
	require.Equal(t, http.StatusNotFound, c.do("POST", "/api/auth/login", map[string]string{"phone": bob}).Code)
	require.Equal(t, http.StatusBadRequest, c.do("POST", "/api/auth/login", nil).Code)
}

func TestProtectedRoutes(t *testing.T) {
	c, _ := newClient(t, "secret")
	require.Equal(t, http.StatusUnauthorized, c.do("GET", "/api/chats/"+alice, nil).Code)

	token, err := utils.GeneratePhoneToken(alice, "secret", time.Hour)
	require.NoError(t, err)
	c.token = token
	require.Equal(t, http.StatusOK, c.do("GET", "/api/chats/"+alice, nil).Code)

	rec := c.do("POST", "/api/block", map[string]any{"me": bob, "target": alice, "block": true})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatListFlow(t *testing.T) {
	c, a := newClient(t, "")
	ctx := context.Background()
	require.Equal(t, http.StatusOK, c.do("POST", "/api/contacts", map[string]string{"phone": alice, "name": "Alice"}).Code)
	require.Equal(t, http.StatusOK, c.do("POST", "/api/contacts", map[string]string{"phone": bob, "name": "Bob"}).Code)

	_, err := a.Conversations.Send(ctx, bob, alice, "hello")
	require.NoError(t, err)

	rows := decode[[]models.ChatSummary](t, c.do("GET", "/api/chats/"+alice, nil))
	require.Len(t, rows, 1)
	require.Equal(t, bob, rows[0].Phone)
	require.Equal(t, "hello", rows[0].LastMessage)
	require.EqualValues(t, 1, rows[0].Unread)

	require.Equal(t, http.StatusOK, c.do("POST", "/api/chats/mark-read", map[string]string{"me": alice, "other": bob}).Code)
	rec := c.do("POST", "/api/chats/pin", map[string]any{"me": alice, "chats": []string{bob}})
	require.Equal(t, http.StatusOK, rec.Code)

	rows = decode[[]models.ChatSummary](t, c.do("GET", "/api/chats/"+alice, nil))
	require.Zero(t, rows[0].Unread)
	require.True(t, rows[0].Pinned)

	msgs := decode[[]models.Message](t, c.do("GET", "/api/messages/"+alice+"/"+bob, nil))
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Seen)

	rec = c.do("POST", "/api/block", map[string]any{"me": alice, "target": bob, "block": true})
	require.Equal(t, map[string][]string{"blocked": {bob}}, decode[map[string][]string](t, rec))
	require.Equal(t, []string{bob}, decode[[]string](t, c.do("GET", "/api/block/"+alice, nil)))
	require.Equal(t, []string{}, decode[[]string](t, c.do("GET", "/api/favourites/"+alice, nil)))

	require.Equal(t, http.StatusNotFound, c.do("POST", "/api/chats/teleport", map[string]any{"me": alice}).Code)

	rec = c.do("POST", "/api/chats/delete-all", map[string]any{"me": alice})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]models.Message](t, c.do("GET", "/api/messages/"+alice+"/"+bob, nil)))
}

func TestStatusRoutes(t *testing.T) {
	c, _ := newClient(t, "")

	st := decode[models.Status](t, c.do("POST", "/api/status", map[string]string{"phone": alice, "text": "hi"}))
	require.NotEmpty(t, st.ID)

	rec := c.do("POST", "/api/status/view", map[string]string{"phone": bob, "statusId": st.ID})
	require.Equal(t, float64(1), decode[map[string]any](t, rec)["views"])
	require.Len(t, decode[[]models.StatusView](t, c.do("GET", "/api/status/"+st.ID+"/views", nil)), 1)
	require.Len(t, decode[[]models.Status](t, c.do("GET", "/api/status/feed/"+bob, nil)), 1)

	require.Equal(t, http.StatusForbidden, c.do("POST", "/api/status/delete", map[string]string{"phone": bob, "statusId": st.ID}).Code)
	require.Equal(t, http.StatusOK, c.do("POST", "/api/status/delete", map[string]string{"phone": alice, "statusId": st.ID}).Code)
	require.Equal(t, http.StatusNotFound, c.do("POST", "/api/status/delete", map[string]string{"phone": alice, "statusId": st.ID}).Code)
}

func TestGroupAndCallRoutes(t *testing.T) {
	c, _ := newClient(t, "")

	rec := c.do("POST", "/api/groups", map[string]any{"name": "Trip", "members": []string{bob}, "createdBy": alice})
	require.Equal(t, http.StatusCreated, rec.Code)
	g := decode[models.Group](t, rec)
	require.ElementsMatch(t, []string{alice, bob}, g.Members)
	require.Len(t, decode[[]models.Group](t, c.do("GET", "/api/groups/"+bob, nil)), 1)

	rec = c.do("POST", "/api/groups/"+g.ID+"/members/remove", map[string]any{"members": []string{bob}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]models.Group](t, c.do("GET", "/api/groups/"+bob, nil)))

	rec = c.do("POST", "/api/calls/log", map[string]any{"from": alice, "to": bob, "type": "video", "duration": 42})
	require.Equal(t, http.StatusOK, rec.Code)
	calls := decode[[]models.CallLog](t, c.do("GET", "/api/calls/"+bob, nil))
	require.Len(t, calls, 1)
	require.Equal(t, models.CallVideo, calls[0].Type)
	require.Equal(t, 42, calls[0].Duration)
}

func TestProfileRoutes(t *testing.T) {
	c, _ := newClient(t, "")
	require.Equal(t, map[string]any{}, decode[map[string]any](t, c.do("GET", "/api/profile/"+alice, nil)))

	rec := c.do("POST", "/api/profile", map[string]string{"phone": alice, "about": "busy"})
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[models.User](t, c.do("GET", "/api/profile/"+alice, nil))
	require.Equal(t, "busy", u.About)

	p := decode[models.Presence](t, c.do("GET", "/api/users/status/"+alice, nil))
	require.False(t, p.Online)
}
