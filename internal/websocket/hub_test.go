package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/app"
	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
	"github.com/xelth-com/eckchat/internal/utils"
)

const (
	alice = "9990001111"
	bob   = "9990002222"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ack struct {
	AckID string           `json:"ackId"`
	OK    bool             `json:"ok"`
	Error *models.AckError `json:"error"`
	Data  json.RawMessage  `json:"data"`
}

type server struct {
	url string
}

func startServer(t *testing.T, secret string) *server {
	t.Helper()
	a := app.New(memstore.New(), nil, app.Options{JWTSecret: secret, SendBuffer: 64})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(a.Handler)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &server{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

type peer struct {
	t    *testing.T
	conn *gws.Conn
}

func (s *server) dial(t *testing.T, query string) *peer {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(s.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) send(event string, data any, ackID string) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(raw), "ackId": ackID}))
}

// await reads frames until one carries event.
func (p *peer) await(event string) frame {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(p.t, p.conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func (p *peer) awaitAck(id string) ack {
	p.t.Helper()
	for {
		var a ack
		require.NoError(p.t, json.Unmarshal(p.await(models.EventAck).Data, &a))
		if a.AckID == id {
			return a
		}
	}
}

func (p *peer) join(id string) {
	p.t.Helper()
	p.send(models.EventJoin, id, "join")
	a := p.awaitAck("join")
	require.True(p.t, a.OK, "join failed: %+v", a.Error)
}

func TestSendMessageRoundTrip(t *testing.T) {
	s := startServer(t, "")
	a := s.dial(t, "")
	a.join(alice)
	b := s.dial(t, "")
	b.join("+91 " + bob)

	online := a.await(models.EventUserOnline)
	require.JSONEq(t, `"`+bob+`"`, string(online.Data))

	a.send(models.EventSendMessage, map[string]string{"to": bob, "text": "hi"}, "m1")
	got := a.awaitAck("m1")
	require.True(t, got.OK)

	var msg models.Message
	require.NoError(t, json.Unmarshal(b.await(models.EventReceiveMessage).Data, &msg))
	require.Equal(t, alice, msg.From)
	require.Equal(t, "hi", msg.Text)
	require.True(t, msg.Delivered)
	b.await(models.EventRefreshChatList)

	b.send(models.EventMarkSeen, map[string]string{"me": bob, "other": alice}, "s1")
	require.True(t, b.awaitAck("s1").OK)
	var seen struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	require.NoError(t, json.Unmarshal(a.await(models.EventMessagesSeen).Data, &seen))
	require.Equal(t, alice, seen.From)
	require.Equal(t, bob, seen.To)
}

func TestErrorsAreAcked(t *testing.T) {
	s := startServer(t, "")
	a := s.dial(t, "")

	a.send("teleport", map[string]string{}, "x1")
	got := a.awaitAck("x1")
	require.False(t, got.OK)
	require.Equal(t, apperr.KindValidation, got.Error.Kind)

	a.send(models.EventSendMessage, map[string]string{"from": alice, "text": "hi"}, "x2")
	got = a.awaitAck("x2")
	require.False(t, got.OK)
	require.Equal(t, apperr.KindValidation, got.Error.Kind)

	a.send(models.EventDeleteForEveryone, map[string]string{"messageId": "missing", "phone": alice}, "x3")
	got = a.awaitAck("x3")
	require.Equal(t, apperr.KindNotFound, got.Error.Kind)
}

func TestOfflineOnDisconnect(t *testing.T) {
	s := startServer(t, "")
	a := s.dial(t, "")
	a.join(alice)
	b := s.dial(t, "")
	b.join(bob)
	a.await(models.EventUserOnline)

	a.send(models.EventGetStatus, bob, "")
	var p models.Presence
	require.NoError(t, json.Unmarshal(a.await(models.EventStatusResponse).Data, &p))
	require.True(t, p.Online)

	require.NoError(t, b.conn.Close())

	var off struct {
		Phone    string    `json:"phone"`
		LastSeen time.Time `json:"lastSeen"`
	}
	require.NoError(t, json.Unmarshal(a.await(models.EventUserOffline).Data, &off))
	require.Equal(t, bob, off.Phone)
	require.False(t, off.LastSeen.IsZero())
}

func TestTypingRelay(t *testing.T) {
	s := startServer(t, "")
	a := s.dial(t, "")
	a.join(alice)
	b := s.dial(t, "")
	b.join(bob)

	a.send(models.EventTyping, map[string]string{"to": bob}, "")
	require.JSONEq(t, `{"from":"`+alice+`"}`, string(b.await(models.EventTyping).Data))
}

func TestTokenRequired(t *testing.T) {
	s := startServer(t, "secret")

	_, resp, err := gws.DefaultDialer.Dial(s.url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := utils.GeneratePhoneToken(alice, "secret", time.Hour)
	require.NoError(t, err)
	a := s.dial(t, "?token="+token)

	a.send(models.EventJoin, bob, "j1")
	got := a.awaitAck("j1")
	require.False(t, got.OK)
	require.Equal(t, apperr.KindForbidden, got.Error.Kind)

	a.join(alice)
	a.send(models.EventSendMessage, map[string]string{"from": bob, "to": alice, "text": "spoof"}, "m1")
	require.Equal(t, apperr.KindForbidden, a.awaitAck("m1").Error.Kind)
}
