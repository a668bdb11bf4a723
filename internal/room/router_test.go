package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/presence"
)

type sink struct {
	id     string
	mu     sync.Mutex
	frames []models.Frame
	closed bool
}

func (s *sink) ID() string { return s.id }

func (s *sink) Send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	var f models.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *sink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Event
	}
	return out
}

type table struct {
	rooms map[string][]presence.Conn
	all   []presence.Conn
}

func (t *table) ConnectionsIn(room string) []presence.Conn { return t.rooms[room] }

func (t *table) AllConnections(except string) []presence.Conn {
	var out []presence.Conn
	for _, c := range t.all {
		if c.ID() != except {
			out = append(out, c)
		}
	}
	return out
}

func TestDeliverReachesEveryConnectionOnce(t *testing.T) {
	a1, a2, b := &sink{id: "a1"}, &sink{id: "a2"}, &sink{id: "b"}
	r := NewRouter(&table{rooms: map[string][]presence.Conn{
		"9990001111": {a1, a2},
		"9990002222": {b},
	}})

	n := r.Deliver(context.Background(), "9990001111", models.EventReceiveMessage, map[string]string{"text": "hi"})
	require.Equal(t, 2, n)
	require.Equal(t, []string{models.EventReceiveMessage}, a1.events())
	require.Equal(t, []string{models.EventReceiveMessage}, a2.events())
	require.Empty(t, b.events())

	data := a1.frames[0].Data.(map[string]any)
	require.Equal(t, "hi", data["text"])
}

func TestDeliverSkipsClosedConnections(t *testing.T) {
	live, dead := &sink{id: "live"}, &sink{id: "dead", closed: true}
	r := NewRouter(&table{rooms: map[string][]presence.Conn{"room": {live, dead}}})

	require.Equal(t, 1, r.Deliver(context.Background(), "room", "x", nil))
	require.Len(t, live.events(), 1)
	require.Equal(t, 0, r.Deliver(context.Background(), "empty", "x", nil))
	require.Equal(t, 0, r.Deliver(context.Background(), "", "x", nil))
}

func TestDeliverToIdentitiesDedupes(t *testing.T) {
	a, b := &sink{id: "a"}, &sink{id: "b"}
	r := NewRouter(&table{rooms: map[string][]presence.Conn{"A": {a}, "B": {b}}})

	n := r.DeliverToIdentities(context.Background(), []string{"A", "B", "A"}, models.EventRefreshChatList, nil)
	require.Equal(t, 2, n)
	require.Len(t, a.events(), 1)
	require.Len(t, b.events(), 1)
}

func TestBroadcastExcept(t *testing.T) {
	a, b, c := &sink{id: "a"}, &sink{id: "b"}, &sink{id: "c"}
	r := NewRouter(&table{all: []presence.Conn{a, b, c}})

	require.Equal(t, 2, r.Broadcast(context.Background(), models.EventUserOnline, "A", "a"))
	require.Empty(t, a.events())
	require.Len(t, b.events(), 1)
	require.Len(t, c.events(), 1)
}

func TestDeliverKeepsSubmissionOrderPerRoom(t *testing.T) {
	s := &sink{id: "s"}
	r := NewRouter(&table{rooms: map[string][]presence.Conn{"room": {s}}})
	for i := 0; i < 50; i++ {
		r.Deliver(context.Background(), "room", fmt.Sprintf("e%02d", i), nil)
	}
	got := s.events()
	require.Len(t, got, 50)
	for i, e := range got {
		require.Equal(t, fmt.Sprintf("e%02d", i), e)
	}
}
