package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store/memstore"
)

type sent struct {
	room    string
	event   string
	payload any
}

type outbox struct{ sent []sent }

func (o *outbox) Deliver(_ context.Context, room, event string, p any) int {
	o.sent = append(o.sent, sent{room, event, p})
	return 1
}
func (o *outbox) DeliverToIdentity(ctx context.Context, id, event string, p any) int {
	return o.Deliver(ctx, id, event, p)
}
func (o *outbox) DeliverToIdentities(ctx context.Context, ids []string, event string, p any) int {
	for _, id := range ids {
		o.Deliver(ctx, id, event, p)
	}
	return len(ids)
}
func (o *outbox) Broadcast(context.Context, string, any, string) int { return 0 }

type members map[string][]string

func (m members) Members(_ context.Context, id string) ([]string, error) {
	if ms, ok := m[id]; ok {
		return ms, nil
	}
	return nil, errors.New("no group")
}

func TestSignalForwardsUnchanged(t *testing.T) {
	out := &outbox{}
	r := New(out, memstore.New().CallLogs(), nil)
	payload := json.RawMessage(`{"from":"9990001111","to":"+91 9990002222","type":"video","offer":{"sdp":"x"}}`)

	require.Equal(t, 1, r.Signal(context.Background(), models.EventCallStart, payload))
	require.Equal(t, sent{"9990002222", models.EventCallIncoming, payload}, out.sent[0])

	for in, want := range map[string]string{
		models.EventCallAccept: models.EventCallAccepted,
		models.EventCallReject: models.EventCallRejected,
		models.EventCallEnd:    models.EventCallEnded,
	} {
		got, ok := Outbound(in)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestSignalDropsSilently(t *testing.T) {
	out := &outbox{}
	r := New(out, memstore.New().CallLogs(), nil)

	require.Zero(t, r.Signal(context.Background(), "call:unknown", json.RawMessage(`{"to":"9990002222"}`)))
	require.Zero(t, r.Signal(context.Background(), models.EventCallStart, json.RawMessage(`{"from":"1"}`)))
	require.Zero(t, r.Signal(context.Background(), models.EventCallStart, json.RawMessage(`not json`)))
	require.Empty(t, out.sent)
}

func TestGroupSignalFansOutToOtherMembers(t *testing.T) {
	out := &outbox{}
	r := New(out, memstore.New().CallLogs(), members{"g1": {"9990001111", "9990002222", "9990003333"}})

	n := r.Signal(context.Background(), models.EventCallStart, json.RawMessage(`{"from":"9990001111","groupId":"g1"}`))
	require.Equal(t, 2, n)
	require.Equal(t, "9990002222", out.sent[0].room)
	require.Equal(t, "9990003333", out.sent[1].room)

	require.Zero(t, r.Signal(context.Background(), models.EventCallStart, json.RawMessage(`{"from":"9990001111","groupId":"g2"}`)))
}

func TestTyping(t *testing.T) {
	out := &outbox{}
	r := New(out, memstore.New().CallLogs(), nil)

	require.Equal(t, 1, r.Typing(context.Background(), models.EventTyping, "9990001111", "9990002222"))
	require.Equal(t, sent{"9990002222", models.EventTyping, Typing{From: "9990001111"}}, out.sent[0])
	require.Zero(t, r.Typing(context.Background(), models.EventStopTyping, "9990001111", ""))
	require.Zero(t, r.Typing(context.Background(), models.EventCallStart, "9990001111", "9990002222"))
}

func TestCallLogHistory(t *testing.T) {
	ctx := context.Background()
	r := New(&outbox{}, memstore.New().CallLogs(), nil)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < HistoryLimit+5; i++ {
		c := &models.CallLog{From: "9990001111", To: "9990002222", Type: "hologram", Status: "", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, r.LogCall(ctx, c))
		require.Equal(t, models.CallVoice, c.Type)
		require.Equal(t, models.CallEnded, c.Status)
	}
	require.NoError(t, r.LogCall(ctx, &models.CallLog{From: "9990003333", To: "9990004444", CreatedAt: base}))

	calls, err := r.History(ctx, "9990002222")
	require.NoError(t, err)
	require.Len(t, calls, HistoryLimit)
	require.Equal(t, base.Add(time.Duration(HistoryLimit+4)*time.Minute), calls[0].CreatedAt)

	calls, err = r.History(ctx, "9990005555")
	require.NoError(t, err)
	require.Equal(t, []models.CallLog{}, calls)

	err = r.LogCall(ctx, &models.CallLog{To: "9990002222"})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
