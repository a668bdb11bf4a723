// Package relay forwards transient signals (call control, typing) to a
// target's personal room and keeps the call history.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store"
)

// HistoryLimit is how many call log entries History returns.
const HistoryLimit = 50

// outbound maps client signal events to the event the target receives.
var outbound = map[string]string{
	models.EventCallStart:  models.EventCallIncoming,
	models.EventCallAccept: models.EventCallAccepted,
	models.EventCallReject: models.EventCallRejected,
	models.EventCallEnd:    models.EventCallEnded,
	models.EventTyping:     models.EventTyping,
	models.EventStopTyping: models.EventStopTyping,
}

// Outbound returns the event delivered for the inbound signal event.
func Outbound(event string) (string, bool) {
	out, ok := outbound[event]
	return out, ok
}

// Typing is the payload of typing and stopTyping.
type Typing struct {
	From string `json:"from"`
}

// MemberLister resolves group members for group calls.
type MemberLister interface {
	Members(ctx context.Context, groupID string) ([]string, error)
}

// Relay is stateless apart from its collaborators.
type Relay struct {
	out     room.Deliverer
	calls   store.CallLogRepository
	members MemberLister
	now     func() time.Time
}

// New creates a relay. members may be nil when group calls are unused.
func New(out room.Deliverer, calls store.CallLogRepository, members MemberLister) *Relay {
	return &Relay{
		out:     out,
		calls:   calls,
		members: members,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (r *Relay) SetClock(now func() time.Time) {
	r.now = now
}

type target struct {
	From    string `json:"from"`
	To      string `json:"to"`
	GroupID string `json:"groupId"`
}

// Signal forwards a call signal unchanged to the personal room named by its
// "to" field, or to every member but the sender when it names a groupId.
// Unknown events and payloads without a target are dropped silently and
// report zero deliveries.
func (r *Relay) Signal(ctx context.Context, event string, payload json.RawMessage) int {
	out, ok := outbound[event]
	if !ok || event == models.EventTyping || event == models.EventStopTyping {
		return 0
	}
	var t target
	if err := json.Unmarshal(payload, &t); err != nil {
		log.Debug("drop signal", "event", event, "err", err)
		return 0
	}
	if t.GroupID != "" && r.members != nil {
		members, err := r.members.Members(ctx, t.GroupID)
		if err != nil {
			log.Debug("drop group signal", "event", event, "group", t.GroupID, "err", err)
			return 0
		}
		from := identity.Normalize(t.From)
		n := 0
		for _, m := range members {
			if m != from {
				n += r.out.DeliverToIdentity(ctx, m, out, payload)
			}
		}
		return n
	}
	to := identity.Normalize(t.To)
	if to == "" {
		return 0
	}
	return r.out.DeliverToIdentity(ctx, to, out, payload)
}

// Typing relays typing or stopTyping from one identity to another.
func (r *Relay) Typing(ctx context.Context, event, from, to string) int {
	if event != models.EventTyping && event != models.EventStopTyping {
		return 0
	}
	from, to = identity.Normalize(from), identity.Normalize(to)
	if from == "" || to == "" {
		return 0
	}
	return r.out.DeliverToIdentity(ctx, to, event, Typing{From: from})
}

// LogCall stores a finished call. Unknown types and statuses fall back to
// voice and ended.
func (r *Relay) LogCall(ctx context.Context, c *models.CallLog) error {
	c.From, c.To = identity.Normalize(c.From), identity.Normalize(c.To)
	if c.From == "" {
		return apperr.Required("from")
	}
	if c.To == "" {
		return apperr.Required("to")
	}
	c.Normalize()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if err := r.calls.Create(ctx, c); err != nil {
		log.Error("log call", "err", err)
		return err
	}
	return nil
}

// History returns the latest calls made or received by me, newest first.
func (r *Relay) History(ctx context.Context, me string) ([]models.CallLog, error) {
	me = identity.Normalize(me)
	if me == "" {
		return nil, apperr.Required("me")
	}
	calls, err := r.calls.ForIdentity(ctx, me, HistoryLimit)
	if err != nil {
		log.Error("call history", "err", err)
		return nil, err
	}
	if calls == nil {
		calls = []models.CallLog{}
	}
	return calls, nil
}
