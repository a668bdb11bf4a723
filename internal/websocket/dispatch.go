package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/conversation"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/models"
)

// inbound is a client frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId"`
}

// handlerFunc handles one inbound event. Its result becomes the ack data.
type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		models.EventJoin:              h.join,
		models.EventGetStatus:         h.getStatus,
		models.EventSendMessage:       h.sendMessage,
		models.EventSendGroupMessage:  h.sendGroupMessage,
		models.EventSendFile:          h.sendFile,
		models.EventMarkSeen:          h.markSeen,
		models.EventDeleteForMe:       h.deleteForMe,
		models.EventDeleteForEveryone: h.deleteForEveryone,
		models.EventCreateGroup:       h.createGroup,
		models.EventTyping:            h.typing(models.EventTyping),
		models.EventStopTyping:        h.typing(models.EventStopTyping),
		models.EventCallStart:         h.signal(models.EventCallStart),
		models.EventCallAccept:        h.signal(models.EventCallAccept),
		models.EventCallReject:        h.signal(models.EventCallReject),
		models.EventCallEnd:           h.signal(models.EventCallEnd),
	}
}

// dispatch runs the handler of one frame and answers its ackId.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Debug("drop malformed frame", "conn", c.ID(), "err", err)
		metrics.InboundEvents.WithLabelValues("malformed", apperr.KindValidation).Inc()
		return
	}

	handle, ok := h.handlers[in.Event]
	var (
		data any
		err  error
	)
	if ok {
		data, err = handle(h.ctx, c, in.Data)
	} else {
		err = &apperr.ValidationError{Field: "event", Message: fmt.Sprintf("unknown event %q", in.Event)}
		in.Event = "unknown"
	}

	result := "ok"
	if err != nil {
		result = apperr.KindOf(err)
		log.Debug("event failed", "event", in.Event, "conn", c.ID(), "kind", result, "err", err)
	}
	metrics.InboundEvents.WithLabelValues(in.Event, result).Inc()

	if in.AckID == "" {
		return
	}
	ack := models.Ack{AckID: in.AckID, OK: err == nil, Data: data}
	if err != nil {
		ack.Data = nil
		ack.Error = &models.AckError{Kind: result, Message: err.Error()}
	}
	c.SendEvent(models.EventAck, ack)
}

// actor resolves who performs an event: the claimed identity, or the bound
// identity when none is claimed. Authenticated connections may only act as
// their token's identity.
func (h *Hub) actor(c *Client, claimed string) (string, error) {
	id := identity.Normalize(claimed)
	if id == "" {
		id = h.svc.Presence.IdentityOf(c.ID())
	}
	if c.authIdentity != "" && id != c.authIdentity {
		return "", &apperr.ForbiddenError{}
	}
	return id, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Required("data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &apperr.ValidationError{Field: "data", Message: err.Error()}
	}
	return nil
}

// decodeIdentity accepts a bare identity string or number, or {"phone": ...}.
func decodeIdentity(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return identity.Normalize(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return identity.Normalize(n.String()), nil
	}
	var obj struct {
		Phone string `json:"phone"`
	}
	if err := decode(data, &obj); err != nil {
		return "", err
	}
	return identity.Normalize(obj.Phone), nil
}

func (h *Hub) join(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	id, err := decodeIdentity(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperr.Required("identity")
	}
	if c.authIdentity != "" && id != c.authIdentity {
		return nil, &apperr.ForbiddenError{}
	}
	if err := h.svc.Presence.Bind(ctx, c, id); err != nil {
		return nil, err
	}
	log.Info("identity joined", "identity", id, "conn", c.ID())
	return map[string]string{"phone": id}, nil
}

func (h *Hub) getStatus(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	id, err := decodeIdentity(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperr.Required("phone")
	}
	p, err := h.svc.Presence.IsOnline(ctx, id)
	if err != nil {
		return nil, err
	}
	c.SendEvent(models.EventStatusResponse, p)
	return p, nil
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p struct {
		From string `json:"from"`
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	from, err := h.actor(c, p.From)
	if err != nil {
		return nil, err
	}
	return h.svc.Conversations.Send(ctx, from, p.To, p.Text)
}

func (h *Hub) sendGroupMessage(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p struct {
		GroupID string `json:"groupId"`
		From    string `json:"from"`
		Text    string `json:"text"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	from, err := h.actor(c, p.From)
	if err != nil {
		return nil, err
	}
	return h.svc.Conversations.SendGroupMessage(ctx, p.GroupID, from, p.Text)
}

func (h *Hub) sendFile(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var in conversation.FileInput
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	from, err := h.actor(c, in.From)
	if err != nil {
		return nil, err
	}
	in.From = from
	return h.svc.Conversations.SendFile(ctx, in)
}

// markSeen accepts {me, other} as well as {from, to} where from is the
// reader.
func (h *Hub) markSeen(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p struct {
		Me    string `json:"me"`
		Other string `json:"other"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.Me == "" && p.Other == "" {
		p.Me, p.Other = p.From, p.To
	}
	me, err := h.actor(c, p.Me)
	if err != nil {
		return nil, err
	}
	n, err := h.svc.Conversations.MarkSeen(ctx, me, p.Other)
	if err != nil {
		return nil, err
	}
	return map[string]int64{"updated": n}, nil
}

type deletePayload struct {
	MessageID string `json:"messageId"`
	Phone     string `json:"phone"`
}

func (h *Hub) deleteForMe(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p deletePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	me, err := h.actor(c, p.Phone)
	if err != nil {
		return nil, err
	}
	return h.svc.Conversations.DeleteForMe(ctx, p.MessageID, me)
}

func (h *Hub) deleteForEveryone(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p deletePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	requester, err := h.actor(c, p.Phone)
	if err != nil {
		return nil, err
	}
	return h.svc.Conversations.DeleteForEveryone(ctx, p.MessageID, requester)
}

func (h *Hub) createGroup(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var p struct {
		Name      string   `json:"name"`
		Members   []string `json:"members"`
		CreatedBy string   `json:"createdBy"`
	}
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	creator, err := h.actor(c, p.CreatedBy)
	if err != nil {
		return nil, err
	}
	return h.svc.Groups.Create(ctx, p.Name, p.Members, creator)
}

// typing relays typing or stopTyping. Bad payloads are dropped without an
// error, like the call signals.
func (h *Hub) typing(event string) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
		var p struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if json.Unmarshal(data, &p) != nil {
			return nil, nil
		}
		from, err := h.actor(c, p.From)
		if err != nil {
			return nil, err
		}
		return map[string]int{"delivered": h.svc.Relay.Typing(ctx, event, from, p.To)}, nil
	}
}

// signal forwards a call control payload unchanged.
func (h *Hub) signal(event string) handlerFunc {
	return func(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
		if c.authIdentity != "" {
			var p struct {
				From string `json:"from"`
			}
			if json.Unmarshal(data, &p) == nil && p.From != "" && identity.Normalize(p.From) != c.authIdentity {
				return nil, &apperr.ForbiddenError{}
			}
		}
		return map[string]int{"delivered": h.svc.Relay.Signal(ctx, event, data)}, nil
	}
}
