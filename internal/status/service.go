// Package status implements ephemeral status posts: publishing, per-viewer
// acknowledgment, the blocked-aware feed and expiry.
package status

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store"
)

// ViewedEvent is the payload of statusViewed.
type ViewedEvent struct {
	StatusID string    `json:"statusId"`
	By       string    `json:"by"`
	At       time.Time `json:"at"`
}

// DeletedEvent is the payload of statusDeleted.
type DeletedEvent struct {
	StatusID string `json:"statusId"`
}

// Service publishes and expires status posts.
type Service struct {
	store store.Store
	out   room.Deliverer
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates the service. A non-positive ttl falls back to
// models.DefaultStatusTTL.
func NewService(st store.Store, out room.Deliverer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = models.DefaultStatusTTL
	}
	return &Service{
		store: st,
		out:   out,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Post publishes a status that expires ttl after now and announces it to
// every connection.
func (s *Service) Post(ctx context.Context, owner, text, image string) (*models.Status, error) {
	owner = identity.Normalize(owner)
	if owner == "" {
		return nil, apperr.Required("phone")
	}
	if strings.TrimSpace(text) == "" && image == "" {
		return nil, apperr.Required("text")
	}
	s.sweep(ctx)

	now := s.now()
	st := &models.Status{
		Phone:     owner,
		Text:      text,
		Image:     image,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Views:     []models.StatusView{},
	}
	if err := s.store.Statuses().Create(ctx, st); err != nil {
		log.Error("post status", "err", err)
		return nil, err
	}
	s.out.Broadcast(ctx, models.EventStatusNew, st, "")
	return st, nil
}

// View records that viewer opened the status, keeping one entry per viewer
// with the latest time, and announces it to every connection.
func (s *Service) View(ctx context.Context, statusID, viewer string) (*models.Status, error) {
	viewer = identity.Normalize(viewer)
	if statusID == "" {
		return nil, apperr.Required("statusId")
	}
	if viewer == "" {
		return nil, apperr.Required("phone")
	}
	now := s.now()
	if _, err := s.active(ctx, statusID, now); err != nil {
		return nil, err
	}
	st, err := s.store.Statuses().RecordView(ctx, statusID, viewer, now)
	if err != nil {
		log.Error("record status view", "status", statusID, "err", err)
		return nil, err
	}
	s.out.Broadcast(ctx, models.EventStatusViewed, ViewedEvent{StatusID: statusID, By: viewer, At: now}, "")
	return st, nil
}

// Views lists who opened a status.
func (s *Service) Views(ctx context.Context, statusID string) ([]models.StatusView, error) {
	if statusID == "" {
		return nil, apperr.Required("statusId")
	}
	st, err := s.active(ctx, statusID, s.now())
	if err != nil {
		return nil, err
	}
	return st.Views, nil
}

// Feed returns the unexpired statuses me may see, newest first: posts of
// identities me blocked and of identities that blocked me are left out.
func (s *Service) Feed(ctx context.Context, me string) ([]models.Status, error) {
	me = identity.Normalize(me)
	if me == "" {
		return nil, apperr.Required("me")
	}
	s.sweep(ctx)

	active, err := s.store.Statuses().Active(ctx, s.now())
	if err != nil {
		log.Error("status feed", "err", err)
		return nil, err
	}
	if len(active) == 0 {
		return []models.Status{}, nil
	}

	owners := make([]string, 0, len(active)+1)
	owners = append(owners, me)
	for _, st := range active {
		owners = append(owners, st.Phone)
	}
	users, err := s.store.Users().FindMany(ctx, owners)
	if err != nil {
		log.Error("status feed owners", "err", err)
		return nil, err
	}
	byPhone := make(map[string]*models.User, len(users))
	for i := range users {
		byPhone[users[i].Phone] = &users[i]
	}
	viewer := byPhone[me]

	feed := make([]models.Status, 0, len(active))
	for _, st := range active {
		if st.Phone == "" || viewer.HasBlocked(st.Phone) || byPhone[st.Phone].HasBlocked(me) {
			continue
		}
		feed = append(feed, st)
	}
	return feed, nil
}

// Delete removes a status. Only its owner may delete it.
func (s *Service) Delete(ctx context.Context, statusID, requester string) error {
	requester = identity.Normalize(requester)
	if statusID == "" {
		return apperr.Required("statusId")
	}
	if requester == "" {
		return apperr.Required("phone")
	}
	st, err := s.store.Statuses().FindByID(ctx, statusID)
	if err != nil {
		return err
	}
	if st.Phone != requester {
		return &apperr.ForbiddenError{}
	}
	if err := s.store.Statuses().Delete(ctx, statusID); err != nil {
		log.Error("delete status", "status", statusID, "err", err)
		return err
	}
	s.out.Broadcast(ctx, models.EventStatusDeleted, DeletedEvent{StatusID: statusID}, "")
	return nil
}

// Sweep deletes every expired status and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.Statuses().DeleteExpired(ctx, s.now())
}

func (s *Service) sweep(ctx context.Context) {
	if n, err := s.Sweep(ctx); err != nil {
		log.Warn("sweep expired statuses", "err", err)
	} else if n > 0 {
		log.Debug("expired statuses removed", "count", n)
	}
}

// active returns the status unless it is missing or expired.
func (s *Service) active(ctx context.Context, statusID string, now time.Time) (*models.Status, error) {
	st, err := s.store.Statuses().FindByID(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if st.Expired(now) {
		return nil, &apperr.NotFoundError{Resource: "status", ID: statusID}
	}
	return st, nil
}
