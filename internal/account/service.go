// Package account manages user records: registration, login, profiles and
// the contact directory.
package account

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/cache"
	"github.com/xelth-com/eckchat/internal/identity"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/room"
	"github.com/xelth-com/eckchat/internal/store"
	"github.com/xelth-com/eckchat/internal/utils"
)

// Contact is the public part of a user record.
type Contact struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Photo string `json:"photo,omitempty"`
	About string `json:"about,omitempty"`
}

// Session is the result of register and login. Token is empty when auth
// is disabled.
type Session struct {
	User  *models.User `json:"user"`
	Token string       `json:"token,omitempty"`
}

// Service owns account records.
type Service struct {
	users  store.UserRepository
	out    room.Deliverer
	chats  cache.ChatListCache
	secret string
	ttl    time.Duration
}

// NewService creates the account service. An empty secret issues no tokens.
func NewService(users store.UserRepository, out room.Deliverer, chats cache.ChatListCache, secret string) *Service {
	if chats == nil {
		chats = cache.Noop{}
	}
	return &Service{users: users, out: out, chats: chats, secret: secret, ttl: utils.DefaultTokenTTL}
}

// Register creates a new account. An existing phone is a validation error.
func (s *Service) Register(ctx context.Context, phone, name string) (*Session, error) {
	phone = identity.Normalize(phone)
	if phone == "" {
		return nil, apperr.Required("phone")
	}
	existing, err := s.users.FindByIdentity(ctx, phone)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, logged("find_user", err)
	}
	if existing != nil {
		return nil, &apperr.ValidationError{Field: "phone", Message: "user already exists"}
	}
	u, err := s.users.Upsert(ctx, phone, name)
	if err != nil {
		return nil, logged("register_user", err)
	}
	log.Info("user registered", "identity", phone)
	s.invalidateAll(ctx)
	return s.session(u)
}

// Login issues a session for an existing account.
func (s *Service) Login(ctx context.Context, phone string) (*Session, error) {
	phone = identity.Normalize(phone)
	if phone == "" {
		return nil, apperr.Required("phone")
	}
	u, err := s.users.FindByIdentity(ctx, phone)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, logged("find_user", err)
	}
	return s.session(u)
}

func (s *Service) session(u *models.User) (*Session, error) {
	if s.secret == "" {
		return &Session{User: u}, nil
	}
	token, err := utils.GeneratePhoneToken(u.Phone, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token}, nil
}

// Profile returns the user record, or nil when the identity is unknown.
func (s *Service) Profile(ctx context.Context, phone string) (*models.User, error) {
	phone = identity.Normalize(phone)
	if phone == "" {
		return nil, apperr.Required("phone")
	}
	u, err := s.users.FindByIdentity(ctx, phone)
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, logged("find_user", err)
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields, creating the user if needed,
// and announces the new profile to every connection.
func (s *Service) UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error) {
	phone = identity.Normalize(phone)
	if phone == "" {
		return nil, apperr.Required("phone")
	}
	u, err := s.users.UpdateProfile(ctx, phone, upd)
	if err != nil {
		return nil, logged("update_profile", err)
	}
	s.invalidateAll(ctx)
	s.out.Broadcast(ctx, models.EventProfileUpdated, models.ProfileUpdated{
		Phone: u.Phone,
		Name:  u.Name,
		About: u.About,
		Photo: u.Photo,
	}, "")
	return u, nil
}

// RemovePhoto clears the profile photo.
func (s *Service) RemovePhoto(ctx context.Context, phone string) (*models.User, error) {
	empty := ""
	return s.UpdateProfile(ctx, phone, models.ProfileUpdate{Photo: &empty})
}

// AddContact upserts a user record and tells every connection to refresh
// its chat list, since the new user shows up in all of them.
func (s *Service) AddContact(ctx context.Context, phone, name string) (*models.User, error) {
	phone = identity.Normalize(phone)
	if phone == "" {
		return nil, apperr.Required("phone")
	}
	u, err := s.users.Upsert(ctx, phone, name)
	if err != nil {
		return nil, logged("upsert_contact", err)
	}
	s.invalidateAll(ctx)
	s.out.Broadcast(ctx, models.EventRefreshChatList, nil, "")
	return u, nil
}

// invalidateAll drops every cached chat list. A user record shows up in the
// chat list of everyone else, so any change to one makes them all stale.
func (s *Service) invalidateAll(ctx context.Context) {
	if !s.chats.Available() {
		return
	}
	all, err := s.users.List(ctx, nil)
	if err != nil {
		log.Warn("chat list invalidation skipped", "err", err)
		return
	}
	ids := make([]string, 0, len(all))
	for _, other := range all {
		ids = append(ids, other.Phone)
	}
	if err := s.chats.Invalidate(ctx, ids...); err != nil {
		log.Warn("chat list invalidation failed", "err", err)
	}
}

// Contacts lists every other user's public profile.
func (s *Service) Contacts(ctx context.Context, me string) ([]Contact, error) {
	users, err := s.Users(ctx, me)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(users))
	for _, u := range users {
		out = append(out, Contact{Phone: u.Phone, Name: u.Name, Photo: u.Photo, About: u.About})
	}
	return out, nil
}

// Users lists every user except me.
func (s *Service) Users(ctx context.Context, me string) ([]models.User, error) {
	me = identity.Normalize(me)
	if me == "" {
		return nil, apperr.Required("me")
	}
	users, err := s.users.List(ctx, []string{me})
	if err != nil {
		return nil, logged("list_users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func logged(op string, err error) error {
	err = apperr.Persistence(op, err)
	log.Error("account operation failed", "op", op, "err", err)
	return err
}
