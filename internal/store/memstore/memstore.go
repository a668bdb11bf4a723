// Package memstore is an in-process Store used in development mode and by
// the service tests. Every read returns copies; nothing handed out aliases
// the stored state.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

func init() {
	store.Register(store.Plugin{
		Name: config.DatastoreMemory,
		Loader: func(ctx context.Context, cfg *config.Config) (store.Store, error) {
			return New(), nil
		},
	})
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	messages map[string]*models.Message
	groups   map[string]*models.Group
	statuses map[string]*models.Status
	calls    []models.CallLog

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		messages: make(map[string]*models.Message),
		groups:   make(map[string]*models.Group),
		statuses: make(map[string]*models.Status),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Users() store.UserRepository       { return userRepo{s} }
func (s *Store) Messages() store.MessageRepository { return messageRepo{s} }
func (s *Store) Groups() store.GroupRepository     { return groupRepo{s} }
func (s *Store) Statuses() store.StatusRepository  { return statusRepo{s} }
func (s *Store) CallLogs() store.CallLogRepository { return callRepo{s} }
func (s *Store) Close(ctx context.Context) error   { return nil }

// --- copy helpers ---

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Blocked = slices.Clone(u.Blocked)
	c.Favourites = slices.Clone(u.Favourites)
	c.Pinned = slices.Clone(u.Pinned)
	c.Archived = slices.Clone(u.Archived)
	c.Muted = slices.Clone(u.Muted)
	c.DeletedChats = slices.Clone(u.DeletedChats)
	if u.LastSeen != nil {
		ls := *u.LastSeen
		c.LastSeen = &ls
	}
	return &c
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	c.DeletedFor = slices.Clone(m.DeletedFor)
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	return &c
}

func cloneGroup(g *models.Group) *models.Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

func cloneStatus(st *models.Status) *models.Status {
	c := *st
	c.Views = slices.Clone(st.Views)
	return &c
}

// --- users ---

type userRepo struct{ s *Store }

func (r userRepo) getOrCreate(phone string) *models.User {
	u, ok := r.s.users[phone]
	if !ok {
		now := r.s.now()
		u = &models.User{Phone: phone, CreatedAt: now, UpdatedAt: now}
		r.s.users[phone] = u
	}
	return u
}

func (r userRepo) FindByIdentity(ctx context.Context, phone string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[phone]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "user", ID: phone}
	}
	return cloneUser(u), nil
}

func (r userRepo) FindMany(ctx context.Context, phones []string) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(phones))
	for _, p := range phones {
		if u, ok := r.s.users[p]; ok {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (r userRepo) List(ctx context.Context, exclude []string) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(r.s.users))
	for phone, u := range r.s.users {
		if phone == "" || slices.Contains(exclude, phone) {
			continue
		}
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

func (r userRepo) Upsert(ctx context.Context, phone, name string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.getOrCreate(phone)
	if name != "" {
		u.Name = name
		u.UpdatedAt = r.s.now()
	}
	return cloneUser(u), nil
}

func (r userRepo) UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.getOrCreate(phone)
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.About != nil {
		u.About = *upd.About
	}
	if upd.Photo != nil {
		u.Photo = *upd.Photo
	}
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

func (r userRepo) SetPresence(ctx context.Context, phone string, online bool, lastSeen *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.getOrCreate(phone)
	u.Online = online
	if lastSeen != nil {
		ls := *lastSeen
		u.LastSeen = &ls
	}
	return nil
}

func (r userRepo) UpdateList(ctx context.Context, phone string, list models.ChatList, targets []string, add bool) ([]string, error) {
	if !list.Valid() {
		return nil, &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.getOrCreate(phone)
	if add {
		u.SetList(list, models.AddToSet(u.List(list), targets...))
	} else {
		u.SetList(list, models.RemoveFromSet(u.List(list), targets...))
	}
	u.UpdatedAt = r.s.now()
	return slices.Clone(u.List(list)), nil
}

func (r userRepo) ClearList(ctx context.Context, phone string, list models.ChatList) error {
	if !list.Valid() {
		return &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[phone]; ok {
		u.SetList(list, nil)
		u.UpdatedAt = r.s.now()
	}
	return nil
}

// --- messages ---

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, msg *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.s.now()
	}
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}
	r.s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (r messageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "message", ID: id}
	}
	return cloneMessage(m), nil
}

// collect returns copies of matching messages sorted oldest first.
func (r messageRepo) collect(match func(*models.Message) bool) []models.Message {
	var out []models.Message
	for _, m := range r.s.messages {
		if match(m) {
			out = append(out, *cloneMessage(m))
		}
	}
	models.SortMessages(out)
	return out
}

func between(m *models.Message, a, b string) bool {
	if m.IsGroup() {
		return false
	}
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

func (r messageRepo) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.collect(func(m *models.Message) bool { return between(m, a, b) }), nil
}

func (r messageRepo) GroupConversation(ctx context.Context, groupID string) ([]models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.collect(func(m *models.Message) bool {
		return m.GroupID == groupID && !m.DeletedForEveryone
	}), nil
}

func matchSeen(m *models.Message, f store.SeenFilter) bool {
	if m.IsGroup() || m.From != f.From || m.To != f.To {
		return false
	}
	if f.SkipDeleted && (m.DeletedForEveryone || m.IsDeletedFor(f.To)) {
		return false
	}
	return true
}

func (r messageRepo) MarkSeen(ctx context.Context, f store.SeenFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if !m.Seen && matchSeen(m, f) {
			m.Seen = true
			n++
		}
	}
	return n, nil
}

func (r messageRepo) MarkLatestUnseen(ctx context.Context, f store.SeenFilter) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msgs := r.collect(func(m *models.Message) bool { return matchSeen(m, f) })
	if len(msgs) == 0 {
		return nil, nil
	}
	m := r.s.messages[msgs[len(msgs)-1].ID]
	m.Seen = false
	return cloneMessage(m), nil
}

func (r messageRepo) AddDeletedFor(ctx context.Context, id, identity string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "message", ID: id}
	}
	m.DeletedFor = models.AddToSet(m.DeletedFor, identity)
	return cloneMessage(m), nil
}

func (r messageRepo) Tombstone(ctx context.Context, id string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "message", ID: id}
	}
	m.ApplyTombstone()
	return cloneMessage(m), nil
}

func (r messageRepo) Latest(ctx context.Context, me, other string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := r.collect(func(m *models.Message) bool {
		return between(m, me, other) && !m.DeletedForEveryone && !m.IsDeletedFor(me)
	})
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[len(msgs)-1], nil
}

func (r messageRepo) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, m := range r.s.messages {
		if !m.IsGroup() && m.From == from && m.To == to && !m.Seen && !m.IsDeletedFor(to) {
			n++
		}
	}
	return n, nil
}

func (r messageRepo) LatestInGroup(ctx context.Context, groupID string) (*models.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := r.collect(func(m *models.Message) bool {
		return m.GroupID == groupID && !m.DeletedForEveryone
	})
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[len(msgs)-1], nil
}

func (r messageRepo) CountGroupUnseen(ctx context.Context, groupID, me string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, m := range r.s.messages {
		if m.GroupID == groupID && !m.Seen && m.From != me {
			n++
		}
	}
	return n, nil
}

func (r messageRepo) DeleteForIdentity(ctx context.Context, me string, others []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.messages {
		if m.IsGroup() {
			continue
		}
		var hit bool
		if len(others) == 0 {
			hit = m.From == me || m.To == me
		} else {
			hit = (m.From == me && slices.Contains(others, m.To)) || (m.To == me && slices.Contains(others, m.From))
		}
		if hit {
			delete(r.s.messages, id)
			n++
		}
	}
	return n, nil
}

// --- groups ---

type groupRepo struct{ s *Store }

func (r groupRepo) Create(ctx context.Context, g *models.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = r.s.now()
	}
	r.s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (r groupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "group", ID: id}
	}
	return cloneGroup(g), nil
}

func (r groupRepo) ForMember(ctx context.Context, identity string) ([]models.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Group
	for _, g := range r.s.groups {
		if g.HasMember(identity) {
			out = append(out, *cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r groupRepo) AddMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "group", ID: id}
	}
	g.Members = models.AddToSet(g.Members, identities...)
	return cloneGroup(g), nil
}

func (r groupRepo) RemoveMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "group", ID: id}
	}
	g.Members = models.RemoveFromSet(g.Members, identities...)
	return cloneGroup(g), nil
}

// --- statuses ---

type statusRepo struct{ s *Store }

func (r statusRepo) Create(ctx context.Context, st *models.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st.ID = uuid.NewString()
	if st.Views == nil {
		st.Views = []models.StatusView{}
	}
	r.s.statuses[st.ID] = cloneStatus(st)
	return nil
}

func (r statusRepo) FindByID(ctx context.Context, id string) (*models.Status, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.statuses[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "status", ID: id}
	}
	return cloneStatus(st), nil
}

func (r statusRepo) Active(ctx context.Context, now time.Time) ([]models.Status, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Status
	for _, st := range r.s.statuses {
		if !st.Expired(now) {
			out = append(out, *cloneStatus(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r statusRepo) RecordView(ctx context.Context, id, viewer string, at time.Time) (*models.Status, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.statuses[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "status", ID: id}
	}
	st.RecordView(viewer, at)
	return cloneStatus(st), nil
}

func (r statusRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.statuses[id]; !ok {
		return &apperr.NotFoundError{Resource: "status", ID: id}
	}
	delete(r.s.statuses, id)
	return nil
}

func (r statusRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, st := range r.s.statuses {
		if st.Expired(now) {
			delete(r.s.statuses, id)
			n++
		}
	}
	return n, nil
}

// --- call logs ---

type callRepo struct{ s *Store }

func (r callRepo) Create(ctx context.Context, c *models.CallLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.calls = append(r.s.calls, *c)
	return nil
}

func (r callRepo) ForIdentity(ctx context.Context, identity string, limit int) ([]models.CallLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.CallLog
	for _, c := range r.s.calls {
		if c.From == identity || c.To == identity {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
