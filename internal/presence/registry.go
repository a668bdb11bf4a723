// Package presence tracks live connections, the identity bound to each, the
// rooms they joined, and the online/offline transitions of identities.
package presence

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

// Conn is one live transport session.
type Conn interface {
	ID() string
	// Send queues a frame without blocking. It reports false when the
	// connection is closed or its buffer is full.
	Send(frame []byte) bool
}

// Broadcaster fans presence events out to every connection except one.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any, exceptConnID string) int
}

// GroupLister returns the group rooms an identity belongs to.
type GroupLister interface {
	RoomsFor(ctx context.Context, identity string) ([]string, error)
}

// OfflineEvent is the payload of userOffline.
type OfflineEvent struct {
	Phone    string    `json:"phone"`
	LastSeen time.Time `json:"lastSeen"`
}

type entry struct {
	conn     Conn
	identity string
	rooms    map[string]struct{}
}

const announceShards = 64

// Registry owns the connection, identity and room tables. All table access
// goes through its methods; the online transition of an identity is decided
// under one mutex.
type Registry struct {
	mu         sync.Mutex
	conns      map[string]*entry
	byIdentity map[string]map[string]Conn
	rooms      map[string]map[string]Conn
	lastSeen   map[string]time.Time
	// announced holds the identities peers were last told are online.
	announced map[string]struct{}

	// announceMu serializes the store write and broadcast of each
	// identity's transitions, so peers and the stored flag end on the latest
	// in-memory state.
	announceMu [announceShards]sync.Mutex

	users       store.UserRepository
	groups      GroupLister
	broadcaster Broadcaster
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(users store.UserRepository, groups GroupLister) *Registry {
	return &Registry{
		conns:      make(map[string]*entry),
		byIdentity: make(map[string]map[string]Conn),
		rooms:      make(map[string]map[string]Conn),
		lastSeen:   make(map[string]time.Time),
		announced:  make(map[string]struct{}),
		users:      users,
		groups:     groups,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster wires the router used for userOnline/userOffline.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	r.broadcaster = b
	r.mu.Unlock()
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register tracks a freshly connected, not yet identified connection.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; ok {
		return
	}
	r.conns[c.ID()] = &entry{conn: c, rooms: make(map[string]struct{})}
	metrics.Connections.Inc()
}

// Bind associates c with identity, joins it to the personal room and to one
// room per group membership, and announces the identity online when this is
// its first connection. Binding an already bound connection to another
// identity releases the previous one first. c must be registered.
func (r *Registry) Bind(ctx context.Context, c Conn, identity string) error {
	if identity == "" {
		return apperr.Required("identity")
	}
	groupRooms, err := r.groups.RoomsFor(ctx, identity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	e, ok := r.conns[c.ID()]
	if !ok {
		r.mu.Unlock()
		return &apperr.NotFoundError{Resource: "connection", ID: c.ID()}
	}
	var released string
	if e.identity != "" && e.identity != identity {
		if r.detachLocked(e) {
			released = e.identity
		}
	}
	e.identity = identity
	set := r.byIdentity[identity]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]Conn)
		r.byIdentity[identity] = set
	}
	set[c.ID()] = c
	r.joinLocked(e, identity)
	for _, room := range groupRooms {
		r.joinLocked(e, room)
	}
	if first {
		metrics.OnlineIdentities.Inc()
	}
	r.mu.Unlock()

	if released != "" {
		r.announce(ctx, released, c.ID())
	}
	if first {
		r.announce(ctx, identity, c.ID())
	}
	return nil
}

// Unbind forgets c. When c was the last connection of its identity the
// identity is stored offline with lastSeen=now and userOffline is
// broadcast. Unknown or never bound connections are a no-op beyond removal.
func (r *Registry) Unbind(ctx context.Context, c Conn) {
	r.mu.Lock()
	e, ok := r.conns[c.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c.ID())
	metrics.Connections.Dec()
	identity := e.identity
	last := identity != "" && r.detachLocked(e)
	r.mu.Unlock()

	if last {
		r.announce(ctx, identity, c.ID())
	}
}

// detachLocked removes e from its identity and every room. It reports
// whether that identity has no connection left.
func (r *Registry) detachLocked(e *entry) bool {
	for room := range e.rooms {
		r.leaveLocked(e, room)
	}
	set := r.byIdentity[e.identity]
	delete(set, e.conn.ID())
	if len(set) > 0 {
		return false
	}
	delete(r.byIdentity, e.identity)
	r.lastSeen[e.identity] = r.now()
	metrics.OnlineIdentities.Dec()
	return true
}

// announce stores the current presence of identity and broadcasts it when
// it differs from what peers were last told. A failed store write is logged
// and the broadcast still goes out: the live tables decide who is online,
// and the next transition rewrites the stored flag.
func (r *Registry) announce(ctx context.Context, identity, exceptConnID string) {
	mu := &r.announceMu[shard(identity)]
	mu.Lock()
	defer mu.Unlock()

	r.mu.Lock()
	online := len(r.byIdentity[identity]) > 0
	_, told := r.announced[identity]
	var lastSeen *time.Time
	if online {
		r.announced[identity] = struct{}{}
	} else {
		delete(r.announced, identity)
		if ls, ok := r.lastSeen[identity]; ok {
			lastSeen = &ls
		}
	}
	b := r.broadcaster
	r.mu.Unlock()

	if err := r.users.SetPresence(ctx, identity, online, lastSeen); err != nil {
		log.Error("store presence", "identity", identity, "online", online, "err", err)
	}
	if online == told || b == nil {
		return
	}
	if online {
		log.Debug("identity online", "identity", identity, "conn", exceptConnID)
		b.Broadcast(ctx, models.EventUserOnline, identity, exceptConnID)
		return
	}
	log.Debug("identity offline", "identity", identity)
	seen := r.now()
	if lastSeen != nil {
		seen = *lastSeen
	}
	b.Broadcast(ctx, models.EventUserOffline, OfflineEvent{Phone: identity, LastSeen: seen}, exceptConnID)
}

func (r *Registry) joinLocked(e *entry, room string) {
	set := r.rooms[room]
	if set == nil {
		set = make(map[string]Conn)
		r.rooms[room] = set
	}
	set[e.conn.ID()] = e.conn
	e.rooms[room] = struct{}{}
}

func (r *Registry) leaveLocked(e *entry, room string) {
	if set := r.rooms[room]; set != nil {
		delete(set, e.conn.ID())
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(e.rooms, room)
}

// JoinRoom joins every live connection of identity to room.
func (r *Registry) JoinRoom(identity, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byIdentity[identity] {
		if e, ok := r.conns[id]; ok {
			r.joinLocked(e, room)
		}
	}
}

// LeaveRoom removes every live connection of identity from room. The
// personal room cannot be left.
func (r *Registry) LeaveRoom(identity, room string) {
	if room == identity {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byIdentity[identity] {
		if e, ok := r.conns[id]; ok {
			r.leaveLocked(e, room)
		}
	}
}

// IsOnline answers the point-in-time presence of identity. The online flag
// comes from the live tables; lastSeen falls back to the stored record.
func (r *Registry) IsOnline(ctx context.Context, identity string) (models.Presence, error) {
	r.mu.Lock()
	online := len(r.byIdentity[identity]) > 0
	ls, known := r.lastSeen[identity]
	r.mu.Unlock()

	p := models.Presence{Phone: identity, Online: online}
	if online {
		return p, nil
	}
	if known {
		p.LastSeen = &ls
		return p, nil
	}
	u, err := r.users.FindByIdentity(ctx, identity)
	if apperr.IsNotFound(err) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	p.LastSeen = u.LastSeen
	return p, nil
}

// Online reports whether identity has at least one live connection.
func (r *Registry) Online(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity[identity]) > 0
}

// IdentityOf returns the identity bound to the connection id, if any.
func (r *Registry) IdentityOf(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[connID]; ok {
		return e.identity
	}
	return ""
}

// ConnectionsFor returns the live connections of identity.
func (r *Registry) ConnectionsFor(identity string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return collect(r.byIdentity[identity], "")
}

// ConnectionsIn returns the connections joined to room.
func (r *Registry) ConnectionsIn(room string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return collect(r.rooms[room], "")
}

// AllConnections returns every registered connection except exceptConnID.
func (r *Registry) AllConnections(exceptConnID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.conns))
	for id, e := range r.conns {
		if id != exceptConnID {
			out = append(out, e.conn)
		}
	}
	return out
}

// Rooms returns the rooms c joined.
func (r *Registry) Rooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	return out
}

// Close drops every table. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics.Connections.Sub(float64(len(r.conns)))
	metrics.OnlineIdentities.Sub(float64(len(r.byIdentity)))
	r.conns = make(map[string]*entry)
	r.byIdentity = make(map[string]map[string]Conn)
	r.rooms = make(map[string]map[string]Conn)
	r.announced = make(map[string]struct{})
}

func collect(set map[string]Conn, except string) []Conn {
	out := make([]Conn, 0, len(set))
	for id, c := range set {
		if id != except {
			out = append(out, c)
		}
	}
	return out
}

func shard(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % announceShards
}
