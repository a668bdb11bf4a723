// Package mongostore implements the persistence gateway on MongoDB. Chat
// lists, member sets and status views are stored inline as arrays.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

func init() {
	store.Register(store.Plugin{
		Name: config.DatastoreMongo,
		Loader: func(ctx context.Context, cfg *config.Config) (store.Store, error) {
			client, err := connect(ctx, cfg.Mongo.URI)
			if err != nil {
				return nil, err
			}
			if err := Migrate(ctx, client.Database(cfg.Mongo.Database)); err != nil {
				_ = client.Disconnect(ctx)
				return nil, err
			}
			return New(client, cfg.Mongo.Database), nil
		},
		Migrator: func(ctx context.Context, cfg *config.Config) error {
			client, err := connect(ctx, cfg.Mongo.URI)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)
			return Migrate(ctx, client.Database(cfg.Mongo.Database))
		},
	})
}

func connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

const (
	colUsers    = "users"
	colMessages = "messages"
	colGroups   = "groups"
	colStatuses = "statuses"
	colCallLogs = "call_logs"
)

// Migrate creates the collections and their indexes.
func Migrate(ctx context.Context, db *mongo.Database) error {
	log.Info("Running migration", "name", "mongo-schema")
	collections := map[string][]mongo.IndexModel{
		colUsers: {},
		colMessages: {
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "to", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colGroups: {
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		colStatuses: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "phone", Value: 1}}},
		},
		colCallLogs: {
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, indexes := range collections {
		// Already existing collections are fine.
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// Store is the MongoDB-backed store.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps a connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Users() store.UserRepository {
	return userRepo{s.db.Collection(colUsers)}
}
func (s *Store) Messages() store.MessageRepository {
	return messageRepo{s.db.Collection(colMessages)}
}
func (s *Store) Groups() store.GroupRepository {
	return groupRepo{s.db.Collection(colGroups)}
}
func (s *Store) Statuses() store.StatusRepository {
	return statusRepo{s.db.Collection(colStatuses)}
}
func (s *Store) CallLogs() store.CallLogRepository {
	return callRepo{s.db.Collection(colCallLogs)}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &apperr.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- users ---

type userDoc struct {
	Phone        string     `bson:"_id"`
	Name         string     `bson:"name"`
	About        string     `bson:"about"`
	Photo        string     `bson:"photo"`
	Online       bool       `bson:"online"`
	LastSeen     *time.Time `bson:"last_seen,omitempty"`
	Blocked      []string   `bson:"blocked"`
	Favourites   []string   `bson:"favourites"`
	Pinned       []string   `bson:"pinned_chats"`
	Archived     []string   `bson:"archived_chats"`
	Muted        []string   `bson:"muted_chats"`
	DeletedChats []string   `bson:"deleted_chats"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

// listFields maps each chat list to its array field.
var listFields = map[models.ChatList]string{
	models.ListBlocked:      "blocked",
	models.ListFavourites:   "favourites",
	models.ListPinned:       "pinned_chats",
	models.ListArchived:     "archived_chats",
	models.ListMuted:        "muted_chats",
	models.ListDeletedChats: "deleted_chats",
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		Phone:        d.Phone,
		Name:         d.Name,
		About:        d.About,
		Photo:        d.Photo,
		Online:       d.Online,
		LastSeen:     d.LastSeen,
		Blocked:      nonNil(d.Blocked),
		Favourites:   nonNil(d.Favourites),
		Pinned:       nonNil(d.Pinned),
		Archived:     nonNil(d.Archived),
		Muted:        nonNil(d.Muted),
		DeletedChats: nonNil(d.DeletedChats),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type userRepo struct{ col *mongo.Collection }

// upsert applies set to the user, creating it first when missing.
func (r userRepo) upsert(ctx context.Context, phone string, update bson.M) error {
	now := time.Now().UTC()
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = now
	update["$set"] = set
	update["$setOnInsert"] = bson.M{"created_at": now}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": phone}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (r userRepo) FindByIdentity(ctx context.Context, phone string) (*models.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": phone}).Decode(&doc); err != nil {
		return nil, apperr.Persistence("users.find", notFound(err, "user", phone))
	}
	return doc.toModel(), nil
}

func (r userRepo) findAll(ctx context.Context, op string, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]models.User, error) {
	cursor, err := r.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence(op, err)
	}
	out := make([]models.User, len(docs))
	for i := range docs {
		out[i] = *docs[i].toModel()
	}
	return out, nil
}

func (r userRepo) FindMany(ctx context.Context, phones []string) ([]models.User, error) {
	if len(phones) == 0 {
		return []models.User{}, nil
	}
	return r.findAll(ctx, "users.findMany", bson.M{"_id": bson.M{"$in": phones}})
}

func (r userRepo) List(ctx context.Context, exclude []string) ([]models.User, error) {
	filter := bson.M{"_id": bson.M{"$nin": append([]string{""}, exclude...)}}
	return r.findAll(ctx, "users.list", filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r userRepo) Upsert(ctx context.Context, phone, name string) (*models.User, error) {
	set := bson.M{}
	if name != "" {
		set["name"] = name
	}
	if err := r.upsert(ctx, phone, bson.M{"$set": set}); err != nil {
		return nil, apperr.Persistence("users.upsert", err)
	}
	return r.FindByIdentity(ctx, phone)
}

func (r userRepo) UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.About != nil {
		set["about"] = *upd.About
	}
	if upd.Photo != nil {
		set["photo"] = *upd.Photo
	}
	if err := r.upsert(ctx, phone, bson.M{"$set": set}); err != nil {
		return nil, apperr.Persistence("users.updateProfile", err)
	}
	return r.FindByIdentity(ctx, phone)
}

func (r userRepo) SetPresence(ctx context.Context, phone string, online bool, lastSeen *time.Time) error {
	set := bson.M{"online": online}
	if lastSeen != nil {
		set["last_seen"] = lastSeen.UTC()
	}
	return apperr.Persistence("users.setPresence", r.upsert(ctx, phone, bson.M{"$set": set}))
}

func (r userRepo) UpdateList(ctx context.Context, phone string, list models.ChatList, targets []string, add bool) ([]string, error) {
	field, ok := listFields[list]
	if !ok {
		return nil, &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	update := bson.M{}
	if len(targets) > 0 {
		if add {
			update["$addToSet"] = bson.M{field: bson.M{"$each": targets}}
		} else {
			update["$pull"] = bson.M{field: bson.M{"$in": targets}}
		}
	}
	if err := r.upsert(ctx, phone, update); err != nil {
		return nil, apperr.Persistence("users.updateList", err)
	}
	u, err := r.FindByIdentity(ctx, phone)
	if err != nil {
		return nil, err
	}
	return u.List(list), nil
}

func (r userRepo) ClearList(ctx context.Context, phone string, list models.ChatList) error {
	field, ok := listFields[list]
	if !ok {
		return &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": phone}, bson.M{"$set": bson.M{field: []string{}}})
	return apperr.Persistence("users.clearList", err)
}
