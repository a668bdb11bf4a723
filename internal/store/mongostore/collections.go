package mongostore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
)

type groupDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Members   []string  `bson:"members"`
	CreatedBy string    `bson:"created_by"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d *groupDoc) toModel() models.Group {
	return models.Group{
		ID:        d.ID,
		Name:      d.Name,
		Members:   nonNil(d.Members),
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
	}
}

type groupRepo struct{ col *mongo.Collection }

func (r groupRepo) Create(ctx context.Context, g *models.Group) error {
	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	doc := groupDoc{
		ID:        g.ID,
		Name:      g.Name,
		Members:   models.AddToSet(nil, g.Members...),
		CreatedBy: g.CreatedBy,
		CreatedAt: g.CreatedAt,
	}
	_, err := r.col.InsertOne(ctx, doc)
	return apperr.Persistence("groups.create", err)
}

func (r groupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	var doc groupDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, apperr.Persistence("groups.find", notFound(err, "group", id))
	}
	g := doc.toModel()
	return &g, nil
}

func (r groupRepo) ForMember(ctx context.Context, identity string) ([]models.Group, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"members": identity}, opts)
	if err != nil {
		return nil, apperr.Persistence("groups.forMember", err)
	}
	var docs []groupDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence("groups.forMember", err)
	}
	out := make([]models.Group, len(docs))
	for i := range docs {
		out[i] = docs[i].toModel()
	}
	return out, nil
}

func (r groupRepo) update(ctx context.Context, op, id string, update bson.M) (*models.Group, error) {
	var doc groupDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if err != nil {
		return nil, apperr.Persistence(op, notFound(err, "group", id))
	}
	g := doc.toModel()
	return &g, nil
}

func (r groupRepo) AddMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	return r.update(ctx, "groups.addMembers", id, bson.M{"$addToSet": bson.M{"members": bson.M{"$each": nonNil(identities)}}})
}

func (r groupRepo) RemoveMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	return r.update(ctx, "groups.removeMembers", id, bson.M{"$pull": bson.M{"members": bson.M{"$in": nonNil(identities)}}})
}

// --- statuses ---

type statusViewDoc struct {
	Phone    string    `bson:"phone"`
	ViewedAt time.Time `bson:"viewed_at"`
}

type statusDoc struct {
	ID        string          `bson:"_id"`
	Phone     string          `bson:"phone"`
	Text      string          `bson:"text,omitempty"`
	Image     string          `bson:"image,omitempty"`
	CreatedAt time.Time       `bson:"created_at"`
	ExpiresAt time.Time       `bson:"expires_at"`
	Views     []statusViewDoc `bson:"views"`
}

func (d *statusDoc) toModel() models.Status {
	st := models.Status{
		ID:        d.ID,
		Phone:     d.Phone,
		Text:      d.Text,
		Image:     d.Image,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
		Views:     make([]models.StatusView, len(d.Views)),
	}
	for i, v := range d.Views {
		st.Views[i] = models.StatusView{Phone: v.Phone, ViewedAt: v.ViewedAt}
	}
	return st
}

type statusRepo struct{ col *mongo.Collection }

func (r statusRepo) Create(ctx context.Context, st *models.Status) error {
	st.ID = uuid.NewString()
	if st.Views == nil {
		st.Views = []models.StatusView{}
	}
	doc := statusDoc{
		ID:        st.ID,
		Phone:     st.Phone,
		Text:      st.Text,
		Image:     st.Image,
		CreatedAt: st.CreatedAt,
		ExpiresAt: st.ExpiresAt,
		Views:     []statusViewDoc{},
	}
	_, err := r.col.InsertOne(ctx, doc)
	return apperr.Persistence("statuses.create", err)
}

func (r statusRepo) FindByID(ctx context.Context, id string) (*models.Status, error) {
	var doc statusDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, apperr.Persistence("statuses.find", notFound(err, "status", id))
	}
	st := doc.toModel()
	return &st, nil
}

func (r statusRepo) Active(ctx context.Context, now time.Time) ([]models.Status, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"expires_at": bson.M{"$gt": now}}, opts)
	if err != nil {
		return nil, apperr.Persistence("statuses.active", err)
	}
	var docs []statusDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence("statuses.active", err)
	}
	out := make([]models.Status, len(docs))
	for i := range docs {
		out[i] = docs[i].toModel()
	}
	return out, nil
}

func (r statusRepo) RecordView(ctx context.Context, id, viewer string, at time.Time) (*models.Status, error) {
	// Update the viewer's entry in place, else append one. Retried once
	// when a concurrent view appended the entry between the two steps.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.col.UpdateOne(ctx,
			bson.M{"_id": id, "views.phone": viewer},
			bson.M{"$set": bson.M{"views.$.viewed_at": at}})
		if err != nil {
			return nil, apperr.Persistence("statuses.view", err)
		}
		if res.MatchedCount > 0 {
			return r.FindByID(ctx, id)
		}
		res, err = r.col.UpdateOne(ctx,
			bson.M{"_id": id, "views.phone": bson.M{"$ne": viewer}},
			bson.M{"$push": bson.M{"views": statusViewDoc{Phone: viewer, ViewedAt: at}}})
		if err != nil {
			return nil, apperr.Persistence("statuses.view", err)
		}
		if res.MatchedCount > 0 {
			return r.FindByID(ctx, id)
		}
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, id)
}

func (r statusRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Persistence("statuses.delete", err)
	}
	if res.DeletedCount == 0 {
		return &apperr.NotFoundError{Resource: "status", ID: id}
	}
	return nil
}

func (r statusRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, apperr.Persistence("statuses.deleteExpired", err)
	}
	return res.DeletedCount, nil
}

// --- call logs ---

type callLogDoc struct {
	ID        string    `bson:"_id"`
	From      string    `bson:"from"`
	To        string    `bson:"to"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	Duration  int       `bson:"duration"`
	CreatedAt time.Time `bson:"created_at"`
}

type callRepo struct{ col *mongo.Collection }

func (r callRepo) Create(ctx context.Context, c *models.CallLog) error {
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, callLogDoc{
		ID:        c.ID,
		From:      c.From,
		To:        c.To,
		Type:      c.Type,
		Status:    c.Status,
		Duration:  c.Duration,
		CreatedAt: c.CreatedAt,
	})
	return apperr.Persistence("callLogs.create", err)
}

func (r callRepo) ForIdentity(ctx context.Context, identity string, limit int) ([]models.CallLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{"$or": bson.A{bson.M{"from": identity}, bson.M{"to": identity}}}
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Persistence("callLogs.list", err)
	}
	var docs []callLogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence("callLogs.list", err)
	}
	out := make([]models.CallLog, len(docs))
	for i, d := range docs {
		out[i] = models.CallLog{
			ID:        d.ID,
			From:      d.From,
			To:        d.To,
			Type:      d.Type,
			Status:    d.Status,
			Duration:  d.Duration,
			CreatedAt: d.CreatedAt,
		}
	}
	return out, nil
}
