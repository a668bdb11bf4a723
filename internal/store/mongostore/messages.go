package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

type fileDoc struct {
	FileType string `bson:"file_type"`
	FileName string `bson:"file_name"`
	MimeType string `bson:"mime_type"`
	FileData string `bson:"file_data"`
}

type messageDoc struct {
	ID                 string    `bson:"_id"`
	From               string    `bson:"from"`
	To                 string    `bson:"to"`
	GroupID            string    `bson:"group_id"`
	Text               string    `bson:"text"`
	File               *fileDoc  `bson:"file,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
	Delivered          bool      `bson:"delivered"`
	Seen               bool      `bson:"seen"`
	DeletedFor         []string  `bson:"deleted_for"`
	DeletedForEveryone bool      `bson:"deleted_for_everyone"`
}

func messageDocFrom(m *models.Message) *messageDoc {
	d := &messageDoc{
		ID:                 m.ID,
		From:               m.From,
		To:                 m.To,
		GroupID:            m.GroupID,
		Text:               m.Text,
		CreatedAt:          m.CreatedAt,
		Delivered:          m.Delivered,
		Seen:               m.Seen,
		DeletedFor:         nonNil(m.DeletedFor),
		DeletedForEveryone: m.DeletedForEveryone,
	}
	if m.File != nil {
		d.File = &fileDoc{
			FileType: m.File.FileType,
			FileName: m.File.FileName,
			MimeType: m.File.MimeType,
			FileData: m.File.FileData,
		}
	}
	return d
}

func (d *messageDoc) toModel() models.Message {
	m := models.Message{
		ID:                 d.ID,
		From:               d.From,
		To:                 d.To,
		GroupID:            d.GroupID,
		Text:               d.Text,
		CreatedAt:          d.CreatedAt,
		Delivered:          d.Delivered,
		Seen:               d.Seen,
		DeletedFor:         nonNil(d.DeletedFor),
		DeletedForEveryone: d.DeletedForEveryone,
	}
	if d.File != nil {
		m.File = &models.File{
			FileType: d.File.FileType,
			FileName: d.File.FileName,
			MimeType: d.File.MimeType,
			FileData: d.File.FileData,
		}
	}
	return m
}

func pairFilter(a, b string) bson.M {
	return bson.M{
		"group_id": "",
		"$or": bson.A{
			bson.M{"from": a, "to": b},
			bson.M{"from": b, "to": a},
		},
	}
}

func seenFilter(f store.SeenFilter) bson.M {
	filter := bson.M{"group_id": "", "from": f.From, "to": f.To}
	if f.SkipDeleted {
		filter["deleted_for_everyone"] = false
		filter["deleted_for"] = bson.M{"$ne": f.To}
	}
	return filter
}

var (
	oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
)

type messageRepo struct{ col *mongo.Collection }

func (r messageRepo) findAll(ctx context.Context, op string, filter bson.M) ([]models.Message, error) {
	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence(op, err)
	}
	out := make([]models.Message, len(docs))
	for i := range docs {
		out[i] = docs[i].toModel()
	}
	return out, nil
}

func (r messageRepo) findLatest(ctx context.Context, op string, filter bson.M) (*models.Message, error) {
	var doc messageDoc
	err := r.col.FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	m := doc.toModel()
	return &m, nil
}

// update applies update to one message and returns the stored result.
func (r messageRepo) update(ctx context.Context, op, id string, update bson.M) (*models.Message, error) {
	var doc messageDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		return nil, apperr.Persistence(op, notFound(err, "message", id))
	}
	m := doc.toModel()
	return &m, nil
}

func (r messageRepo) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.DeletedFor = nonNil(msg.DeletedFor)
	_, err := r.col.InsertOne(ctx, messageDocFrom(msg))
	return apperr.Persistence("messages.create", err)
}

func (r messageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var doc messageDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, apperr.Persistence("messages.find", notFound(err, "message", id))
	}
	m := doc.toModel()
	return &m, nil
}

func (r messageRepo) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return r.findAll(ctx, "messages.conversation", pairFilter(a, b))
}

func (r messageRepo) GroupConversation(ctx context.Context, groupID string) ([]models.Message, error) {
	return r.findAll(ctx, "messages.groupConversation", bson.M{"group_id": groupID, "deleted_for_everyone": false})
}

func (r messageRepo) MarkSeen(ctx context.Context, f store.SeenFilter) (int64, error) {
	filter := seenFilter(f)
	filter["seen"] = false
	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"seen": true}})
	if err != nil {
		return 0, apperr.Persistence("messages.markSeen", err)
	}
	return res.ModifiedCount, nil
}

func (r messageRepo) MarkLatestUnseen(ctx context.Context, f store.SeenFilter) (*models.Message, error) {
	var doc messageDoc
	opts := options.FindOneAndUpdate().SetSort(newestFirst).SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, seenFilter(f), bson.M{"$set": bson.M{"seen": false}}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("messages.markUnseen", err)
	}
	m := doc.toModel()
	return &m, nil
}

func (r messageRepo) AddDeletedFor(ctx context.Context, id, identity string) (*models.Message, error) {
	return r.update(ctx, "messages.deleteForMe", id, bson.M{"$addToSet": bson.M{"deleted_for": identity}})
}

func (r messageRepo) Tombstone(ctx context.Context, id string) (*models.Message, error) {
	return r.update(ctx, "messages.tombstone", id, bson.M{
		"$set":   bson.M{"text": models.Tombstone, "deleted_for_everyone": true},
		"$unset": bson.M{"file": ""},
	})
}

func (r messageRepo) Latest(ctx context.Context, me, other string) (*models.Message, error) {
	filter := pairFilter(me, other)
	filter["deleted_for_everyone"] = false
	filter["deleted_for"] = bson.M{"$ne": me}
	return r.findLatest(ctx, "messages.latest", filter)
}

func (r messageRepo) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"group_id":    "",
		"from":        from,
		"to":          to,
		"seen":        false,
		"deleted_for": bson.M{"$ne": to},
	})
	return n, apperr.Persistence("messages.countUnseen", err)
}

func (r messageRepo) LatestInGroup(ctx context.Context, groupID string) (*models.Message, error) {
	return r.findLatest(ctx, "messages.latestInGroup", bson.M{"group_id": groupID, "deleted_for_everyone": false})
}

func (r messageRepo) CountGroupUnseen(ctx context.Context, groupID, me string) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"group_id": groupID, "seen": false, "from": bson.M{"$ne": me}})
	return n, apperr.Persistence("messages.countGroupUnseen", err)
}

func (r messageRepo) DeleteForIdentity(ctx context.Context, me string, others []string) (int64, error) {
	filter := bson.M{"group_id": ""}
	if len(others) == 0 {
		filter["$or"] = bson.A{bson.M{"from": me}, bson.M{"to": me}}
	} else {
		filter["$or"] = bson.A{
			bson.M{"from": me, "to": bson.M{"$in": others}},
			bson.M{"to": me, "from": bson.M{"$in": others}},
		}
	}
	res, err := r.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, apperr.Persistence("messages.clear", err)
	}
	return res.DeletedCount, nil
}
