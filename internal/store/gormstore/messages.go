package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

const notDeletedFor = "NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = messages.id AND d.identity = ?)"

type messageRepo struct{ db *gorm.DB }

// pair scopes a query to the personal chat between a and b.
func pair(a, b string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("group_id = '' AND ((sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?))", a, b, b, a)
	}
}

func seenScope(f store.SeenFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("group_id = '' AND sender = ? AND recipient = ?", f.From, f.To)
		if f.SkipDeleted {
			db = db.Where("deleted_for_everyone = ?", false).Where(notDeletedFor, f.To)
		}
		return db
	}
}

// hydrate attaches deletedFor sets to rows.
func (r messageRepo) hydrate(ctx context.Context, rows []messageRow) ([]models.Message, error) {
	out := make([]models.Message, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var dels []messageDeletion
	if err := r.db.WithContext(ctx).Where("message_id IN ?", ids).Order("identity").Find(&dels).Error; err != nil {
		return nil, err
	}
	byID := make(map[string][]string, len(dels))
	for _, d := range dels {
		byID[d.MessageID] = append(byID[d.MessageID], d.Identity)
	}
	for i := range rows {
		out = append(out, rows[i].toModel(byID[rows[i].ID]))
	}
	return out, nil
}

func (r messageRepo) findAll(ctx context.Context, op string, q *gorm.DB) ([]models.Message, error) {
	var rows []messageRow
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, apperr.Persistence(op, err)
	}
	out, err := r.hydrate(ctx, rows)
	return out, apperr.Persistence(op, err)
}

func (r messageRepo) findOne(ctx context.Context, op string, q *gorm.DB) (*models.Message, error) {
	var rows []messageRow
	if err := q.Order("created_at DESC, id DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out, err := r.hydrate(ctx, rows)
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	return &out[0], nil
}

func (r messageRepo) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}
	err := r.db.WithContext(ctx).Create(messageRowFrom(msg)).Error
	return apperr.Persistence("messages.create", err)
}

func (r messageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var row messageRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, apperr.Persistence("messages.find", notFound(err, "message", id))
	}
	out, err := r.hydrate(ctx, []messageRow{row})
	if err != nil {
		return nil, apperr.Persistence("messages.find", err)
	}
	return &out[0], nil
}

func (r messageRepo) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return r.findAll(ctx, "messages.conversation", r.db.WithContext(ctx).Scopes(pair(a, b)))
}

func (r messageRepo) GroupConversation(ctx context.Context, groupID string) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("group_id = ? AND deleted_for_everyone = ?", groupID, false)
	return r.findAll(ctx, "messages.groupConversation", q)
}

func (r messageRepo) MarkSeen(ctx context.Context, f store.SeenFilter) (int64, error) {
	res := r.db.WithContext(ctx).Model(&messageRow{}).
		Scopes(seenScope(f)).
		Where("seen = ?", false).
		Update("seen", true)
	if res.Error != nil {
		return 0, apperr.Persistence("messages.markSeen", res.Error)
	}
	return res.RowsAffected, nil
}

func (r messageRepo) MarkLatestUnseen(ctx context.Context, f store.SeenFilter) (*models.Message, error) {
	m, err := r.findOne(ctx, "messages.markUnseen", r.db.WithContext(ctx).Scopes(seenScope(f)))
	if err != nil || m == nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&messageRow{}).Where("id = ?", m.ID).Update("seen", false).Error; err != nil {
		return nil, apperr.Persistence("messages.markUnseen", err)
	}
	m.Seen = false
	return m, nil
}

func (r messageRepo) AddDeletedFor(ctx context.Context, id, identity string) (*models.Message, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&messageDeletion{MessageID: id, Identity: identity}).Error
	if err != nil {
		return nil, apperr.Persistence("messages.deleteForMe", err)
	}
	return r.FindByID(ctx, id)
}

func (r messageRepo) Tombstone(ctx context.Context, id string) (*models.Message, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).Model(&messageRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"text":                 models.Tombstone,
		"file":                 datatypes.NewJSONType[*models.File](nil),
		"deleted_for_everyone": true,
	}).Error
	if err != nil {
		return nil, apperr.Persistence("messages.tombstone", err)
	}
	return r.FindByID(ctx, id)
}

func (r messageRepo) Latest(ctx context.Context, me, other string) (*models.Message, error) {
	q := r.db.WithContext(ctx).Scopes(pair(me, other)).
		Where("deleted_for_everyone = ?", false).
		Where(notDeletedFor, me)
	return r.findOne(ctx, "messages.latest", q)
}

func (r messageRepo) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&messageRow{}).
		Where("group_id = '' AND sender = ? AND recipient = ? AND seen = ?", from, to, false).
		Where(notDeletedFor, to).
		Count(&n).Error
	return n, apperr.Persistence("messages.countUnseen", err)
}

func (r messageRepo) LatestInGroup(ctx context.Context, groupID string) (*models.Message, error) {
	q := r.db.WithContext(ctx).Where("group_id = ? AND deleted_for_everyone = ?", groupID, false)
	return r.findOne(ctx, "messages.latestInGroup", q)
}

func (r messageRepo) CountGroupUnseen(ctx context.Context, groupID, me string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&messageRow{}).
		Where("group_id = ? AND seen = ? AND sender <> ?", groupID, false, me).
		Count(&n).Error
	return n, apperr.Persistence("messages.countGroupUnseen", err)
}

func (r messageRepo) DeleteForIdentity(ctx context.Context, me string, others []string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&messageRow{}).Where("group_id = ''")
		if len(others) == 0 {
			q = q.Where("sender = ? OR recipient = ?", me, me)
		} else {
			q = q.Where("(sender = ? AND recipient IN ?) OR (recipient = ? AND sender IN ?)", me, others, me, others)
		}
		var ids []string
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&messageDeletion{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&messageRow{})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, apperr.Persistence("messages.clear", err)
	}
	return n, nil
}
