package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/models"
)

type statusRepo struct{ db *gorm.DB }

func (r statusRepo) hydrate(ctx context.Context, rows []statusRow) ([]models.Status, error) {
	out := make([]models.Status, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var views []statusView
	if err := r.db.WithContext(ctx).Where("status_id IN ?", ids).Order("viewed_at, phone").Find(&views).Error; err != nil {
		return nil, err
	}
	byID := make(map[string][]statusView, len(rows))
	for _, v := range views {
		byID[v.StatusID] = append(byID[v.StatusID], v)
	}
	for i := range rows {
		out = append(out, rows[i].toModel(byID[rows[i].ID]))
	}
	return out, nil
}

func (r statusRepo) Create(ctx context.Context, st *models.Status) error {
	st.ID = uuid.NewString()
	if st.Views == nil {
		st.Views = []models.StatusView{}
	}
	row := statusRow{
		ID:        st.ID,
		Phone:     st.Phone,
		Text:      st.Text,
		Image:     st.Image,
		CreatedAt: st.CreatedAt,
		ExpiresAt: st.ExpiresAt,
	}
	return apperr.Persistence("statuses.create", r.db.WithContext(ctx).Create(&row).Error)
}

func (r statusRepo) FindByID(ctx context.Context, id string) (*models.Status, error) {
	var row statusRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, apperr.Persistence("statuses.find", notFound(err, "status", id))
	}
	out, err := r.hydrate(ctx, []statusRow{row})
	if err != nil {
		return nil, apperr.Persistence("statuses.find", err)
	}
	return &out[0], nil
}

func (r statusRepo) Active(ctx context.Context, now time.Time) ([]models.Status, error) {
	var rows []statusRow
	if err := r.db.WithContext(ctx).Where("expires_at > ?", now).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("statuses.active", err)
	}
	out, err := r.hydrate(ctx, rows)
	return out, apperr.Persistence("statuses.active", err)
}

func (r statusRepo) RecordView(ctx context.Context, id, viewer string, at time.Time) (*models.Status, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	v := statusView{StatusID: id, Phone: viewer, ViewedAt: at}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "status_id"}, {Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"viewed_at"}),
	}).Create(&v).Error
	if err != nil {
		return nil, apperr.Persistence("statuses.view", err)
	}
	return r.FindByID(ctx, id)
}

func (r statusRepo) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&statusRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &apperr.NotFoundError{Resource: "status", ID: id}
		}
		return tx.Where("status_id = ?", id).Delete(&statusView{}).Error
	})
	return apperr.Persistence("statuses.delete", err)
}

func (r statusRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&statusRow{}).Where("expires_at <= ?", now).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("status_id IN ?", ids).Delete(&statusView{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&statusRow{})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, apperr.Persistence("statuses.deleteExpired", err)
	}
	return n, nil
}

type callRepo struct{ db *gorm.DB }

func (r callRepo) Create(ctx context.Context, c *models.CallLog) error {
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	row := callLogRow{
		ID:        c.ID,
		Caller:    c.From,
		Callee:    c.To,
		Type:      c.Type,
		Status:    c.Status,
		Duration:  c.Duration,
		CreatedAt: c.CreatedAt,
	}
	return apperr.Persistence("callLogs.create", r.db.WithContext(ctx).Create(&row).Error)
}

func (r callRepo) ForIdentity(ctx context.Context, identity string, limit int) ([]models.CallLog, error) {
	q := r.db.WithContext(ctx).Where("caller = ? OR callee = ?", identity, identity).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []callLogRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("callLogs.list", err)
	}
	out := make([]models.CallLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}
