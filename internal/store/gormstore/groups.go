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

type groupRepo struct{ db *gorm.DB }

func (r groupRepo) members(ctx context.Context, ids ...string) (map[string][]string, error) {
	var rows []groupMember
	if err := r.db.WithContext(ctx).Where("group_id IN ?", ids).Order("position, phone").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(ids))
	for _, m := range rows {
		out[m.GroupID] = append(out[m.GroupID], m.Phone)
	}
	return out, nil
}

func toGroup(row groupRow, members []string) models.Group {
	if members == nil {
		members = []string{}
	}
	return models.Group{
		ID:        row.ID,
		Name:      row.Name,
		Members:   members,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}
}

func (r groupRepo) Create(ctx context.Context, g *models.Group) error {
	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := groupRow{ID: g.ID, Name: g.Name, CreatedBy: g.CreatedBy, CreatedAt: g.CreatedAt}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return insertMembers(tx, g.ID, 0, g.Members)
	})
	return apperr.Persistence("groups.create", err)
}

func insertMembers(tx *gorm.DB, groupID string, start int, phones []string) error {
	for i, p := range models.AddToSet(nil, phones...) {
		m := groupMember{GroupID: groupID, Phone: p, Position: start + i}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r groupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	var row groupRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, apperr.Persistence("groups.find", notFound(err, "group", id))
	}
	members, err := r.members(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("groups.find", err)
	}
	g := toGroup(row, members[id])
	return &g, nil
}

func (r groupRepo) ForMember(ctx context.Context, identity string) ([]models.Group, error) {
	db := r.db.WithContext(ctx)
	var rows []groupRow
	err := db.Where("id IN (?)", db.Model(&groupMember{}).Select("group_id").Where("phone = ?", identity)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Persistence("groups.forMember", err)
	}
	out := make([]models.Group, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	members, err := r.members(ctx, ids...)
	if err != nil {
		return nil, apperr.Persistence("groups.forMember", err)
	}
	for _, row := range rows {
		out = append(out, toGroup(row, members[row.ID]))
	}
	return out, nil
}

func (r groupRepo) AddMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		if err := tx.Model(&groupMember{}).Where("group_id = ?", id).
			Select("COALESCE(MAX(position), -1)").Scan(&maxPos).Error; err != nil {
			return err
		}
		return insertMembers(tx, id, maxPos+1, identities)
	})
	if err != nil {
		return nil, apperr.Persistence("groups.addMembers", err)
	}
	return r.FindByID(ctx, id)
}

func (r groupRepo) RemoveMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if len(identities) > 0 {
		err := r.db.WithContext(ctx).Where("group_id = ? AND phone IN ?", id, identities).Delete(&groupMember{}).Error
		if err != nil {
			return nil, apperr.Persistence("groups.removeMembers", err)
		}
	}
	return r.FindByID(ctx, id)
}
