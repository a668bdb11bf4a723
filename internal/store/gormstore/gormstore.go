// Package gormstore implements the persistence gateway on gorm, backed by
// PostgreSQL (external or embedded) or SQLite.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckchat/internal/apperr"
	"github.com/xelth-com/eckchat/internal/config"
	"github.com/xelth-com/eckchat/internal/database"
	"github.com/xelth-com/eckchat/internal/models"
	"github.com/xelth-com/eckchat/internal/store"
)

func init() {
	store.Register(store.Plugin{
		Name: config.DatastorePostgres,
		Loader: func(ctx context.Context, cfg *config.Config) (store.Store, error) {
			db, err := database.Connect(cfg.Database)
			if err != nil {
				return nil, err
			}
			return open(db)
		},
		Migrator: func(ctx context.Context, cfg *config.Config) error {
			db, err := database.Connect(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.AutoMigrate(allRows...)
		},
	})
	store.Register(store.Plugin{
		Name: config.DatastoreSQLite,
		Loader: func(ctx context.Context, cfg *config.Config) (store.Store, error) {
			db, err := database.OpenSQLite(cfg.SQLitePath, cfg.Database.Alter)
			if err != nil {
				return nil, err
			}
			return open(db)
		},
		Migrator: func(ctx context.Context, cfg *config.Config) error {
			db, err := database.OpenSQLite(cfg.SQLitePath, cfg.Database.Alter)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.AutoMigrate(allRows...)
		},
	})
}

// Store is the gorm-backed store.Store.
type Store struct {
	db *database.DB
}

// open migrates the schema and wraps db, closing it on failure.
func open(db *database.DB) (*Store, error) {
	if err := db.AutoMigrate(allRows...); err != nil {
		db.Close()
		return nil, apperr.Persistence("migrate", err)
	}
	return New(db), nil
}

// New wraps an already migrated connection.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Users() store.UserRepository       { return userRepo{s.db.DB} }
func (s *Store) Messages() store.MessageRepository { return messageRepo{s.db.DB} }
func (s *Store) Groups() store.GroupRepository     { return groupRepo{s.db.DB} }
func (s *Store) Statuses() store.StatusRepository  { return statusRepo{s.db.DB} }
func (s *Store) CallLogs() store.CallLogRepository { return callRepo{s.db.DB} }

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &apperr.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// --- users ---

type userRepo struct{ db *gorm.DB }

func (r userRepo) lists(ctx context.Context, phones ...string) (map[string][]userListEntry, error) {
	var entries []userListEntry
	err := r.db.WithContext(ctx).
		Where("phone IN ?", phones).
		Order("created_at, target").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]userListEntry, len(phones))
	for _, e := range entries {
		out[e.Phone] = append(out[e.Phone], e)
	}
	return out, nil
}

func (r userRepo) FindByIdentity(ctx context.Context, phone string) (*models.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).First(&row, "phone = ?", phone).Error; err != nil {
		return nil, apperr.Persistence("users.find", notFound(err, "user", phone))
	}
	lists, err := r.lists(ctx, phone)
	if err != nil {
		return nil, apperr.Persistence("users.find", err)
	}
	return row.toModel(lists[phone]), nil
}

func (r userRepo) toModels(ctx context.Context, rows []userRow) ([]models.User, error) {
	if len(rows) == 0 {
		return []models.User{}, nil
	}
	phones := make([]string, len(rows))
	for i := range rows {
		phones[i] = rows[i].Phone
	}
	lists, err := r.lists(ctx, phones...)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, len(rows))
	for i := range rows {
		out[i] = *rows[i].toModel(lists[rows[i].Phone])
	}
	return out, nil
}

func (r userRepo) FindMany(ctx context.Context, phones []string) ([]models.User, error) {
	if len(phones) == 0 {
		return []models.User{}, nil
	}
	var rows []userRow
	if err := r.db.WithContext(ctx).Where("phone IN ?", phones).Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("users.findMany", err)
	}
	out, err := r.toModels(ctx, rows)
	return out, apperr.Persistence("users.findMany", err)
}

func (r userRepo) List(ctx context.Context, exclude []string) ([]models.User, error) {
	q := r.db.WithContext(ctx).Where("phone <> ''")
	if len(exclude) > 0 {
		q = q.Where("phone NOT IN ?", exclude)
	}
	var rows []userRow
	if err := q.Order("phone").Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("users.list", err)
	}
	out, err := r.toModels(ctx, rows)
	return out, apperr.Persistence("users.list", err)
}

// ensure creates the user row if missing.
func (r userRepo) ensure(tx *gorm.DB, phone, name string) error {
	row := userRow{Phone: phone, Name: name}
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}
	if name != "" {
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}
	}
	return tx.Clauses(onConflict).Create(&row).Error
}

func (r userRepo) Upsert(ctx context.Context, phone, name string) (*models.User, error) {
	if err := r.ensure(r.db.WithContext(ctx), phone, name); err != nil {
		return nil, apperr.Persistence("users.upsert", err)
	}
	return r.FindByIdentity(ctx, phone)
}

func (r userRepo) UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error) {
	db := r.db.WithContext(ctx)
	if err := r.ensure(db, phone, ""); err != nil {
		return nil, apperr.Persistence("users.updateProfile", err)
	}
	fields := map[string]interface{}{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.About != nil {
		fields["about"] = *upd.About
	}
	if upd.Photo != nil {
		fields["photo"] = *upd.Photo
	}
	if err := db.Model(&userRow{}).Where("phone = ?", phone).Updates(fields).Error; err != nil {
		return nil, apperr.Persistence("users.updateProfile", err)
	}
	return r.FindByIdentity(ctx, phone)
}

func (r userRepo) SetPresence(ctx context.Context, phone string, online bool, lastSeen *time.Time) error {
	db := r.db.WithContext(ctx)
	if err := r.ensure(db, phone, ""); err != nil {
		return apperr.Persistence("users.setPresence", err)
	}
	fields := map[string]interface{}{"online": online}
	if lastSeen != nil {
		fields["last_seen"] = *lastSeen
	}
	err := db.Model(&userRow{}).Where("phone = ?", phone).Updates(fields).Error
	return apperr.Persistence("users.setPresence", err)
}

func (r userRepo) UpdateList(ctx context.Context, phone string, list models.ChatList, targets []string, add bool) ([]string, error) {
	if !list.Valid() {
		return nil, &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensure(tx, phone, ""); err != nil {
			return err
		}
		if len(targets) == 0 {
			return nil
		}
		if !add {
			return tx.Where("phone = ? AND list = ? AND target IN ?", phone, string(list), targets).
				Delete(&userListEntry{}).Error
		}
		now := time.Now().UTC()
		for i, t := range models.AddToSet(nil, targets...) {
			e := userListEntry{Phone: phone, List: string(list), Target: t, CreatedAt: now.Add(time.Duration(i))}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&e).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("users.updateList", err)
	}
	lists, err := r.lists(ctx, phone)
	if err != nil {
		return nil, apperr.Persistence("users.updateList", err)
	}
	out := []string{}
	for _, e := range lists[phone] {
		if e.List == string(list) {
			out = append(out, e.Target)
		}
	}
	return out, nil
}

func (r userRepo) ClearList(ctx context.Context, phone string, list models.ChatList) error {
	if !list.Valid() {
		return &apperr.ValidationError{Field: "list", Message: "unknown chat list " + string(list)}
	}
	err := r.db.WithContext(ctx).Where("phone = ? AND list = ?", phone, string(list)).Delete(&userListEntry{}).Error
	return apperr.Persistence("users.clearList", err)
}
