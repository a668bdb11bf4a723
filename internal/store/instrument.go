package store

import (
	"context"
	"time"

	"github.com/xelth-com/eckchat/internal/metrics"
	"github.com/xelth-com/eckchat/internal/models"
)

// Instrument returns a Store that records latency for every operation.
func Instrument(inner Store) Store {
	return &metricsStore{
		inner:    inner,
		users:    &metricsUsers{inner.Users()},
		messages: &metricsMessages{inner.Messages()},
		groups:   &metricsGroups{inner.Groups()},
		statuses: &metricsStatuses{inner.Statuses()},
		calls:    &metricsCalls{inner.CallLogs()},
	}
}

type metricsStore struct {
	inner    Store
	users    *metricsUsers
	messages *metricsMessages
	groups   *metricsGroups
	statuses *metricsStatuses
	calls    *metricsCalls
}

func (m *metricsStore) Users() UserRepository           { return m.users }
func (m *metricsStore) Messages() MessageRepository     { return m.messages }
func (m *metricsStore) Groups() GroupRepository         { return m.groups }
func (m *metricsStore) Statuses() StatusRepository      { return m.statuses }
func (m *metricsStore) CallLogs() CallLogRepository     { return m.calls }
func (m *metricsStore) Close(ctx context.Context) error { return m.inner.Close(ctx) }

func observe(op string, start time.Time) { metrics.ObserveStore(op, start) }

type metricsUsers struct{ inner UserRepository }

func (m *metricsUsers) FindByIdentity(ctx context.Context, phone string) (*models.User, error) {
	defer observe("find_user", time.Now())
	return m.inner.FindByIdentity(ctx, phone)
}

func (m *metricsUsers) FindMany(ctx context.Context, phones []string) ([]models.User, error) {
	defer observe("find_users", time.Now())
	return m.inner.FindMany(ctx, phones)
}

func (m *metricsUsers) List(ctx context.Context, exclude []string) ([]models.User, error) {
	defer observe("list_users", time.Now())
	return m.inner.List(ctx, exclude)
}

func (m *metricsUsers) Upsert(ctx context.Context, phone, name string) (*models.User, error) {
	defer observe("upsert_user", time.Now())
	return m.inner.Upsert(ctx, phone, name)
}

func (m *metricsUsers) UpdateProfile(ctx context.Context, phone string, upd models.ProfileUpdate) (*models.User, error) {
	defer observe("update_profile", time.Now())
	return m.inner.UpdateProfile(ctx, phone, upd)
}

func (m *metricsUsers) SetPresence(ctx context.Context, phone string, online bool, lastSeen *time.Time) error {
	defer observe("set_presence", time.Now())
	return m.inner.SetPresence(ctx, phone, online, lastSeen)
}

func (m *metricsUsers) UpdateList(ctx context.Context, phone string, list models.ChatList, targets []string, add bool) ([]string, error) {
	defer observe("update_chat_list", time.Now())
	return m.inner.UpdateList(ctx, phone, list, targets, add)
}

func (m *metricsUsers) ClearList(ctx context.Context, phone string, list models.ChatList) error {
	defer observe("clear_chat_list", time.Now())
	return m.inner.ClearList(ctx, phone, list)
}

type metricsMessages struct{ inner MessageRepository }

func (m *metricsMessages) Create(ctx context.Context, msg *models.Message) error {
	defer observe("create_message", time.Now())
	return m.inner.Create(ctx, msg)
}

func (m *metricsMessages) FindByID(ctx context.Context, id string) (*models.Message, error) {
	defer observe("find_message", time.Now())
	return m.inner.FindByID(ctx, id)
}

func (m *metricsMessages) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	defer observe("load_conversation", time.Now())
	return m.inner.Conversation(ctx, a, b)
}

func (m *metricsMessages) GroupConversation(ctx context.Context, groupID string) ([]models.Message, error) {
	defer observe("load_group_conversation", time.Now())
	return m.inner.GroupConversation(ctx, groupID)
}

func (m *metricsMessages) MarkSeen(ctx context.Context, f SeenFilter) (int64, error) {
	defer observe("mark_seen", time.Now())
	return m.inner.MarkSeen(ctx, f)
}

func (m *metricsMessages) MarkLatestUnseen(ctx context.Context, f SeenFilter) (*models.Message, error) {
	defer observe("mark_latest_unseen", time.Now())
	return m.inner.MarkLatestUnseen(ctx, f)
}

func (m *metricsMessages) AddDeletedFor(ctx context.Context, id, identity string) (*models.Message, error) {
	defer observe("delete_for_me", time.Now())
	return m.inner.AddDeletedFor(ctx, id, identity)
}

func (m *metricsMessages) Tombstone(ctx context.Context, id string) (*models.Message, error) {
	defer observe("delete_for_everyone", time.Now())
	return m.inner.Tombstone(ctx, id)
}

func (m *metricsMessages) Latest(ctx context.Context, me, other string) (*models.Message, error) {
	defer observe("latest_message", time.Now())
	return m.inner.Latest(ctx, me, other)
}

func (m *metricsMessages) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	defer observe("count_unseen", time.Now())
	return m.inner.CountUnseen(ctx, from, to)
}

func (m *metricsMessages) LatestInGroup(ctx context.Context, groupID string) (*models.Message, error) {
	defer observe("latest_group_message", time.Now())
	return m.inner.LatestInGroup(ctx, groupID)
}

func (m *metricsMessages) CountGroupUnseen(ctx context.Context, groupID, me string) (int64, error) {
	defer observe("count_group_unseen", time.Now())
	return m.inner.CountGroupUnseen(ctx, groupID, me)
}

func (m *metricsMessages) DeleteForIdentity(ctx context.Context, me string, others []string) (int64, error) {
	defer observe("clear_messages", time.Now())
	return m.inner.DeleteForIdentity(ctx, me, others)
}

type metricsGroups struct{ inner GroupRepository }

func (m *metricsGroups) Create(ctx context.Context, g *models.Group) error {
	defer observe("create_group", time.Now())
	return m.inner.Create(ctx, g)
}

func (m *metricsGroups) FindByID(ctx context.Context, id string) (*models.Group, error) {
	defer observe("find_group", time.Now())
	return m.inner.FindByID(ctx, id)
}

func (m *metricsGroups) ForMember(ctx context.Context, identity string) ([]models.Group, error) {
	defer observe("groups_for_member", time.Now())
	return m.inner.ForMember(ctx, identity)
}

func (m *metricsGroups) AddMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	defer observe("add_group_members", time.Now())
	return m.inner.AddMembers(ctx, id, identities)
}

func (m *metricsGroups) RemoveMembers(ctx context.Context, id string, identities []string) (*models.Group, error) {
	defer observe("remove_group_members", time.Now())
	return m.inner.RemoveMembers(ctx, id, identities)
}

type metricsStatuses struct{ inner StatusRepository }

func (m *metricsStatuses) Create(ctx context.Context, s *models.Status) error {
	defer observe("create_status", time.Now())
	return m.inner.Create(ctx, s)
}

func (m *metricsStatuses) FindByID(ctx context.Context, id string) (*models.Status, error) {
	defer observe("find_status", time.Now())
	return m.inner.FindByID(ctx, id)
}

func (m *metricsStatuses) Active(ctx context.Context, now time.Time) ([]models.Status, error) {
	defer observe("active_statuses", time.Now())
	return m.inner.Active(ctx, now)
}

func (m *metricsStatuses) RecordView(ctx context.Context, id, viewer string, at time.Time) (*models.Status, error) {
	defer observe("record_status_view", time.Now())
	return m.inner.RecordView(ctx, id, viewer, at)
}

func (m *metricsStatuses) Delete(ctx context.Context, id string) error {
	defer observe("delete_status", time.Now())
	return m.inner.Delete(ctx, id)
}

func (m *metricsStatuses) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observe("delete_expired_statuses", time.Now())
	return m.inner.DeleteExpired(ctx, now)
}

type metricsCalls struct{ inner CallLogRepository }

func (m *metricsCalls) Create(ctx context.Context, c *models.CallLog) error {
	defer observe("create_call_log", time.Now())
	return m.inner.Create(ctx, c)
}

func (m *metricsCalls) ForIdentity(ctx context.Context, identity string, limit int) ([]models.CallLog, error) {
	defer observe("list_call_logs", time.Now())
	return m.inner.ForIdentity(ctx, identity, limit)
}
