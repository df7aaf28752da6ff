package repo

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/pkg/push"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type seqIDs struct{ n int64 }

func (s *seqIDs) Next() (int64, error) { return atomic.AddInt64(&s.n, 1), nil }

// tickClock advances one second per call.
func tickClock() Clock {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	var n int64
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func seedUsers(t *testing.T, r *ChatRepo, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := r.UpsertUser(context.Background(), model.User{ID: id, Name: "User " + id}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

func TestCreateMessageBumpsRoomInOneWrite(t *testing.T) {
	db := newTestDB(t)
	r := NewChatRepo(db, &seqIDs{}).WithClock(tickClock())
	ctx := context.Background()
	seedUsers(t, r, "alice", "bob")

	room, created, err := r.CreateRoom(ctx, "alice", "group", nil, []string{"bob"})
	if err != nil || !created {
		t.Fatalf("create room: created=%v err=%v", created, err)
	}

	msg, err := r.CreateMessage(ctx, room.ID, "bob", "hello")
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	got, err := r.Room(ctx, room.ID)
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	if !got.UpdatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("room updatedAt %v, want %v", got.UpdatedAt, msg.CreatedAt)
	}
	if len(got.Members) != 2 || got.Members[0].User == nil {
		t.Fatalf("members not loaded: %+v", got.Members)
	}

	full, err := r.MessageWithAuthor(ctx, msg.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if full.Author == nil || full.Author.Name != "User bob" {
		t.Fatalf("author not loaded: %+v", full.Author)
	}
}

func TestCreateMessageRejectsNonMember(t *testing.T) {
	db := newTestDB(t)
	r := NewChatRepo(db, &seqIDs{}).WithClock(tickClock())
	ctx := context.Background()
	seedUsers(t, r, "alice", "bob", "mallory")

	room, _, err := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"bob"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	before, _ := r.Room(ctx, room.ID)

	if _, err := r.CreateMessage(ctx, room.ID, "mallory", "hi"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	msgs, err := r.ListMessages(ctx, room.ID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	after, _ := r.Room(ctx, room.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("room timestamp must not move on rejected write")
	}
}

func TestCreateRoomDirectReusesPair(t *testing.T) {
	db := newTestDB(t)
	r := NewChatRepo(db, &seqIDs{}).WithClock(tickClock())
	ctx := context.Background()
	seedUsers(t, r, "alice", "bob", "carol")

	first, created, err := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"bob"})
	if err != nil || !created {
		t.Fatalf("first: created=%v err=%v", created, err)
	}
	second, created, err := r.CreateRoom(ctx, "bob", model.RoomDirect, nil, []string{"alice"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected reuse of %s, got %s (created=%v)", first.ID, second.ID, created)
	}

	if _, _, err := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"bob", "carol"}); !errors.Is(err, ErrBadRoom) {
		t.Fatalf("expected ErrBadRoom for 3-way direct, got %v", err)
	}
	if _, _, err := r.CreateRoom(ctx, "alice", "CHANNEL", nil, []string{"bob"}); !errors.Is(err, ErrBadRoom) {
		t.Fatalf("expected ErrBadRoom for unknown type, got %v", err)
	}
}

func TestListRoomsOrderedByActivity(t *testing.T) {
	db := newTestDB(t)
	r := NewChatRepo(db, &seqIDs{}).WithClock(tickClock())
	ctx := context.Background()
	seedUsers(t, r, "alice", "bob", "carol")

	a, _, _ := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"bob"})
	b, _, _ := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"carol"})
	if _, err := r.CreateMessage(ctx, a.ID, "alice", "newest"); err != nil {
		t.Fatalf("message: %v", err)
	}

	rooms, err := r.ListRooms(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != a.ID || rooms[1].ID != b.ID {
		t.Fatalf("unexpected order: %+v", rooms)
	}
	bobRooms, _ := r.ListRooms(ctx, "bob")
	if len(bobRooms) != 1 {
		t.Fatalf("bob should see one room, got %d", len(bobRooms))
	}
}

func TestListMessagesPaging(t *testing.T) {
	db := newTestDB(t)
	r := NewChatRepo(db, &seqIDs{}).WithClock(tickClock())
	ctx := context.Background()
	seedUsers(t, r, "alice", "bob")
	room, _, _ := r.CreateRoom(ctx, "alice", model.RoomDirect, nil, []string{"bob"})

	for i := 0; i < 5; i++ {
		if _, err := r.CreateMessage(ctx, room.ID, "alice", "m"); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	page, err := r.ListMessages(ctx, room.ID, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != 4 || page[1].ID != 5 {
		t.Fatalf("unexpected latest page: %+v", page)
	}
	older, _ := r.ListMessages(ctx, room.ID, page[0].ID, 10)
	if len(older) != 3 || older[0].ID != 1 || older[2].ID != 3 {
		t.Fatalf("unexpected older page: %+v", older)
	}
}

func TestPushUpsertKeepsOneRowPerUser(t *testing.T) {
	db := newTestDB(t)
	r := NewPushRepo(db)
	ctx := context.Background()
	keys := push.Keys{P256dh: "pk", Auth: "ak"}

	if err := r.Upsert(ctx, "u1", "https://push.example/a", keys); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.Upsert(ctx, "u1", "https://push.example/b", keys); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if err := r.Upsert(ctx, "u1", "https://push.example/c", keys); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	n, err := r.Count(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 row, got %d (err=%v)", n, err)
	}
	sub, err := r.GetSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Endpoint != "https://push.example/c" {
		t.Fatalf("endpoint not overwritten: %s", sub.Endpoint)
	}
	if _, err := push.ParseKeys(sub.Keys); err != nil {
		t.Fatalf("stored keys not canonical: %s", sub.Keys)
	}

	if _, err := r.GetSubscription(ctx, "nobody"); !errors.Is(err, push.ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
	if err := r.Upsert(ctx, "u2", "https://x", push.Keys{P256dh: "only"}); !errors.Is(err, push.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRemoveStaleMatchesEndpoint(t *testing.T) {
	db := newTestDB(t)
	r := NewPushRepo(db)
	ctx := context.Background()
	_ = r.Upsert(ctx, "u1", "https://push.example/new", push.Keys{P256dh: "pk", Auth: "ak"})

	if err := r.RemoveStale(ctx, "u1", "https://push.example/old"); err != nil {
		t.Fatalf("remove stale: %v", err)
	}
	if n, _ := r.Count(ctx, "u1"); n != 1 {
		t.Fatalf("newer subscription must survive")
	}
	if err := r.RemoveStale(ctx, "u1", "https://push.example/new"); err != nil {
		t.Fatalf("remove stale: %v", err)
	}
	if n, _ := r.Count(ctx, "u1"); n != 0 {
		t.Fatalf("subscription should be gone")
	}
}

func TestMigrateLegacyKeys(t *testing.T) {
	db := newTestDB(t)
	r := NewPushRepo(db)
	ctx := context.Background()

	rows := []model.PushSubscription{
		{UserID: "legacy", Endpoint: "https://e/1", Keys: []byte(`{"p256dhKey":"pk","authKey":"ak"}`)},
		{UserID: "canonical", Endpoint: "https://e/2", Keys: []byte(`{"p256dh":"pk","auth":"ak"}`)},
		{UserID: "broken", Endpoint: "https://e/3", Keys: []byte(`{"p256dhKey":"pk"}`)},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	migrated, invalid, err := r.MigrateLegacyKeys(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 1 || invalid != 1 {
		t.Fatalf("migrated=%d invalid=%d", migrated, invalid)
	}
	sub, _ := r.GetSubscription(ctx, "legacy")
	k, err := push.ParseKeys(sub.Keys)
	if err != nil || k.P256dh != "pk" || k.Auth != "ak" {
		t.Fatalf("legacy row not rewritten: %s (%v)", sub.Keys, err)
	}

	again, _, err := r.MigrateLegacyKeys(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second pass must be a no-op: %d %v", again, err)
	}
}

func TestCatalogUpsertClassification(t *testing.T) {
	db := newTestDB(t)
	r := NewCatalogRepo(db).WithClock(tickClock())
	ctx := context.Background()
	price := 10.0

	p, created, err := r.UpsertProduct(ctx, model.Product{Sku: "A1", Name: "Widget", Stock: 5, Price: &price})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	p2, created, err := r.UpsertProduct(ctx, model.Product{Sku: "A1", Name: "Widget", Stock: 7, Price: &price})
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if p2.ID != p.ID || p2.Stock != 7 {
		t.Fatalf("unexpected row after update: %+v", p2)
	}

	if _, err := r.ClientIDByErpID(ctx, "C-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	c, created, err := r.UpsertClient(ctx, model.Client{ErpID: "C-1", Name: "Apotheke"})
	if err != nil || !created {
		t.Fatalf("client: created=%v err=%v", created, err)
	}
	id, err := r.ClientIDByErpID(ctx, "C-1")
	if err != nil || id != c.ID {
		t.Fatalf("resolve client: %d %v", id, err)
	}
	_, created, err = r.UpsertBranch(ctx, model.ClientBranch{ErpID: "B-1", ClientID: id, Name: "Filiale"})
	if err != nil || !created {
		t.Fatalf("branch: created=%v err=%v", created, err)
	}

	b1, err := r.UpsertBrand(ctx, "ACME", "Acme")
	if err != nil {
		t.Fatalf("brand: %v", err)
	}
	b2, err := r.UpsertBrand(ctx, "ACME", "Acme Pharma")
	if err != nil || b2.ID != b1.ID || b2.Name != "Acme Pharma" {
		t.Fatalf("brand upsert: %+v %v", b2, err)
	}
}

func TestSettings(t *testing.T) {
	db := newTestDB(t)
	r := NewSettingsRepo(db)
	ctx := context.Background()

	if _, ok, err := r.Get(ctx, model.SettingErpLagerTable); err != nil || ok {
		t.Fatalf("expected unset, ok=%v err=%v", ok, err)
	}
	_ = r.Set(ctx, model.SettingErpLagerTable, "dbo.Lager2024")
	_ = r.Set(ctx, model.SettingErpLagerTable, "dbo.Lager2025")
	v, ok, err := r.Get(ctx, model.SettingErpLagerTable)
	if err != nil || !ok || v != "dbo.Lager2025" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
}
