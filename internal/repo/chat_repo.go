package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MahirK1/p-sub001/internal/model"
)

type ChatRepo struct {
	db  *gorm.DB
	ids IDSource
	now Clock
}

func NewChatRepo(db *gorm.DB, ids IDSource) *ChatRepo {
	return &ChatRepo{db: db, ids: ids, now: utcNow}
}

func (r *ChatRepo) WithClock(now Clock) *ChatRepo {
	r.now = now
	return r
}

func (r *ChatRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return isMember(r.db.WithContext(ctx), roomID, userID)
}

func isMember(tx *gorm.DB, roomID, userID string) (bool, error) {
	var n int64
	err := tx.Model(&model.ChatRoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *ChatRepo) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.ChatRoomMember{}).
		Where("room_id = ?", roomID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CreateMessage checks the author's membership, inserts the message and bumps the
// room's updatedAt inside one transaction.
func (r *ChatRepo) CreateMessage(ctx context.Context, roomID, authorID, content string) (*model.ChatMessage, error) {
	id, err := r.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("repo: message id: %w", err)
	}
	msg := &model.ChatMessage{
		ID:        id,
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: r.now(),
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := isMember(tx, roomID, authorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotMember
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		res := tx.Model(&model.ChatRoom{}).
			Where("id = ?", roomID).
			Update("updated_at", msg.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MessageWithAuthor reloads a message with its author.
func (r *ChatRepo) MessageWithAuthor(ctx context.Context, id int64) (*model.ChatMessage, error) {
	var m model.ChatMessage
	if err := r.db.WithContext(ctx).Preload("Author").First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// Room loads a room with its members and their users.
func (r *ChatRepo) Room(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Preload("Members.User").
		First(&room, "id = ?", roomID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// ListRooms returns the user's inbox, most recently active first.
func (r *ChatRepo) ListRooms(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&model.ChatRoomMember{}).Select("room_id").Where("user_id = ?", userID)).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Preload("Members.User").
		Order("updated_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// CreateRoom creates a room with creatorID plus memberIDs. A DIRECT room needs exactly
// one other member and an existing direct room of the same pair is returned instead
// (created=false).
func (r *ChatRepo) CreateRoom(ctx context.Context, creatorID, typ string, name *string, memberIDs []string) (*model.ChatRoom, bool, error) {
	typ = strings.ToUpper(strings.TrimSpace(typ))
	members := uniqueMembers(creatorID, memberIDs)

	switch typ {
	case model.RoomDirect:
		if len(members) != 2 {
			return nil, false, fmt.Errorf("%w: direct room needs exactly one other member", ErrBadRoom)
		}
		existing, err := r.findDirect(ctx, members[0], members[1])
		if err != nil {
			return nil, false, err
		}
		if existing != "" {
			room, err := r.Room(ctx, existing)
			return room, false, err
		}
	case model.RoomGroup:
		if len(members) < 2 {
			return nil, false, fmt.Errorf("%w: group room needs at least one other member", ErrBadRoom)
		}
	default:
		return nil, false, fmt.Errorf("%w: unknown type %q", ErrBadRoom, typ)
	}

	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			name = nil
		} else {
			name = &n
		}
	}

	now := r.now()
	room := model.ChatRoom{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members", "Messages").Create(&room).Error; err != nil {
			return err
		}
		rows := make([]model.ChatRoomMember, 0, len(members))
		for _, uid := range members {
			rows = append(rows, model.ChatRoomMember{RoomID: room.ID, UserID: uid, JoinedAt: now})
		}
		return tx.Omit("User").Create(&rows).Error
	})
	if err != nil {
		return nil, false, err
	}
	out, err := r.Room(ctx, room.ID)
	return out, true, err
}

func (r *ChatRepo) findDirect(ctx context.Context, a, b string) (string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Table("chat_room_members AS m").
		Joins("JOIN chat_rooms AS r ON r.id = m.room_id").
		Where("r.type = ? AND m.user_id IN ?", model.RoomDirect, []string{a, b}).
		Group("m.room_id").
		Having("COUNT(DISTINCT m.user_id) = 2").
		Limit(1).
		Pluck("m.room_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// ListMessages returns up to limit messages older than beforeID (0 = latest),
// in ascending order.
func (r *ChatRepo) ListMessages(ctx context.Context, roomID string, beforeID int64, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	q := r.db.WithContext(ctx).Preload("Author").Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []model.ChatMessage
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertUser mirrors a portal user so messages can carry author details.
func (r *ChatRepo) UpsertUser(ctx context.Context, u model.User) error {
	now := r.now()
	u.CreatedAt, u.UpdatedAt = now, now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "updated_at"}),
	}).Create(&u).Error
}

func uniqueMembers(creatorID string, ids []string) []string {
	seen := map[string]struct{}{creatorID: {}}
	out := []string{creatorID}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
