package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/bus"
	"github.com/MahirK1/p-sub001/internal/hub"
	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/internal/repo"
	"github.com/MahirK1/p-sub001/pkg/delivery"
	"github.com/MahirK1/p-sub001/pkg/event"
	"github.com/MahirK1/p-sub001/pkg/producer"
	"github.com/MahirK1/p-sub001/pkg/push"
)

const pushBodyRunes = 120

// Store is the chat slice of the data layer (*repo.ChatRepo).
type Store interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	CreateMessage(ctx context.Context, roomID, authorID, content string) (*model.ChatMessage, error)
	MessageWithAuthor(ctx context.Context, id int64) (*model.ChatMessage, error)
	Room(ctx context.Context, roomID string) (*model.ChatRoom, error)
}

// Pusher queues push fan-outs (*delivery.Notifier).
type Pusher interface {
	Enqueue(t delivery.Task) bool
}

// MemberLister returns a room's member ids (*membercache.Cache).
type MemberLister interface {
	Members(ctx context.Context, roomID string) ([]string, error)
}

// NewMessagePayload is the data of a new-message event.
type NewMessagePayload struct {
	*model.ChatMessage
	Room *model.ChatRoom `json:"room"`
}

type Options struct {
	// ChatURL is a fmt pattern taking the room id, used as the push click target.
	ChatURL string
}

type Service struct {
	hub      *hub.Hub
	out      bus.Broadcaster
	store    Store
	members  MemberLister
	pusher   Pusher
	producer producer.Producer
	log      *zap.Logger
	opt      Options

	// OnMessage, when set, observes every send-message outcome
	// (ok, ignored, not_member, error).
	OnMessage func(result string)
}

func NewService(h *hub.Hub, out bus.Broadcaster, store Store, members MemberLister, pusher Pusher, prod producer.Producer, log *zap.Logger, opt Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if prod == nil {
		prod = producer.Noop{}
	}
	if out == nil {
		out = bus.Local{Hub: h}
	}
	if opt.ChatURL == "" {
		opt.ChatURL = "/chat?room=%s"
	}
	return &Service{hub: h, out: out, store: store, members: members, pusher: pusher, producer: prod, log: log, opt: opt}
}

// Connect registers an authenticated connection and joins it to its user group.
func (s *Service) Connect(c *hub.Conn) {
	s.hub.Add(c)
	s.hub.Join(c.UserID, c)
	s.reply(c, EvConnected, map[string]string{"userId": c.UserID})
}

func (s *Service) Disconnect(c *hub.Conn) {
	s.hub.Remove(c)
}

// Handle dispatches one inbound frame. Unknown events are ignored.
func (s *Service) Handle(ctx context.Context, c *hub.Conn, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.reply(c, EvError, ErrorData{Code: "BAD_FRAME", Message: "malformed frame"})
		return
	}
	switch env.Event {
	case EvJoinRoom:
		s.JoinRoom(ctx, c, roomIDFrom(env.Data))
	case EvLeaveRoom:
		s.LeaveRoom(c, roomIDFrom(env.Data))
	case EvSendMessage:
		var d SendMessageData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			s.result("ignored")
			return
		}
		_ = s.SendMessage(ctx, c, d.RoomID, d.Content)
	case EvPing:
		s.reply(c, EvPong, nil)
	default:
		s.log.Debug("relay: unknown event", zap.String("event", env.Event), zap.String("user_id", c.UserID))
	}
}

// CanJoin reports whether userID is a member of roomID.
func (s *Service) CanJoin(ctx context.Context, userID, roomID string) bool {
	ok, err := s.store.IsMember(ctx, roomID, userID)
	if err != nil {
		s.log.Error("relay: membership lookup failed", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) JoinRoom(ctx context.Context, c *hub.Conn, roomID string) bool {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || roomID == c.UserID {
		return false
	}
	if !s.CanJoin(ctx, c.UserID, roomID) {
		s.reply(c, EvError, ErrorData{Code: "FORBIDDEN", Message: "not a member of this room"})
		return false
	}
	s.hub.Join(roomID, c)
	s.reply(c, EvRoomJoined, map[string]string{"roomId": roomID})
	return true
}

func (s *Service) LeaveRoom(c *hub.Conn, roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" || roomID == c.UserID {
		return
	}
	s.hub.Leave(roomID, c)
}

// SendMessage persists and broadcasts one message. Blank input is a silent no-op.
// Failures are logged and never reported back to the sender; the returned error
// exists for callers that want to observe the outcome.
func (s *Service) SendMessage(ctx context.Context, c *hub.Conn, roomID, content string) error {
	roomID = strings.TrimSpace(roomID)
	content = strings.TrimSpace(content)
	if roomID == "" || content == "" {
		s.result("ignored")
		return nil
	}

	msg, err := s.store.CreateMessage(ctx, roomID, c.UserID, content)
	if err != nil {
		if errors.Is(err, repo.ErrNotMember) {
			s.result("not_member")
			s.log.Warn("relay: send by non-member", zap.String("room_id", roomID), zap.String("user_id", c.UserID))
		} else {
			s.result("error")
			s.log.Error("relay: persist message failed", zap.String("room_id", roomID), zap.String("user_id", c.UserID), zap.Error(err))
		}
		return err
	}
	s.result("ok")

	full, err := s.store.MessageWithAuthor(ctx, msg.ID)
	if err != nil {
		s.log.Warn("relay: reload message failed", zap.Int64("msg_id", msg.ID), zap.Error(err))
		full = msg
	}
	room, err := s.store.Room(ctx, roomID)
	if err != nil {
		s.log.Warn("relay: load room failed", zap.String("room_id", roomID), zap.Error(err))
	}

	frame, err := encode(EvNewMessage, NewMessagePayload{ChatMessage: full, Room: room})
	if err != nil {
		s.log.Error("relay: encode new-message failed", zap.Error(err))
		return err
	}
	if err := s.out.Broadcast(ctx, roomID, frame); err != nil {
		s.log.Error("relay: broadcast failed", zap.String("room_id", roomID), zap.Error(err))
	}

	s.notifyMembers(ctx, full, room)

	evt := event.NewChatMessage(roomID, event.Message{
		MsgID:     full.ID,
		AuthorID:  full.AuthorID,
		Content:   full.Content,
		CreatedAt: full.CreatedAt,
	})
	if err := s.producer.Publish(ctx, evt); err != nil {
		s.log.Warn("relay: publish event failed", zap.Int64("msg_id", full.ID), zap.Error(err))
	}
	return nil
}

func (s *Service) notifyMembers(ctx context.Context, msg *model.ChatMessage, room *model.ChatRoom) {
	if s.pusher == nil {
		return
	}
	var ids []string
	if room != nil && len(room.Members) > 0 {
		for _, m := range room.Members {
			ids = append(ids, m.UserID)
		}
	} else if s.members != nil {
		var err error
		ids, err = s.members.Members(ctx, msg.RoomID)
		if err != nil {
			s.log.Warn("relay: list members failed", zap.String("room_id", msg.RoomID), zap.Error(err))
			return
		}
	}

	recipients := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != msg.AuthorID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	s.pusher.Enqueue(delivery.Task{UserIDs: recipients, Notification: s.notification(msg, room)})
}

func (s *Service) notification(msg *model.ChatMessage, room *model.ChatRoom) push.Notification {
	title := "New message"
	if msg.Author != nil && msg.Author.Name != "" {
		title = msg.Author.Name
	}
	if room != nil && room.Type == model.RoomGroup && room.Name != nil && *room.Name != "" {
		title = *room.Name
	}
	return push.Notification{
		Title: title,
		Body:  truncateRunes(msg.Content, pushBodyRunes),
		URL:   fmt.Sprintf(s.opt.ChatURL, msg.RoomID),
		Tag:   "chat-" + msg.RoomID,
		Data: map[string]any{
			"roomId":    msg.RoomID,
			"messageId": strconv.FormatInt(msg.ID, 10),
			"type":      "chat",
		},
	}
}

// RoomCreated tells every member's user group about a new room.
func (s *Service) RoomCreated(ctx context.Context, room *model.ChatRoom) {
	frame, err := encode(EvRoomCreated, room)
	if err != nil {
		s.log.Error("relay: encode room-created failed", zap.Error(err))
		return
	}
	for _, m := range room.Members {
		if err := s.out.Broadcast(ctx, m.UserID, frame); err != nil {
			s.log.Warn("relay: room-created broadcast failed", zap.String("user_id", m.UserID), zap.Error(err))
		}
	}
}

func (s *Service) reply(c *hub.Conn, event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		s.log.Error("relay: encode reply failed", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.Send(b) {
		s.log.Debug("relay: reply dropped", zap.String("conn_id", c.ID), zap.String("event", event))
	}
}

func (s *Service) result(r string) {
	if s.OnMessage != nil {
		s.OnMessage(r)
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
