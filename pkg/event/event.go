package event

import "time"

const (
	ChatMessageCreated = "chat.message.created"
	SyncCompleted      = "erp.sync.completed"
)

// PortalEvent is the broker envelope for downstream consumers (audit, mail digests).
// Treat it as a contract; add fields, never repurpose them.
type PortalEvent struct {
	Event  string            `json:"event"`
	TS     int64             `json:"ts"` // unix seconds
	RoomID string            `json:"room_id,omitempty"`
	UserID string            `json:"user_id,omitempty"`
	Msg    *Message          `json:"msg,omitempty"`
	Sync   map[string]any    `json:"sync,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

type Message struct {
	MsgID     int64     `json:"msg_id,string"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewChatMessage(roomID string, m Message) *PortalEvent {
	return &PortalEvent{
		Event:  ChatMessageCreated,
		TS:     time.Now().Unix(),
		RoomID: roomID,
		UserID: m.AuthorID,
		Msg:    &m,
	}
}

func NewSyncCompleted(kind string, stats map[string]any) *PortalEvent {
	return &PortalEvent{
		Event: SyncCompleted,
		TS:    time.Now().Unix(),
		Sync:  stats,
		Meta:  map[string]string{"type": kind},
	}
}
