package relay

import (
	"encoding/json"
)

const (
	EvJoinRoom    = "join-room"
	EvLeaveRoom   = "leave-room"
	EvSendMessage = "send-message"
	EvPing        = "ping"

	EvConnected   = "connected"
	EvNewMessage  = "new-message"
	EvRoomJoined  = "room-joined"
	EvRoomCreated = "room-created"
	EvPong        = "pong"
	EvError       = "error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessageData struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// roomIDFrom accepts both "room-1" and {"roomId":"room-1"}.
func roomIDFrom(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.RoomID
	}
	return ""
}
