package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/auth"
	"github.com/MahirK1/p-sub001/internal/erp"
	"github.com/MahirK1/p-sub001/internal/erpsync"
	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/internal/repo"
	"github.com/MahirK1/p-sub001/pkg/push"
)

const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func (a *api) vapidKey(w http.ResponseWriter, r *http.Request) {
	if a.VAPIDPublicKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": a.VAPIDPublicKey})
}

type subscribeReq struct {
	Endpoint string    `json:"endpoint"`
	Keys     push.Keys `json:"keys"`
}

func (a *api) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeReq
	if !decode(w, r, &req) {
		return
	}
	err := a.Push.Upsert(r.Context(), identity(r).UserID, req.Endpoint, req.Keys)
	if errors.Is(err, push.ErrInvalidArgument) {
		writeError(w, http.StatusBadRequest, "endpoint and keys.p256dh/keys.auth are required")
		return
	}
	if err != nil {
		a.log.Error("save push subscription failed", zap.String("user_id", identity(r).UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := a.Push.Delete(r.Context(), identity(r).UserID); err != nil {
		a.log.Error("delete push subscription failed", zap.String("user_id", identity(r).UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendPushReq struct {
	UserIDs []string `json:"userIds"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	URL     string   `json:"url"`
	Tag     string   `json:"tag"`
}

func (a *api) sendPush(w http.ResponseWriter, r *http.Request) {
	var req sendPushReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "title and userIds are required")
		return
	}
	sum := a.Sender.SendToMultipleUsers(r.Context(), req.UserIDs, push.Notification{
		Title: req.Title,
		Body:  req.Body,
		URL:   req.URL,
		Tag:   req.Tag,
	})
	writeJSON(w, http.StatusOK, sum)
}

func (a *api) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.Chat.ListRooms(r.Context(), identity(r).UserID)
	if err != nil {
		a.log.Error("list rooms failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rooms == nil {
		rooms = []model.ChatRoom{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

type createRoomReq struct {
	Type      string   `json:"type"`
	Name      *string  `json:"name"`
	MemberIDs []string `json:"memberIds"`
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if !decode(w, r, &req) {
		return
	}
	room, created, err := a.Chat.CreateRoom(r.Context(), identity(r).UserID, req.Type, req.Name, req.MemberIDs)
	if errors.Is(err, repo.ErrBadRoom) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.log.Error("create room failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, room)
		return
	}
	if a.Rooms != nil {
		a.Rooms.RoomCreated(context.WithoutCancel(r.Context()), room)
	}
	writeJSON(w, http.StatusCreated, room)
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	ok, err := a.Chat.IsMember(r.Context(), roomID, identity(r).UserID)
	if err != nil {
		a.log.Error("membership lookup failed", zap.String("room_id", roomID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	q := r.URL.Query()
	var before int64
	if v := q.Get("before"); v != "" {
		before, err = strconv.ParseInt(v, 10, 64)
		if err != nil || before < 0 {
			writeError(w, http.StatusBadRequest, "invalid before")
			return
		}
	}
	limit := 50
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	msgs, err := a.Chat.ListMessages(r.Context(), roomID, before, limit)
	if err != nil {
		a.log.Error("list messages failed", zap.String("room_id", roomID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *api) triggerSync(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeError(w, http.StatusServiceUnavailable, "erp sync disabled on this node")
		return
	}
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = erpsync.KindAll
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.SyncTimeout)
	defer cancel()

	stats, err := a.Sync.Trigger(ctx, kind)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stats)
	case errors.Is(err, erpsync.ErrSyncRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, erpsync.ErrUnknownKind), errors.Is(err, erp.ErrInvalidTable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error("manual erp sync failed", zap.String("type", kind), zap.Error(err))
		writeError(w, http.StatusBadGateway, "erp sync failed: "+err.Error())
	}
}

type settingResp struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	IsDefault bool   `json:"isDefault"`
}

func (a *api) getLagerTable(w http.ResponseWriter, r *http.Request) {
	v, ok, err := a.Settings.Get(r.Context(), model.SettingErpLagerTable)
	if err != nil {
		a.log.Error("read setting failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok || strings.TrimSpace(v) == "" {
		writeJSON(w, http.StatusOK, settingResp{Key: model.SettingErpLagerTable, Value: a.DefaultProductTable, IsDefault: true})
		return
	}
	writeJSON(w, http.StatusOK, settingResp{Key: model.SettingErpLagerTable, Value: v})
}

func (a *api) putLagerTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	v := strings.TrimSpace(req.Value)
	if _, err := erp.QuoteTable(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.Settings.Set(r.Context(), model.SettingErpLagerTable, v); err != nil {
		a.log.Error("write setting failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, settingResp{Key: model.SettingErpLagerTable, Value: v})
}
