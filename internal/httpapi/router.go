// Package httpapi exposes the thin REST endpoints around the relay, push and sync.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/MahirK1/p-sub001/internal/auth"
	"github.com/MahirK1/p-sub001/internal/model"
	"github.com/MahirK1/p-sub001/pkg/push"
)

type ChatStore interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListRooms(ctx context.Context, userID string) ([]model.ChatRoom, error)
	CreateRoom(ctx context.Context, creatorID, typ string, name *string, memberIDs []string) (*model.ChatRoom, bool, error)
	ListMessages(ctx context.Context, roomID string, beforeID int64, limit int) ([]model.ChatMessage, error)
}

type PushStore interface {
	Upsert(ctx context.Context, userID, endpoint string, keys push.Keys) error
	Delete(ctx context.Context, userID string) error
}

type BatchSender interface {
	SendToMultipleUsers(ctx context.Context, userIDs []string, n push.Notification) push.Summary
}

type RoomNotifier interface {
	RoomCreated(ctx context.Context, room *model.ChatRoom)
}

type SyncTrigger interface {
	Trigger(ctx context.Context, kind string) (any, error)
}

type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Deps struct {
	Resolver *auth.Resolver
	Chat     ChatStore
	Push     PushStore
	Sender   BatchSender
	Rooms    RoomNotifier
	Sync     SyncTrigger
	Settings SettingsStore

	// DefaultProductTable is reported when erp_lager_table is unset.
	DefaultProductTable string
	VAPIDPublicKey      string

	WS      http.Handler
	Metrics http.Handler

	CORSOrigins   []string
	SyncPerMinute int
	SyncTimeout   time.Duration

	Log *zap.Logger
}

type api struct {
	Deps
	log *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SyncPerMinute <= 0 {
		d.SyncPerMinute = 6
	}
	if d.SyncTimeout <= 0 {
		d.SyncTimeout = 10 * time.Minute
	}
	a := &api{Deps: d, log: d.Log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(d.Resolver))

		r.Route("/push", func(r chi.Router) {
			r.Get("/vapid-public-key", a.vapidKey)
			r.Post("/subscribe", a.subscribe)
			r.Delete("/subscribe", a.unsubscribe)
			r.With(auth.RequireAdmin).Post("/send", a.sendPush)
		})

		r.Route("/chat/rooms", func(r chi.Router) {
			r.Get("/", a.listRooms)
			r.Post("/", a.createRoom)
			r.Get("/{roomID}/messages", a.listMessages)
		})

		r.With(auth.RequireAdmin, httprate.LimitByIP(d.SyncPerMinute, time.Minute)).
			Post("/erp/sync", a.triggerSync)

		r.Get("/settings/erp-lager-table", a.getLagerTable)
		r.With(auth.RequireAdmin).Put("/settings/erp-lager-table", a.putLagerTable)
	})
	return r
}
