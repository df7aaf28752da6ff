// Package model holds the gorm records persisted in the portal's local store.
package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoomDirect = "DIRECT"
	RoomGroup  = "GROUP"

	RoleAdmin = "ADMIN"

	SettingErpLagerTable = "erp_lager_table"
)

type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:191" json:"name"`
	Email     string    `gorm:"size:191" json:"email,omitempty"`
	Role      string    `gorm:"size:32" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ChatRoom struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	Name      *string          `gorm:"size:191" json:"name"`
	Type      string           `gorm:"size:16;not null" json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `gorm:"index" json:"updatedAt"`
	Members   []ChatRoomMember `gorm:"foreignKey:RoomID" json:"members,omitempty"`
	Messages  []ChatMessage    `gorm:"foreignKey:RoomID" json:"messages,omitempty"`
}

type ChatRoomMember struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	RoomID   string    `gorm:"size:36;not null;uniqueIndex:uk_room_user" json:"roomId"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:uk_room_user;index" json:"userId"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"`
	User     *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	RoomID    string    `gorm:"size:36;not null;index:idx_room_msg,priority:1" json:"roomId"`
	AuthorID  string    `gorm:"size:64;not null" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_room_msg,priority:2" json:"createdAt"`
	Author    *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

type PushSubscription struct {
	ID        uint           `gorm:"primaryKey"`
	UserID    string         `gorm:"size:64;not null;uniqueIndex"`
	Endpoint  string         `gorm:"type:text;not null"`
	Keys      datatypes.JSON `gorm:"column:key_data;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Brand struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ErpID     string    `gorm:"size:128;not null;uniqueIndex" json:"erpId"`
	Name      string    `gorm:"size:191" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Sku       string    `gorm:"size:128;not null;uniqueIndex" json:"sku"`
	Name      string    `gorm:"size:255" json:"name"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	Price     *float64  `json:"price"`
	Unit      *string   `gorm:"size:32" json:"unit"`
	Barcode   *string   `gorm:"size:64" json:"barcode"`
	BrandID   *uint     `gorm:"index" json:"brandId"`
	Brand     *Brand    `json:"brand,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ErpID     string    `gorm:"size:128;not null;uniqueIndex" json:"erpId"`
	Name      string    `gorm:"size:255" json:"name"`
	Address   *string   `gorm:"size:255" json:"address"`
	City      *string   `gorm:"size:128" json:"city"`
	Zip       *string   `gorm:"size:16" json:"zip"`
	Phone     *string   `gorm:"size:64" json:"phone"`
	Email     *string   `gorm:"size:191" json:"email"`
	TaxID     *string   `gorm:"size:32" json:"taxId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ClientBranch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ErpID     string    `gorm:"size:128;not null;uniqueIndex" json:"erpId"`
	ClientID  uint      `gorm:"not null;index" json:"clientId"`
	Name      string    `gorm:"size:255" json:"name"`
	Address   *string   `gorm:"size:255" json:"address"`
	City      *string   `gorm:"size:128" json:"city"`
	Zip       *string   `gorm:"size:16" json:"zip"`
	Phone     *string   `gorm:"size:64" json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// All lists every record for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &ChatRoom{}, &ChatRoomMember{}, &ChatMessage{},
		&PushSubscription{}, &Brand{}, &Product{}, &Client{}, &ClientBranch{}, &AppSetting{},
	}
}
