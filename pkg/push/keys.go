package push

import (
	"encoding/json"
	"strings"
)

// Keys are the browser-issued encryption keys of a subscription.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (k Keys) Valid() bool {
	return strings.TrimSpace(k.P256dh) != "" && strings.TrimSpace(k.Auth) != ""
}

// ParseKeys decodes a stored key blob. Only the canonical field names are accepted;
// rows still using p256dhKey/authKey must go through NormalizeKeys first.
func ParseKeys(raw []byte) (Keys, error) {
	var k Keys
	if len(raw) == 0 {
		return k, ErrInvalidKeys
	}
	if err := json.Unmarshal(raw, &k); err != nil {
		return k, ErrInvalidKeys
	}
	if !k.Valid() {
		return k, ErrInvalidKeys
	}
	return k, nil
}

type legacyKeys struct {
	P256dh    string `json:"p256dh"`
	Auth      string `json:"auth"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

// NormalizeKeys reads either naming variant and reports whether the blob needs rewriting.
func NormalizeKeys(raw []byte) (Keys, bool, error) {
	var l legacyKeys
	if err := json.Unmarshal(raw, &l); err != nil {
		return Keys{}, false, ErrInvalidKeys
	}
	k := Keys{P256dh: l.P256dh, Auth: l.Auth}
	changed := l.P256dhKey != "" || l.AuthKey != ""
	if k.P256dh == "" {
		k.P256dh = l.P256dhKey
	}
	if k.Auth == "" {
		k.Auth = l.AuthKey
	}
	if !k.Valid() {
		return k, changed, ErrInvalidKeys
	}
	return k, changed, nil
}
