package push

import "time"

// Notification is what callers hand to the dispatcher.
type Notification struct {
	Title string
	Body  string
	URL   string
	Tag   string
	Icon  string
	Badge string
	Data  map[string]any
}

// Payload is the JSON document delivered to the browser service worker.
type Payload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Tag                string         `json:"tag"`
	Data               map[string]any `json:"data"`
	RequireInteraction bool           `json:"requireInteraction"`
	Silent             bool           `json:"silent"`
}

// BuildPayload fills icon/badge from settings when the notification leaves them empty
// and always places the url under data.
func BuildPayload(n Notification, st Settings) Payload {
	data := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	url := n.URL
	if url == "" {
		url = "/"
	}
	data["url"] = url

	icon := n.Icon
	if icon == "" {
		icon = st.Icon
	}
	badge := n.Badge
	if badge == "" {
		badge = st.Badge
	}
	return Payload{
		Title: n.Title,
		Body:  n.Body,
		Icon:  icon,
		Badge: badge,
		Tag:   n.Tag,
		Data:  data,
	}
}

type Subscription struct {
	UserID   string `json:"-"`
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

type Result struct {
	UserID   string    `json:"user_id"`
	OK       bool      `json:"ok"`
	Provider string    `json:"provider,omitempty"`
	Status   int       `json:"status,omitempty"`
	Removed  bool      `json:"removed,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Summary aggregates one batch dispatch.
type Summary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
