package dashboard

import (
	"encoding/json"
	"time"
)

// BannerType selects the banner appearance.
type BannerType string

const (
	BannerInfo    BannerType = "info"
	BannerSuccess BannerType = "success"
	BannerError   BannerType = "error"
)

// Banner is the transient inline message shown above the table.
type Banner struct {
	Visible      bool          `json:"visible"`
	Type         BannerType    `json:"type,omitempty"`
	Message      string        `json:"message,omitempty"`
	DismissAfter time.Duration `json:"-"`
}

// Hidden is the dismissed banner state.
func Hidden() Banner {
	return Banner{}
}

// Info builds an informational banner.
func Info(message string) Banner {
	return Banner{Visible: true, Type: BannerInfo, Message: message}
}

// Success builds a success banner.
func Success(message string) Banner {
	return Banner{Visible: true, Type: BannerSuccess, Message: message}
}

// Error builds an error banner.
func Error(message string) Banner {
	return Banner{Visible: true, Type: BannerError, Message: message}
}

// WithDismiss returns a copy of b that hides itself after d.
func (b Banner) WithDismiss(d time.Duration) Banner {
	b.DismissAfter = d
	return b
}

// MarshalJSON writes DismissAfter as whole milliseconds for the browser.
func (b Banner) MarshalJSON() ([]byte, error) {
	type plain Banner
	return json.Marshal(struct {
		plain
		DismissAfterMS int64 `json:"dismissAfterMs,omitempty"`
	}{plain: plain(b), DismissAfterMS: b.DismissAfter.Milliseconds()})
}
