package model

import (
	"math"
	"strings"
	"time"
)

// RetentionWindow is how long the remote service keeps an upload.
const RetentionWindow = 14 * 24 * time.Hour

// LinkRecord stores information about one uploaded file
type LinkRecord struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Link             string    `json:"link"`
	DeleteCredential string    `json:"delete_credential"`
	CreatedAt        time.Time `json:"created_at"`
	ContentHash      string    `json:"content_hash,omitempty"`
}

// IsExpired reports whether the remote copy is expected to be gone at now.
// Always computed from now, never stored.
func (r LinkRecord) IsExpired(now time.Time) bool {
	return now.Sub(r.CreatedAt) >= RetentionWindow
}

// ExpiresAt returns the predicted removal time of the remote copy
func (r LinkRecord) ExpiresAt() time.Time {
	return r.CreatedAt.Add(RetentionWindow)
}

// DaysLeft returns the days until expiry rounded up, so a record that is not
// expired always has at least 1. It is 0 once expired.
func (r LinkRecord) DaysLeft(now time.Time) int {
	if r.IsExpired(now) {
		return 0
	}
	return int(math.Ceil(r.ExpiresAt().Sub(now).Hours() / 24))
}

// MaskCredential hides all but the tail of a delete credential so it can be
// written to logs.
func MaskCredential(credential string) string {
	const visible = 4
	if credential == "" {
		return ""
	}
	if len(credential) <= visible*2 {
		return strings.Repeat("*", len(credential))
	}
	return strings.Repeat("*", 8) + credential[len(credential)-visible:]
}
