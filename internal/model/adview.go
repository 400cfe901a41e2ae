package model

import "time"

// AdView records one completed advertisement playback by a user.
// Rows are append-only: they are never updated or deleted.
type AdView struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	ViewedAt time.Time `json:"viewedAt"`
}
