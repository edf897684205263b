package models

import "time"

// Campaign is a UTM-tagged tracking link.
type Campaign struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Medium     string    `json:"medium"`
	Campaign   string    `json:"campaign"`
	Slug       string    `json:"slug"`
	IsBotLink  bool      `json:"is_bot_link"`
	ResourceID *int64    `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is a tracking rule: fire Name when Trigger matches Selector.
type Event struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Trigger    string `json:"trigger"`
	Selector   string `json:"selector"`
	ResourceID int64  `json:"resource_id"`
	Count      int64  `json:"count"`
}

// Tag is a third-party snippet injected by the SDK.
type Tag struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Provider   string    `json:"provider"`
	IsActive   bool      `json:"is_active"`
	ResourceID *int64    `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}
