package models

import (
	"fmt"
	"strconv"
	"time"
)

// ResourceType classifies a trackable entity.
type ResourceType string

const (
	ResourceWebsite     ResourceType = "Website"
	ResourceTelegramBot ResourceType = "Telegram Bot"
	ResourceMobileApp   ResourceType = "Mobile Application"
)

// UIDPrefix returns the tracking-uid prefix for the type.
func (t ResourceType) UIDPrefix() string {
	switch t {
	case ResourceTelegramBot:
		return "ot_bot_"
	case ResourceMobileApp:
		return "ot_app_"
	default:
		return "ot_web_"
	}
}

// ParseResourceType accepts the display name or a short alias
// (web, bot, app).
func ParseResourceType(s string) (ResourceType, error) {
	switch s {
	case string(ResourceWebsite), "web", "website":
		return ResourceWebsite, nil
	case string(ResourceTelegramBot), "bot", "telegram":
		return ResourceTelegramBot, nil
	case string(ResourceMobileApp), "app", "mobile":
		return ResourceMobileApp, nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

type ResourceStatus string

const (
	StatusActive   ResourceStatus = "Active"
	StatusInactive ResourceStatus = "Inactive"
)

// Resource is a trackable website, bot or app. UID is immutable and is the
// value embedded in the public tracking snippet.
type Resource struct {
	ID        int64          `json:"id"`
	UID       string         `json:"uid"`
	Name      string         `json:"name"`
	Type      ResourceType   `json:"type"`
	Status    ResourceStatus `json:"status"`
	Token     *string        `json:"token,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IDString is the persisted form of the resource id.
func (r Resource) IDString() string {
	return strconv.FormatInt(r.ID, 10)
}

// ResourceDraft is the POST /resources body.
type ResourceDraft struct {
	UID    string         `json:"uid"`
	Name   string         `json:"name"`
	Type   ResourceType   `json:"type"`
	Token  *string        `json:"token"`
	Status ResourceStatus `json:"status"`
}

// ResourcePatch is the PUT /resources/{id} body. Only name and status are
// mutable.
type ResourcePatch struct {
	Name   *string         `json:"name,omitempty"`
	Status *ResourceStatus `json:"status,omitempty"`
}

// DeleteRequest is the body of every password-gated DELETE.
type DeleteRequest struct {
	Password string `json:"password"`
}
