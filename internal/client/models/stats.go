package models

import "time"

// ChartPoint is one bucket of a time series.
type ChartPoint struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type Retention struct {
	D7             string         `json:"d7"`
	D30            string         `json:"d30"`
	NewVsReturning map[string]int `json:"new_vs_returning"`
}

// DashboardStats is GET /dashboard/stats for the last 24 hours.
type DashboardStats struct {
	Visitors  int64        `json:"visitors"`
	Views     int64        `json:"views"`
	Session   string       `json:"session"`
	Bounce    string       `json:"bounce"`
	ChartData []ChartPoint `json:"chart_data"`
	Retention *Retention   `json:"retention,omitempty"`
}

type LiveLocation struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	City  string  `json:"city"`
	Count int     `json:"count"`
}

type LiveEvent struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	IP   string `json:"ip"`
	TS   string `json:"ts"`
}

// LiveFeed is GET /analytics/live.
type LiveFeed struct {
	Online    int            `json:"online"`
	Locations []LiveLocation `json:"locations"`
	Events    []LiveEvent    `json:"events"`
	Error     string         `json:"error,omitempty"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Exploration is GET /analytics/explore for an arbitrary date window.
type Exploration struct {
	Visitors  int64        `json:"visitors"`
	Views     int64        `json:"views"`
	Bounce    string       `json:"bounce"`
	ChartData []ChartPoint `json:"chart_data"`
	Pages     []NamedCount `json:"pages"`
	Sources   []NamedCount `json:"sources"`
}

// Funnel is one entry of GET /funnels for a resource.
type Funnel struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	StepsCount int       `json:"steps_count"`
}

// RetentionCohort is the users first seen on CohortDate and the share of
// them seen again on each following day, keyed "day_0", "day_1", ...
type RetentionCohort struct {
	CohortDate string             `json:"cohort_date"`
	CohortSize int64              `json:"cohort_size"`
	Retention  map[string]float64 `json:"retention"`
}

// RetentionReport is GET /analytics/retention.
type RetentionReport struct {
	Cohorts []RetentionCohort `json:"cohorts"`
}

type HostInfo struct {
	Platform      string `json:"platform"`
	Release       string `json:"release"`
	Arch          string `json:"arch"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type CPUStats struct {
	Percent float64   `json:"percent"`
	Cores   int       `json:"cores"`
	LoadAvg []float64 `json:"load_avg"`
}

// UsageStats is used for both memory and disk; sizes are in bytes.
type UsageStats struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
}

// SystemMonitor is GET /system/monitor for the backend host.
type SystemMonitor struct {
	Status string     `json:"status"`
	System HostInfo   `json:"system"`
	CPU    CPUStats   `json:"cpu"`
	Memory UsageStats `json:"memory"`
	Disk   UsageStats `json:"disk"`
}
