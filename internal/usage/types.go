package usage

import (
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
)

// PlatformUsage is a per-platform total over a period.
type PlatformUsage struct {
	Duration int `json:"duration"`
	Sessions int `json:"sessions"`
}

// DayUsage is one platform's total on one date.
type DayUsage struct {
	Platform platform.Platform `json:"platform"`
	Date     string            `json:"date"`
	Duration int               `json:"duration"`
}

// HistoryQuery selects one page of a user's activity history.
type HistoryQuery struct {
	Page     int
	Limit    int
	Platform platform.Platform
	Date     string
}

// HistoryPage is one page of a user's activity history.
type HistoryPage struct {
	Activities  []storage.Activity `json:"activities"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Total       int                `json:"total"`
}

// Close reasons recorded in metrics and logs.
const (
	closeReasonEnded    = "ended"
	closeReasonReplaced = "replaced"
	closeReasonStale    = "stale"
)
