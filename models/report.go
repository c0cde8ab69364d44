package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportFilter scopes every analytics query. Nil bounds are unbounded and
// End is inclusive of the whole day.
type ReportFilter struct {
	Start     *time.Time
	End       *time.Time
	CompanyID *uuid.UUID
	Status    *AttemptStatus
}

// Channel and platform fallbacks
const (
	UnknownDimension = "desconocido"
	PlatformBot      = "bot"
	PlatformMobile   = "mobile"
	PlatformDesktop  = "desktop"
)

type DailyStatusRow struct {
	Day    time.Time `json:"day"`
	Status string    `json:"status"`
	Total  int64     `json:"total"`
}

type StatusTotal struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

// DailyStatusReport is the raw top-of-funnel volume view
type DailyStatusReport struct {
	Items  []DailyStatusRow `json:"items"`
	Totals []StatusTotal    `json:"totals"`
}

type ConversionSummary struct {
	TotalLogs  int64 `json:"total_logs"`
	Matched    int64 `json:"matched"`
	Interviews int64 `json:"interviews"`
	Offers     int64 `json:"offers"`
	Hires      int64 `json:"hires"`
}

// CurrentStatusCount counts matched applications by their current status
type CurrentStatusCount struct {
	Status *string `json:"status"`
	Total  int64   `json:"total"`
}

type ConversionReport struct {
	Summary ConversionSummary    `json:"summary"`
	Status  []CurrentStatusCount `json:"status"`
}

type ResponseTimeReport struct {
	Samples     int64    `json:"samples"`
	AvgHours    *float64 `json:"avg_hours"`
	MedianHours *float64 `json:"median_hours"`
	P90Hours    *float64 `json:"p90_hours"`
}

// FunnelCounts is the per-channel funnel
type FunnelCounts struct {
	TotalLogs  int64 `json:"total_logs"`
	Matched    int64 `json:"matched"`
	Interviews int64 `json:"interviews"`
	Offers     int64 `json:"offers"`
	Hires      int64 `json:"hires"`
}

type ChannelDailyRow struct {
	Day     string `json:"day"`
	Channel string `json:"channel"`
	FunnelCounts
}

type ChannelTotalRow struct {
	Channel string `json:"channel"`
	FunnelCounts
}

type PlatformDailyRow struct {
	Day      string `json:"day"`
	Platform string `json:"platform"`
	Total    int64  `json:"total"`
}

type PlatformTotalRow struct {
	Platform string `json:"platform"`
	Total    int64  `json:"total"`
}

type ChannelBreakdown struct {
	Breakdown []ChannelDailyRow `json:"breakdown"`
	Totals    []ChannelTotalRow `json:"totals"`
}

type PlatformBreakdown struct {
	Breakdown []PlatformDailyRow `json:"breakdown"`
	Totals    []PlatformTotalRow `json:"totals"`
}

// SourcesReport attributes attempts to channels and platforms
type SourcesReport struct {
	Channels  ChannelBreakdown  `json:"channels"`
	Platforms PlatformBreakdown `json:"platforms"`
}

type InvitationDailyRow struct {
	Day       string `json:"day"`
	Sent      int64  `json:"sent"`
	Reused    int64  `json:"reused"`
	Delivered int64  `json:"delivered"`
}

type InvitationAcceptance struct {
	InvitedUsers     int64    `json:"invited_users"`
	AcceptedUsers    int64    `json:"accepted_users"`
	AvgHoursToAccept *float64 `json:"avg_hours_to_accept"`
}

type AcceptedDailyRow struct {
	Day      string `json:"day"`
	Accepted int64  `json:"accepted"`
}

type InvitationReport struct {
	Events           []InvitationDailyRow `json:"events"`
	Acceptance       InvitationAcceptance `json:"acceptance"`
	AcceptedTimeline []AcceptedDailyRow   `json:"acceptedTimeline"`
}
