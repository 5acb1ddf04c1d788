package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccessLog counts visits from one client address.
type AccessLog struct {
	ID           uuid.UUID `json:"id"`
	IPv4         string    `json:"ipv4,omitempty"`
	IPv6         string    `json:"ipv6,omitempty"`
	Email        string    `json:"email,omitempty"`
	AccessCount  int       `json:"access_count"`
	LastAccessAt time.Time `json:"last_access_time"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClientAddress is the pair of addresses a browser reports.
type ClientAddress struct {
	IPv4 string
	IPv6 string
}

// Primary returns the identifying address, preferring IPv6, and whether it
// is the IPv6 one.
func (a ClientAddress) Primary() (string, bool, error) {
	v6 := strings.TrimSpace(a.IPv6)
	if v6 != "" {
		return v6, true, nil
	}
	v4 := strings.TrimSpace(a.IPv4)
	if v4 != "" {
		return v4, false, nil
	}
	return "", false, ErrMissingIP
}

// Access log sort columns.
var accessLogSortFields = map[string]bool{
	"id":               true,
	"ipv4":             true,
	"ipv6":             true,
	"email":            true,
	"access_count":     true,
	"last_access_time": true,
	"created_at":       true,
}

// Default and maximum page sizes for access log listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// AccessLogQuery selects a page of access logs.
type AccessLogQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Search    string
}

// Normalize clamps paging and replaces unknown sort fields with defaults.
func (q AccessLogQuery) Normalize() AccessLogQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if !accessLogSortFields[q.SortBy] {
		q.SortBy = "last_access_time"
	}
	if strings.EqualFold(q.SortOrder, "asc") {
		q.SortOrder = "ASC"
	} else {
		q.SortOrder = "DESC"
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Offset is the number of rows skipped before the page.
func (q AccessLogQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// AccessLogPage is one page of access logs.
type AccessLogPage struct {
	Data       []AccessLog `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

// NewAccessLogPage computes TotalPages for a page of results.
func NewAccessLogPage(data []AccessLog, total int, q AccessLogQuery) AccessLogPage {
	pages := 0
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	if data == nil {
		data = []AccessLog{}
	}
	return AccessLogPage{Data: data, Total: total, Page: q.Page, Limit: q.Limit, TotalPages: pages}
}
