package domain

import (
	"math"
	"sort"
)

const DefaultPerPage = 20

// PageQuery selects one page of statuses. Zero values fall back to defaults.
type PageQuery struct {
	Page    int
	PerPage int
}

// Normalize applies the defaults: page 1 and 20 per page. Positive values
// pass through unchanged.
func (q PageQuery) Normalize() PageQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	return q
}

// Offset is the number of records preceding the page, saturating at
// math.MaxInt instead of overflowing.
func (q PageQuery) Offset() int {
	if q.Page-1 > math.MaxInt/q.PerPage {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PerPage
}

// Page is the paginated envelope returned by FindMany.
type Page struct {
	Items      []Status `json:"items"`
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	Total      int64    `json:"total"`
	TotalPages int      `json:"totalPages"`
}

// NewPage builds the envelope for q from the page items and the total count.
func NewPage(q PageQuery, items []Status, total int64) Page {
	if items == nil {
		items = []Status{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(q.PerPage) - 1) / int64(q.PerPage))
	}
	return Page{
		Items:      items,
		Page:       q.Page,
		PerPage:    q.PerPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Less orders statuses the way listings present them: provider timestamp
// descending with missing timestamps first (PostgreSQL's DESC default), then
// the most recent insert first.
func Less(a, b Status) bool {
	switch {
	case a.Timestamp == nil && b.Timestamp != nil:
		return true
	case a.Timestamp != nil && b.Timestamp == nil:
		return false
	case a.Timestamp != nil && b.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp):
		return a.Timestamp.After(*b.Timestamp)
	}
	return a.Seq > b.Seq
}

// SortStatuses sorts items in listing order.
func SortStatuses(items []Status) {
	sort.SliceStable(items, func(i, j int) bool { return Less(items[i], items[j]) })
}
