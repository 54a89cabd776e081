package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params selects one page of a listing. The zero value selects every item.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns the first page at the default page size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// Enabled reports whether p selects a single page.
func (p Params) Enabled() bool {
	return p.PerPage > 0
}

// Offset is the index of the first item on the page.
func (p Params) Offset() int {
	if !p.Enabled() || p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PerPage
}

// FromRequest reads page and per_page from the query string. A request that
// names neither gets the zero Params. Out-of-range values fall back to the
// defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	if !q.Has("page") && !q.Has("per_page") {
		return Params{}
	}

	p := DefaultParams()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= MaxPerPage {
		p.PerPage = v
	}
	return p
}

// Meta describes the page that was returned.
type Meta struct {
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewMeta computes page metadata for a listing of totalCount items.
func NewMeta(totalCount int, p Params) Meta {
	totalPages := totalCount / p.PerPage
	if totalCount%p.PerPage > 0 {
		totalPages++
	}

	return Meta{
		TotalCount: totalCount,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

// Slice cuts the selected page out of items. When p is not enabled items is
// returned unchanged with nil metadata. A page past the end is empty, never nil.
func Slice[T any](items []T, p Params) ([]T, *Meta) {
	if !p.Enabled() {
		return items, nil
	}
	if p.Page < 1 {
		p.Page = 1
	}

	meta := NewMeta(len(items), p)
	start := min(p.Offset(), len(items))
	end := min(start+p.PerPage, len(items))

	page := make([]T, end-start)
	copy(page, items[start:end])
	return page, &meta
}
