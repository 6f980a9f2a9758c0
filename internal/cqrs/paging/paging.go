// Package paging carries the list-query paging parameters and their parsing
// rules. Defaults: page 1, unlimited page size, ascending sort on the
// store's natural column, no filter.
package paging

import (
	"net/url"
	"strconv"
)

// Parameters controls paging, sorting and filtering for list queries.
// PageSize 0 means unlimited.
type Parameters struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	SortColumn string `json:"sortColumn"`
	Ascending  bool   `json:"ascending"`
	Filter     string `json:"filter"`
}

// Default returns the parameters used when the caller supplies nothing.
func Default() Parameters {
	return Parameters{Page: 1, PageSize: 0, Ascending: true}
}

// FromQuery parses parameters from URL query values. Invalid or missing
// values silently fall back to the defaults.
func FromQuery(values url.Values) Parameters {
	p := Default()

	if page, err := strconv.Atoi(values.Get("page")); err == nil && page > 0 {
		p.Page = page
	}
	if size, err := strconv.Atoi(values.Get("pageSize")); err == nil && size >= 0 {
		p.PageSize = size
	}
	p.SortColumn = values.Get("sortColumn")
	if asc, err := strconv.ParseBool(values.Get("ascending")); err == nil {
		p.Ascending = asc
	}
	p.Filter = values.Get("filter")

	return p
}

// Offset returns the row offset implied by Page and PageSize.
func (p Parameters) Offset() int {
	if p.PageSize <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}
