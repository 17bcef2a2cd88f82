package shared

import "math"

const (
	// DefaultPageSize applies when a listing request omits its limit.
	DefaultPageSize = 30
	// MaxPageSize bounds a single page.
	MaxPageSize = 500
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"current_page"`
	PerPage    int `json:"page_size"`
	Total      int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// NormalizePage applies the 1-based page and default size rules.
func NormalizePage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

// Offset returns the row offset for a normalized page.
func Offset(page, perPage int) int {
	page, perPage = NormalizePage(page, perPage)
	return (page - 1) * perPage
}
