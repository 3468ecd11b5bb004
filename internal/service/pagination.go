package service

const (
	DefaultPerPage = 24
	MaxPerPage     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and perPage and derives the page count.
func NewPagination(page, perPage, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

func (p Pagination) bounds(n int) (start, end int) {
	start = min((p.Page-1)*p.PerPage, n)
	end = min(start+p.PerPage, n)
	return start, end
}

// paginate returns the window of items p selects. Pages past the end are empty.
func paginate[T any](items []T, p Pagination) []T {
	start, end := p.bounds(len(items))
	return items[start:end]
}
