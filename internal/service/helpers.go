package service

import (
	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/pkg/query"
)

// paginationFor derives pagination metadata from the parsed query options.
// When the caller supplied no page/limit pair the whole result set was
// returned, so the metadata reflects a single page holding everything.
func paginationFor(opts query.Options, total int) *models.Pagination {
	page, size := opts.Page()
	if size <= 0 {
		page = 1
		size = total
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
