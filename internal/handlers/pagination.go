package handlers

import (
	"net/http"
	"strconv"

	"issuetracker/internal/config"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
)

// Pagination is the block every list response carries next to its items
type Pagination struct {
	Count    int  `json:"count"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Pages    int  `json:"pages"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_previous"`
}

func newPagination(total, page, size int) Pagination {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Pagination{
		Count:    total,
		Page:     page,
		PageSize: size,
		Pages:    pages,
		HasNext:  page < pages,
		HasPrev:  page > 1,
	}
}

// ParsePagination parses standard pagination query params from the request.
// It enforces bounds and applies defaults when values are missing or invalid.
func ParsePagination(c *gin.Context, defaultPage, defaultSize, maxSize int) (int, int) {
	pageStr := c.DefaultQuery("page", strconv.Itoa(defaultPage))
	sizeStr := c.DefaultQuery("page_size", strconv.Itoa(defaultSize))

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = defaultPage
	}

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	return page, size
}

// pageRequest reads page/page_size with the configured bounds
func pageRequest(c *gin.Context, cfg config.PaginationConfig) services.PageRequest {
	def, max := cfg.DefaultPageSize, cfg.MaxPageSize
	if def <= 0 {
		def = 20
	}
	if max < def {
		max = def
	}
	page, size := ParsePagination(c, 1, def, max)
	return services.PageRequest{Page: page, PageSize: size}
}

// WritePaginated standardizes paginated responses with a flexible items key, pagination block, and optional extras.
func WritePaginated(c *gin.Context, itemsKey string, items, pagination any, extra gin.H) {
	response := gin.H{
		itemsKey:     items,
		"pagination": pagination,
	}
	for k, v := range extra {
		response[k] = v
	}
	c.JSON(http.StatusOK, response)
}

// writePage writes one page of results under "results"
func writePage(c *gin.Context, items any, total int, page services.PageRequest) {
	WritePaginated(c, "results", items, newPagination(total, page.Page, page.PageSize), nil)
}
