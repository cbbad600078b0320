package httpx

import (
	"math"
	"net/http"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 10
	// MaxPage keeps page*size well inside a positive int64 offset.
	MaxPage = math.MaxInt32
)

// Pagination reads ?page and ?size. A missing, malformed or negative page
// becomes 0 and a larger one than MaxPage becomes MaxPage; a size outside
// 1..MaxPageSize becomes DefaultPageSize.
func Pagination(r *http.Request) (page, size int) {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		page = 0
	}
	if page > MaxPage {
		page = MaxPage
	}

	size, err = strconv.Atoi(q.Get("size"))
	if err != nil || size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return page, size
}
