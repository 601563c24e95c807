package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 100
)

// Query holds parsed pagination parameters.
type Query struct {
	Page int
	Size int
}

// FromContext extracts and validates pagination params from the request.
func FromContext(c *gin.Context) Query {
	return New(
		parseIntOr(c.Query("page"), DefaultPage),
		parseIntOr(c.Query("size"), DefaultSize),
	)
}

// New clamps page and size into the accepted range.
func New(page, size int) Query {
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return Query{Page: page, Size: size}
}

// Paginate counts the rows matched by db, then loads one page ordered by
// order. Count runs without the ORDER BY so it stays valid on postgres.
func Paginate[T any](db *gorm.DB, q Query, order string, dest *[]T) (response.Pagination, error) {
	q = New(q.Page, q.Size)

	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}

	page := db.Session(&gorm.Session{})
	if order != "" {
		page = page.Order(order)
	}
	offset := (q.Page - 1) * q.Size
	if err := page.Offset(offset).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}

	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))

	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}, nil
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
