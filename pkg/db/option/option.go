// Package option provides composable query modifiers for the generic store.
package option

import (
	"fmt"
	"strings"

	"github.com/revora/revora/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition applies a single comparison against a column.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type operatorOption struct {
	cond Condition
}

func (o operatorOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.cond.Field)
	if field == "" {
		return db
	}
	return db.Where(fmt.Sprintf("%s %s ?", field, o.cond.Operator), o.cond.Value)
}

func ApplyOperator(cond Condition) QueryOption {
	return operatorOption{cond: cond}
}

// QuerySortBy restricts sorting to an allow-list of columns.
type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

type sortOption struct {
	sort QuerySortBy
}

func (o sortOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.sort.Field)
	if field == "" {
		field = "created_at"
	}
	if len(o.sort.Allow) > 0 && !o.sort.Allow[field] {
		field = "created_at"
	}
	direction := "ASC"
	if o.sort.Desc {
		direction = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", field, direction))
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return sortOption{sort: sort}
}

type paginationOption struct {
	page pagination.Pagination
}

func (o paginationOption) Apply(db *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 10
	}
	if size > 250 {
		size = 250
	}

	if token := strings.TrimSpace(o.page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err == nil && cursor != nil && cursor.CreatedAt != "" {
			db = db.Where("created_at > ?", cursor.CreatedAt)
		}
	}

	// Fetch one extra row so the caller can detect another page.
	return db.Limit(size + 1)
}

func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}
