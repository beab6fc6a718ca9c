package option

import (
	"time"

	"licenseplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption composes additional clauses onto a repository query.
type QueryOption func(*gorm.DB) *gorm.DB

func Apply(tx *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		tx = opt(tx)
	}
	return tx
}

func Where(query interface{}, args ...interface{}) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(query, args...)
	}
}

func Order(value string) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order(value)
	}
}

func Limit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	}
}

func Offset(offset int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	}
}

// TimeRange bounds a timestamp column. Zero bounds are skipped so callers
// can pass open-ended ranges.
func TimeRange(column string, start, end time.Time) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if !start.IsZero() {
			tx = tx.Where(column+" >= ?", start)
		}
		if !end.IsZero() {
			tx = tx.Where(column+" <= ?", end)
		}
		return tx
	}
}

func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		limit := p.Limit
		if limit <= 0 {
			limit = pagination.DefaultLimit
		}
		if limit > pagination.MaxLimit {
			limit = pagination.MaxLimit
		}
		if p.Page > 1 {
			tx = tx.Offset((p.Page - 1) * limit)
		}
		return tx.Limit(limit)
	}
}
