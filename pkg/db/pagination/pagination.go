package pagination

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

// Pagination is bound from query parameters on list endpoints.
type Pagination struct {
	Page  int `form:"page,default=1" validate:"gte=1"`
	Limit int `form:"limit,default=20" validate:"gte=1,lte=250"`
}

// Page is the standard paginated response shape: the overall row count
// plus the requested slice.
type Page[T any] struct {
	Total int64 `json:"total"`
	Items []*T  `json:"items"`
}

func NewPage[T any](total int64, items []*T) *Page[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &Page[T]{Total: total, Items: items}
}
