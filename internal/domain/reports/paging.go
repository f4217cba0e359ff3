package reports

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// NormalizePage clamps page to >= 1 and page size to [1, MaxPageSize].
// Callers substitute DefaultPageSize when no size was requested.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total int64, pageSize int) int64 {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(pageSize) - 1) / int64(pageSize)
}
