package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListQuery 承载搜索分页端点的统一查询参数。
type ListQuery struct {
	Search        string
	Page          int
	PageSize      int
	SortColumn    string
	SortDirection string
}

// ParseListQuery 从请求中解析 search/page/page_size/sort_column/sort_direction。
// page 与 page_size 基于 1，page_size 缺省 10、超过 100 时收敛到 100。
func ParseListQuery(c *gin.Context) (ListQuery, error) {
	q := ListQuery{
		Search:        strings.TrimSpace(c.Query("search")),
		Page:          1,
		PageSize:      defaultPageSize,
		SortColumn:    strings.TrimSpace(c.Query("sort_column")),
		SortDirection: normalizeSortDirection(c.Query("sort_direction")),
	}

	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, fmt.Errorf("invalid page value %q", raw)
		}
		q.Page = page
	}

	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return q, fmt.Errorf("invalid page_size value %q", raw)
		}
		if size > maxPageSize {
			size = maxPageSize
		}
		q.PageSize = size
	}

	return q, nil
}

// Offset 返回当前页对应的行偏移。
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// ApplySearch 在给定文本列上做大小写不敏感的子串匹配，多列之间取 OR。
func ApplySearch(tx *gorm.DB, search string, columns []string) *gorm.DB {
	if search == "" || len(columns) == 0 {
		return tx
	}

	pattern := "%" + strings.ToLower(search) + "%"
	clauses := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ?", column))
		args = append(args, pattern)
	}
	return tx.Where(strings.Join(clauses, " OR "), args...)
}

// ApplySort 按照允许列表应用排序；不认识的 sort_column 不报错，仅保持无序返回。
func ApplySort(tx *gorm.DB, q ListQuery, sortable map[string]string) *gorm.DB {
	if q.SortColumn == "" {
		return tx
	}
	column, ok := sortable[strings.ToLower(q.SortColumn)]
	if !ok {
		return tx
	}
	return tx.Order(fmt.Sprintf("%s %s", column, q.SortDirection))
}

// normalizeSortDirection 规范化排序方向字符串。
func normalizeSortDirection(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "desc", "descending", "descend", "down":
		return "desc"
	default:
		return "asc"
	}
}
