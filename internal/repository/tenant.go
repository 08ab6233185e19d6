package repository

import (
	"context"
	"strings"

	"github.com/straye-as/cultivation-api/internal/auth"
	"gorm.io/gorm"
)

// MaxPageSize is the maximum allowed page size for paginated queries
const MaxPageSize = 200

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortConfig holds sorting configuration for list queries
type SortConfig struct {
	Field string    // The field to sort by (API field name)
	Order SortOrder // asc or desc
}

// DefaultSortConfig returns a default sort configuration (createdAt DESC)
func DefaultSortConfig() SortConfig {
	return SortConfig{Field: "createdAt", Order: SortOrderDesc}
}

// ParseSortOrder parses a string into SortOrder, defaulting to desc
func ParseSortOrder(s string) SortOrder {
	if strings.ToLower(s) == "asc" {
		return SortOrderAsc
	}
	return SortOrderDesc
}

// BuildOrderClause maps an API sort field onto a whitelisted column
func BuildOrderClause(config SortConfig, fieldMap map[string]string, defaultColumn string) string {
	column, ok := fieldMap[config.Field]
	if !ok {
		column = defaultColumn
	}
	order := "DESC"
	if config.Order == SortOrderAsc {
		order = "ASC"
	}
	return column + " " + order
}

// Pagination normalizes page and page size
type Pagination struct {
	Page     int
	PageSize int
}

// Normalize clamps page and page size to valid bounds
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ApplyTenantFilter restricts a query to the tenant in the request scope.
// A query without a tenant scope fails with auth.ErrNoTenantScope instead of
// reading across tenants.
func ApplyTenantFilter(ctx context.Context, query *gorm.DB) *gorm.DB {
	return ApplyTenantFilterWithColumn(ctx, query, "tenant_id")
}

// ApplyTenantFilterWithColumn applies the tenant filter using a specific
// (possibly table-qualified) column name
func ApplyTenantFilterWithColumn(ctx context.Context, query *gorm.DB, column string) *gorm.DB {
	tenantID, err := auth.RequireTenant(ctx)
	if err != nil {
		_ = query.AddError(err)
		return query
	}
	return query.Where(column+" = ?", tenantID)
}

// scoped starts a tenant-filtered query on model
func scoped(ctx context.Context, db *gorm.DB, model interface{}) *gorm.DB {
	return ApplyTenantFilter(ctx, db.WithContext(ctx).Model(model))
}
