package catalog

import (
	"context"
	"time"
)

// Scope selects rows by soft-delete state.
type Scope int

const (
	ScopeActive Scope = iota
	ScopeDeleted
	ScopeAll
)

// CountFilter narrows a Count. CreatedFrom and CreatedTo are inclusive.
type CountFilter struct {
	Scope       Scope
	WithPrice   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type CategoryCount struct {
	Category *string
	Count    int
}

type Store interface {
	Ping(ctx context.Context) error

	// List returns one page of active products matching q.Filter together
	// with the total number of matches.
	List(ctx context.Context, q ListQuery) ([]Product, int, error)

	// FindByExternalID also returns soft-deleted rows.
	FindByExternalID(ctx context.Context, externalID string) (Product, bool, error)
	Insert(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, id string, a Attributes) error
	SoftDelete(ctx context.Context, id string) (bool, error)

	Count(ctx context.Context, f CountFilter) (int, error)
	// CountByCategory groups active rows, largest group first.
	CountByCategory(ctx context.Context) ([]CategoryCount, error)
}
