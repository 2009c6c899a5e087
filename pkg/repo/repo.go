// Package repo defines the generic Repository interface, list options and a
// sqlx-backed implementation.
package repo

import (
	"context"
	"errors"
)

// Errors returned by repositories.
var (
	ErrNotFound      = errors.New("repo: not found")
	ErrConflict      = errors.New("repo: conflict")
	ErrInvalidFilter = errors.New("repo: invalid filter")
)

// Repository is a generic CRUD interface.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and filtering for List operations. Filter
// keys are column names matched with equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}

// DefaultLimit applies when ListOpts.Limit is not positive.
const DefaultLimit = 100
