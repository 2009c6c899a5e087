package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLRepo is a generic table-backed repository. T must carry `db` struct
// tags for every column it reads or writes.
type SQLRepo[T any, ID comparable] struct {
	db      *sqlx.DB
	table   string
	idCol   string
	columns []string
	orderBy string
	allowed map[string]bool
}

// SQLOption configures a SQLRepo.
type SQLOption[T any, ID comparable] func(*SQLRepo[T, ID])

// WithIDColumn sets the primary key column (default "id").
func WithIDColumn[T any, ID comparable](col string) SQLOption[T, ID] {
	return func(r *SQLRepo[T, ID]) { r.idCol = col }
}

// WithOrderBy sets the ORDER BY clause used by List (default the id column).
func WithOrderBy[T any, ID comparable](clause string) SQLOption[T, ID] {
	return func(r *SQLRepo[T, ID]) { r.orderBy = clause }
}

// NewSQLRepo creates a repository over table. columns are the writable
// columns used by Create and Update; generated columns such as the id and
// timestamps are left to the database.
func NewSQLRepo[T any, ID comparable](db *sqlx.DB, table string, columns []string, opts ...SQLOption[T, ID]) *SQLRepo[T, ID] {
	r := &SQLRepo[T, ID]{
		db:      db,
		table:   table,
		idCol:   "id",
		columns: columns,
	}
	for _, o := range opts {
		o(r)
	}
	if r.orderBy == "" {
		r.orderBy = r.idCol
	}
	r.allowed = make(map[string]bool, len(columns)+1)
	r.allowed[r.idCol] = true
	for _, c := range columns {
		r.allowed[c] = true
	}
	return r
}

// Compile-time interface check.
var _ Repository[struct{}, int64] = (*SQLRepo[struct{}, int64])(nil)

func (r *SQLRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var out T
	q := r.db.Rebind(fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", r.table, r.idCol))
	if err := r.db.GetContext(ctx, &out, q, id); err != nil {
		return out, r.wrap("get", err)
	}
	return out, nil
}

// FindOne returns the first row matching every filter column.
func (r *SQLRepo[T, ID]) FindOne(ctx context.Context, filter map[string]any) (T, error) {
	var out T
	where, args, err := r.where(filter)
	if err != nil {
		return out, err
	}
	q := r.db.Rebind(fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT 1", r.table, where, r.orderBy))
	if err := r.db.GetContext(ctx, &out, q, args...); err != nil {
		return out, r.wrap("find", err)
	}
	return out, nil
}

func (r *SQLRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	where, args, err := r.where(opts.Filter)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := max(opts.Offset, 0)
	q := r.db.Rebind(fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT ? OFFSET ?", r.table, where, r.orderBy))
	items := []T{}
	if err := r.db.SelectContext(ctx, &items, q, append(args, limit, offset)...); err != nil {
		return nil, r.wrap("list", err)
	}
	return items, nil
}

func (r *SQLRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	var out T
	names := make([]string, len(r.columns))
	for i, c := range r.columns {
		names[i] = ":" + c
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		r.table, strings.Join(r.columns, ", "), strings.Join(names, ", "))
	if err := r.namedGet(ctx, &out, q, entity); err != nil {
		return out, r.wrap("create", err)
	}
	return out, nil
}

func (r *SQLRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	var out T
	sets := make([]string, len(r.columns))
	for i, c := range r.columns {
		sets[i] = c + " = :" + c
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = :%s RETURNING *",
		r.table, strings.Join(sets, ", "), r.idCol, r.idCol)
	if err := r.namedGet(ctx, &out, q, entity); err != nil {
		return out, r.wrap("update", err)
	}
	return out, nil
}

func (r *SQLRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	_, err := r.DeleteWhere(ctx, map[string]any{r.idCol: id})
	return err
}

// DeleteWhere deletes rows matching every filter column and returns how
// many were removed. Zero rows is ErrNotFound.
func (r *SQLRepo[T, ID]) DeleteWhere(ctx context.Context, filter map[string]any) (int64, error) {
	where, args, err := r.where(filter)
	if err != nil {
		return 0, err
	}
	if where == "" {
		return 0, fmt.Errorf("%w: delete without filter", ErrInvalidFilter)
	}
	q := r.db.Rebind(fmt.Sprintf("DELETE FROM %s%s", r.table, where))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, r.wrap("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, r.wrap("delete", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", r.table, ErrNotFound)
	}
	return n, nil
}

func (r *SQLRepo[T, ID]) namedGet(ctx context.Context, dst *T, query string, arg any) error {
	rows, err := r.db.NamedQueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.StructScan(dst)
}

// where builds " WHERE a = ? AND b = ?" with keys in sorted order so the
// generated SQL is stable.
func (r *SQLRepo[T, ID]) where(filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !r.allowed[k] {
			return "", nil, fmt.Errorf("%w: column %q", ErrInvalidFilter, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = filter[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (r *SQLRepo[T, ID]) wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", r.table, ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %s: %w", r.table, pqErr.Constraint, ErrConflict)
	}
	return fmt.Errorf("repo: %s %s: %w", op, r.table, err)
}
