package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout   = 1 * time.Second
	queryTimeout  = 3 * time.Second
	schemaTimeout = 10 * time.Second
	pgUniqueCode  = "23505"
)

// Schema creates the products table. It is idempotent.
//
//go:embed schema.sql
var Schema string

const productColumns = `id, external_id, sku, name, brand, model, category, color,
	price, currency, stock, created_at, updated_at, deleted_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, schemaTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, Schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Product, int, error) {
	var w where
	w.raw("deleted_at IS NULL")
	if q.Filter.Name != "" {
		w.add(`name ILIKE $%d ESCAPE '\'`, "%"+escapeLike(q.Filter.Name)+"%")
	}
	if q.Filter.Category != "" {
		w.add("category = $%d", q.Filter.Category)
	}
	if q.Filter.MinPrice != nil {
		w.add("price >= $%d", q.Filter.MinPrice.String())
	}
	if q.Filter.MaxPrice != nil {
		w.add("price <= $%d", q.Filter.MaxPrice.String())
	}

	var (
		out   []Product
		total int
	)
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		if err := s.db.QueryRowContext(ctx,
			"SELECT count(*) FROM products"+w.String(), w.args...,
		).Scan(&total); err != nil {
			return err
		}
		if total == 0 {
			return nil
		}

		args := append(w.args, q.Limit, q.Offset())
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s
			FROM products%s
			ORDER BY created_at ASC, id ASC
			LIMIT $%d OFFSET $%d
		`, productColumns, w.String(), len(args)-1, len(args)), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, q.Limit)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []Product{}
	}
	return out, total, nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (Product, bool, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE external_id = $1
		`, externalID)

		var err error
		p, err = scanProduct(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, p Product) (Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.DeletedAt = nil

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO products (id, external_id, sku, name, brand, model, category, color, price, currency, stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`, p.ID, p.ExternalID, p.SKU, p.Name, p.Brand, p.Model, p.Category, p.Color,
			p.Price, p.Currency, p.Stock,
		).Scan(&p.CreatedAt, &p.UpdatedAt)

		if isUniqueViolation(err) {
			return ErrDuplicateExternalID
		}
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, a Attributes) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE products
			SET sku = $2, name = $3, brand = $4, model = $5, category = $6, color = $7,
			    price = $8, currency = $9, stock = $10, updated_at = now()
			WHERE id = $1
		`, id, a.SKU, a.Name, a.Brand, a.Model, a.Category, a.Color, a.Price, a.Currency, a.Stock)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrProductNotFound
		}
		return nil
	})
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE products
			SET deleted_at = now()
			WHERE id = $1 AND deleted_at IS NULL
		`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) Count(ctx context.Context, f CountFilter) (int, error) {
	var w where
	switch f.Scope {
	case ScopeActive:
		w.raw("deleted_at IS NULL")
	case ScopeDeleted:
		w.raw("deleted_at IS NOT NULL")
	}
	if f.WithPrice != nil {
		if *f.WithPrice {
			w.raw("price IS NOT NULL")
		} else {
			w.raw("price IS NULL")
		}
	}
	if f.CreatedFrom != nil {
		w.add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		w.add("created_at <= $%d", *f.CreatedTo)
	}

	var n int
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, "SELECT count(*) FROM products"+w.String(), w.args...).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) CountByCategory(ctx context.Context) ([]CategoryCount, error) {
	var out []CategoryCount
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT category, count(*)
			FROM products
			WHERE deleted_at IS NULL
			GROUP BY category
			ORDER BY count(*) DESC, category ASC NULLS LAST
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]CategoryCount, 0, 8)
		for rows.Next() {
			var c CategoryCount
			if err := rows.Scan(&c.Category, &c.Count); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (Product, error) {
	var p Product
	err := r.Scan(
		&p.ID, &p.ExternalID, &p.SKU, &p.Name, &p.Brand, &p.Model, &p.Category, &p.Color,
		&p.Price, &p.Currency, &p.Stock, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	return p, err
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

// add appends cond, whose %d verb receives the placeholder index of arg.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
