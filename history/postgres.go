package history

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore keeps the history in the history_items table. Order is
// insertion order, so the newest append is listed first regardless of
// the items' own timestamps.
type PostgresStore struct {
	pool  *pgxpool.Pool
	limit int
}

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string, limit int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to history database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()

		return nil, err
	}

	if limit <= 0 {
		limit = generation.HistoryLimit
	}

	return &PostgresStore{pool: pool, limit: limit}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool), fsys,
		goose.WithLogger(&gooseLogger{log: logger.Get(ctx).With("component", "migrations")}))
	if err != nil {
		return fmt.Errorf("error preparing history migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("error migrating history database: %w", err)
	}

	for _, result := range results {
		logger.Get(ctx).Info("Applied history migration", "migration", result.String())
	}

	return nil
}

// gooseLogger routes goose output to slog.
type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error level. It does not exit: goose reports the failure
// through its return values as well.
func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

const selectItems = `SELECT id, data_url, prompt, style, created_at FROM history_items`

func (p *PostgresStore) List(ctx context.Context) ([]generation.Response, error) {
	rows, err := p.pool.Query(ctx, selectItems+` ORDER BY position DESC`)
	if err != nil {
		return nil, err
	}

	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*generation.Response, error) {
	rows, err := p.pool.Query(ctx, selectItems+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return nil, err
	}

	return &item, nil
}

func scanItem(row pgx.CollectableRow) (generation.Response, error) {
	var (
		item  generation.Response
		style string
	)

	err := row.Scan(&item.ID, &item.DataURL, &item.Prompt, &style, &item.CreatedAt)
	item.Style = generation.Style(style)
	item.CreatedAt = item.CreatedAt.UTC()

	return item, err
}

func (p *PostgresStore) Append(ctx context.Context, item generation.Response) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		key := int64(ContentKey(item)) //nolint:gosec

		if _, err := tx.Exec(ctx,
			`DELETE FROM history_items WHERE id = $1 OR content_key = $2`, item.ID, key); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO history_items (id, content_key, data_url, prompt, style, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, key, item.DataURL, item.Prompt, string(item.Style), item.CreatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`DELETE FROM history_items WHERE position NOT IN (
			     SELECT position FROM history_items ORDER BY position DESC LIMIT $1)`, p.limit)

		return err
	})
}

func (p *PostgresStore) Remove(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM history_items WHERE id = $1`, id)

	return err
}

func (p *PostgresStore) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM history_items`)

	return err
}

func (p *PostgresStore) Close() error {
	p.pool.Close()

	return nil
}
