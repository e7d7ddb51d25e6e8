// Package history keeps the most recent generation results, newest first.
// Results live in a JSON file by default, or in Postgres when a database
// URL is configured.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/restyle/dataurl"
	"github.com/amp-labs/restyle/generation"
	"github.com/zeebo/xxh3"
)

var ErrNotFound = errors.New("history item not found")

// Store persists generation results. Implementations are safe for
// concurrent use.
type Store interface {
	// List returns every item, newest first.
	List(ctx context.Context) ([]generation.Response, error)
	Get(ctx context.Context, id string) (*generation.Response, error)
	// Append puts item first. An older item with the same image, prompt
	// and style is replaced, and the oldest items beyond the limit are
	// dropped.
	Append(ctx context.Context, item generation.Response) error
	// Remove deletes one item. Removing a missing id is not an error.
	Remove(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	// Path of the JSON file used when DatabaseURL is empty.
	Path        string
	DatabaseURL string
	// Limit is the number of items kept. Non-positive means
	// generation.HistoryLimit.
	Limit int
}

func (c Config) limit() int {
	if c.Limit <= 0 {
		return generation.HistoryLimit
	}

	return c.Limit
}

// Open returns a PostgresStore when cfg.DatabaseURL is set and a FileStore
// otherwise.
func Open(ctx context.Context, cfg Config) (Store, error) { //nolint:ireturn
	if cfg.DatabaseURL != "" {
		return OpenPostgres(ctx, cfg.DatabaseURL, cfg.limit())
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: neither a file path nor a database URL is configured", errNoBackend)
	}

	return NewFileStore(cfg.Path, cfg.limit()), nil
}

var errNoBackend = errors.New("no history backend")

// ContentKey identifies an item by what it shows rather than by id, so
// regenerating the same image, prompt and style does not fill the history
// with duplicates.
func ContentKey(item generation.Response) uint64 {
	h := xxh3.New()

	_, _ = h.WriteString(item.DataURL)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strings.TrimSpace(item.Prompt))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(string(item.Style))

	return h.Sum64()
}

// prepend applies Append to an in-memory list.
func prepend(items []generation.Response, item generation.Response, limit int) []generation.Response {
	key := ContentKey(item)

	out := make([]generation.Response, 0, min(len(items)+1, limit))
	out = append(out, item)

	for _, existing := range items {
		if len(out) >= limit {
			break
		}

		if existing.ID == item.ID || ContentKey(existing) == key {
			continue
		}

		out = append(out, existing)
	}

	return out
}

func without(items []generation.Response, id string) []generation.Response {
	out := make([]generation.Response, 0, len(items))

	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}

	return out
}

// Selection is what a client shows for a picked history item.
type Selection struct {
	generation.Response

	dataurl.Details
}

// Details inspects the image of item.
func Details(item generation.Response) (*Selection, error) {
	details, err := dataurl.Inspect(item.DataURL)
	if err != nil {
		return nil, fmt.Errorf("history item %s: %w", item.ID, err)
	}

	return &Selection{Response: item, Details: *details}, nil
}
