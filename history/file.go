package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/amp-labs/restyle/generation"
	"github.com/amp-labs/restyle/logger"
	"github.com/amp-labs/restyle/should"
)

// FileStore keeps the history as a JSON array in a single file. Every
// change rewrites the file through a temporary file and a rename, so a
// crash never leaves it half written.
type FileStore struct {
	path  string
	limit int

	mut sync.Mutex
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on the first write.
func NewFileStore(path string, limit int) *FileStore {
	if limit <= 0 {
		limit = generation.HistoryLimit
	}

	return &FileStore{path: path, limit: limit}
}

func (f *FileStore) List(ctx context.Context) ([]generation.Response, error) {
	f.mut.Lock()
	defer f.mut.Unlock()

	return f.load(ctx)
}

func (f *FileStore) Get(ctx context.Context, id string) (*generation.Response, error) {
	items, err := f.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.ID == id {
			return &item, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (f *FileStore) Append(ctx context.Context, item generation.Response) error {
	return f.update(ctx, func(items []generation.Response) []generation.Response {
		return prepend(items, item, f.limit)
	})
}

func (f *FileStore) Remove(ctx context.Context, id string) error {
	return f.update(ctx, func(items []generation.Response) []generation.Response {
		return without(items, id)
	})
}

func (f *FileStore) Reset(context.Context) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) update(ctx context.Context, change func([]generation.Response) []generation.Response) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	items, err := f.load(ctx)
	if err != nil {
		return err
	}

	return f.save(ctx, change(items))
}

// load reads the file. A missing file is an empty history; so is one that
// does not parse, which is logged and overwritten on the next change.
func (f *FileStore) load(ctx context.Context) ([]generation.Response, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var items []generation.Response
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Get(ctx).Error("Failed to parse history file, starting empty",
			"path", f.path, "error", err)

		return nil, nil
	}

	return items, nil
}

func (f *FileStore) save(ctx context.Context, items []generation.Response) error {
	if items == nil {
		items = []generation.Response{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec,mnd
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return err
	}

	defer should.Remove(ctx, tmp.Name(), "error removing temporary history file")

	if _, err := tmp.Write(data); err != nil {
		should.Close(ctx, tmp, "error closing temporary history file")

		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}
