// Package archive retains raw downloaded payloads outside the working
// directory so later runs can restore them instead of downloading again.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Store keeps raw payloads keyed by product and file name.
type Store interface {
	// Save copies the file at path into the store.
	Save(ctx context.Context, product, path string) error
	// Restore copies a stored file to dst. ok is false when the store has no
	// copy.
	Restore(ctx context.Context, product, name, dst string) (ok bool, err error)
}

// Local stores payloads under <Dir>/<product>/<name>.
type Local struct {
	Dir string
}

// NewLocal returns a Local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

func (l *Local) path(product, name string) string {
	return filepath.Join(l.Dir, product, name)
}

// Save implements Store.
func (l *Local) Save(_ context.Context, product, path string) error {
	dst := l.path(product, filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	return copyFile(path, dst)
}

// Restore implements Store.
func (l *Local) Restore(_ context.Context, product, name, dst string) (bool, error) {
	src := l.path(product, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	if err := copyFile(src, dst); err != nil {
		return false, err
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Multi saves to every store and restores from the first that has a copy.
type Multi struct {
	stores []Store
	logger *slog.Logger
}

// NewMulti combines stores; nil entries are ignored.
func NewMulti(stores ...Store) *Multi {
	m := &Multi{logger: slog.Default()}
	for _, s := range stores {
		if s != nil {
			m.stores = append(m.stores, s)
		}
	}
	return m
}

// WithLogger sets a custom logger.
func (m *Multi) WithLogger(logger *slog.Logger) *Multi {
	m.logger = logger
	return m
}

// Len returns the number of stores.
func (m *Multi) Len() int {
	return len(m.stores)
}

// Save implements Store. Every store is attempted; failures are joined.
func (m *Multi) Save(ctx context.Context, product, path string) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Save(ctx, product, path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("archive %s: %w", filepath.Base(path), err)
	}
	m.logger.DebugContext(ctx, "archived payload",
		slog.String("product", product),
		slog.String("file", filepath.Base(path)),
	)
	return nil
}

// Restore implements Store.
func (m *Multi) Restore(ctx context.Context, product, name, dst string) (bool, error) {
	var errs []error
	for _, s := range m.stores {
		ok, err := s.Restore(ctx, product, name, dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			m.logger.InfoContext(ctx, "restored payload from archive",
				slog.String("product", product),
				slog.String("file", name),
			)
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}
