// Package file implements blob.Store on the local filesystem.
//
// Keys are slash-separated filesystem paths (absolute or relative to the
// working directory). Writes go to a temporary file in the target directory
// and are renamed into place, so readers never observe a partial object.
package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/blob"
)

func init() {
	blob.Register("file", func(_ context.Context, _ string, _ blob.Credentials) (blob.Store, error) {
		return NewLocal(), nil
	})
}

// Local is a filesystem-backed blob.Store. It is safe for concurrent use.
type Local struct{}

// NewLocal returns a Local store.
func NewLocal() *Local { return &Local{} }

// List walks the directory part of prefix and returns matching file keys.
// A missing directory yields no keys and no error.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := prefix
	if !strings.HasSuffix(prefix, "/") {
		root = path.Dir(prefix)
	}
	if root == "" {
		root = "."
	}

	var keys []string
	err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		key := filepath.ToSlash(p)
		if strings.HasPrefix(key, prefix) && !isTemp(key) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// Open opens key for reading. A canceled context short-circuits before the
// filesystem is touched.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(blob.ErrNotExist, "open %s", key)
		}
		return nil, errors.Wrapf(err, "open %s", key)
	}
	return f, nil
}

// Put writes r to key, creating parent directories as needed.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.FromSlash(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*"+tempSuffix)
	if err != nil {
		return errors.Wrapf(err, "create temp for %s", key)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", key)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", key)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrapf(err, "rename into %s", key)
	}
	return nil
}

// DeletePrefix removes every file under prefix. Directories left empty by
// the removal are pruned when prefix names a directory (ends with '/').
func (l *Local) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if err := os.Remove(filepath.FromSlash(k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, errors.Wrapf(err, "delete %s", k)
		}
		n++
	}
	if strings.HasSuffix(prefix, "/") && prefix != "/" {
		pruneEmptyDirs(filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	}
	return n, nil
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

const tempSuffix = ".tmp"

func isTemp(key string) bool {
	base := path.Base(key)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, tempSuffix)
}

// pruneEmptyDirs removes empty directories below and including root,
// deepest first. Errors are ignored: a non-empty directory simply stays.
func pruneEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}
