package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local is a Store over the local filesystem.
type Local struct{}

func localPath(uri string) string {
	return filepath.Clean(strings.TrimPrefix(uri, "file://"))
}

// List returns every regular file under uri. A directory is walked
// recursively; anything else is treated as a path prefix within its parent
// directory, the way S3 prefixes behave.
func (Local) List(ctx context.Context, uri string) ([]string, error) {
	p := localPath(uri)

	root, prefix := p, ""
	if st, err := os.Stat(p); err != nil || !st.IsDir() {
		root, prefix = filepath.Dir(p), p
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list %s: %w", uri, err)
	}
	sort.Strings(out)
	return out, nil
}

func (Local) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	f, err := os.Open(localPath(uri))
	if err != nil {
		return nil, err
	}
	return f, nil
}

var _ Store = Local{}
