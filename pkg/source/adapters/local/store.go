// Package local provides a filesystem-backed object store. Objects live at
// <root>/<workspace>/<object>/<version>.<ext>, or <root>/<object>/<version>.<ext>
// for two-part references, where ext is json, yaml or yml.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/kbase/kbsolrutil/pkg/source"
)

var _ source.ObjectStore = (*Store)(nil)

var extensions = []string{".json", ".yaml", ".yml"}

// Store reads objects from a directory tree.
type Store struct {
	fs     afero.Fs
	root   string
	logger hclog.Logger
}

// NewStore creates a store rooted at root on the OS filesystem.
func NewStore(root string, logger hclog.Logger) (*Store, error) {
	return NewStoreWithFs(afero.NewOsFs(), root, logger)
}

// NewStoreWithFs creates a store on an arbitrary afero filesystem.
func NewStoreWithFs(fs afero.Fs, root string, logger hclog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("error accessing root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	return &Store{
		fs:     fs,
		root:   root,
		logger: logger.Named("local-store"),
	}, nil
}

func (s *Store) Name() string { return "local" }

// Fetch reads and decodes the object file for ref.
func (s *Store) Fetch(ctx context.Context, ref source.Reference) (*source.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := s.basePath(ref)
	for _, ext := range extensions {
		p := base + ext
		body, err := afero.ReadFile(s.fs, p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", p, err)
		}

		s.logger.Trace("read object", "ref", ref.Raw, "path", p)
		return source.DecodeObject(ref, body, source.FormatFromKey(p))
	}

	return nil, fmt.Errorf("%w: %s", source.ErrNotFound, ref.Raw)
}

func (s *Store) basePath(ref source.Reference) string {
	if ref.Workspace == "" {
		return filepath.Join(s.root, ref.Object, ref.Version)
	}
	return filepath.Join(s.root, ref.Workspace, ref.Object, ref.Version)
}
