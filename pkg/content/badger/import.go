package badger

import (
	"context"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/spf13/afero"
)

// ImportTree walks dir on fsys and stores every regular file under
// prefix + "/" + its slash-separated path relative to dir.
//
// With an empty prefix, dir/css/site.css becomes "/css/site.css", which is
// exactly the ContentID a request for "/css/site.css" resolves to when the
// content root is empty.
//
// Returns the number of files imported.
func ImportTree(ctx context.Context, store content.WritableContentStore, fsys afero.Fs, dir, prefix string) (int, error) {
	imported := 0

	err := afero.Walk(fsys, dir, func(path string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		id := content.ContentID(strings.TrimSuffix(prefix, "/") + "/" + filepath.ToSlash(rel))

		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := store.WriteContent(ctx, id, data); err != nil {
			return err
		}

		logger.Debug("Imported %s (%d bytes)", id, len(data))
		imported++
		return nil
	})
	if err != nil {
		return imported, fmt.Errorf("import %s: %w", dir, err)
	}
	return imported, nil
}
