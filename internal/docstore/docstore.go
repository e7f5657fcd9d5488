// Package docstore resolves document references to raw bytes. Deal rooms
// arrive either as directories on local disk or as FTP drops from brokers.
package docstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/model"
)

// ErrNotFound is returned when a document reference cannot be located.
var ErrNotFound = eris.New("docstore: document not found")

// Store fetches document contents by reference.
type Store interface {
	GetDocument(ctx context.Context, ref model.DocumentRef) ([]byte, error)
}

// LocalStore reads documents from a directory on disk. References resolve
// relative to the root; absolute URIs and path escapes are rejected.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) GetDocument(_ context.Context, ref model.DocumentRef) ([]byte, error) {
	rel := ref.URI
	if rel == "" {
		rel = ref.Filename
	}
	if rel == "" {
		return nil, eris.Wrapf(ErrNotFound, "document %s has no uri or filename", ref.ID)
	}

	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, eris.Errorf("docstore: path %q escapes document root", rel)
	}

	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		if eris.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "document %s (%s)", ref.ID, rel)
		}
		return nil, eris.Wrapf(err, "docstore: read %s", rel)
	}
	return data, nil
}
