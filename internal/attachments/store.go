package attachments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	contextutils "issuetracker/internal/utils"
)

const maxNameLen = 100

var uniqueSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SanitizeFilename slugs the base name, caps it at 100 characters and adds
// an 8 character random suffix before the original extension.
func SanitizeFilename(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := filepath.Ext(base)
	name := slug.Make(strings.TrimSuffix(base, ext))
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return fmt.Sprintf("%s_%s%s", name, uniqueSuffix(), ext)
}

// StoragePath is the store key for a new upload on an issue
func StoragePath(issueID int64, fileName string) string {
	return fmt.Sprintf("attachments/issues/%d/%s", issueID, SanitizeFilename(fileName))
}

// Store saves and serves attachment content by storage path
type Store interface {
	Save(ctx context.Context, path string, r io.Reader) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// DiskStore keeps attachments under a root directory
type DiskStore struct {
	root string
}

// NewDiskStore creates the root directory if needed
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to create attachment directory %s", root)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) resolve(path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contextutils.Validationf("file", "Invalid storage path.")
	}
	return full, nil
}

// Save writes r to path and returns the byte count
func (s *DiskStore) Save(ctx context.Context, path string, r io.Reader) (int64, error) {
	full, err := s.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, contextutils.WrapError(err, "failed to create attachment directory")
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to create attachment file")
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return 0, contextutils.WrapError(err, "failed to write attachment")
	}
	return n, nil
}

// Open returns the content at path or a RECORD_NOT_FOUND error
func (s *DiskStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, contextutils.NotFoundf("File not found.")
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open attachment")
	}
	return f, nil
}

// Delete removes path. A missing file is not an error.
func (s *DiskStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return contextutils.WrapError(err, "failed to delete attachment")
	}
	return nil
}
