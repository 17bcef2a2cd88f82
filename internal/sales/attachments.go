package sales

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// DefaultMaxUploadBytes bounds a single attachment.
const DefaultMaxUploadBytes = 2 << 20

// allowedAttachmentTypes maps accepted MIME types to the extension stored on disk.
var allowedAttachmentTypes = map[string]string{
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// typeByExtension resolves office formats the host mime tables may lack.
var typeByExtension = func() map[string]string {
	out := map[string]string{".jpeg": "image/jpeg"}
	for ct, ext := range allowedAttachmentTypes {
		out[ext] = ct
	}
	return out
}()

// AttachmentStore persists uploaded files and returns their public path.
type AttachmentStore interface {
	Check(u Upload) error
	Save(ctx context.Context, u Upload) (string, error)
	Remove(ctx context.Context, path string) error
}

// LocalStore writes attachments to a directory served under a URL prefix.
type LocalStore struct {
	dir      string
	prefix   string
	maxBytes int64
}

// NewLocalStore creates the upload directory when missing.
func NewLocalStore(dir, prefix string, maxBytes int64) (*LocalStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sales: create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: "/" + strings.Trim(prefix, "/"), maxBytes: maxBytes}, nil
}

// Check validates size and content type without touching disk.
func (s *LocalStore) Check(u Upload) error {
	size := u.Size
	if size == 0 {
		size = int64(len(u.Data))
	}
	if size == 0 {
		return fmt.Errorf("%w: attachment %q is empty", shared.ErrValidation, u.Filename)
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: attachment %q exceeds %d bytes", shared.ErrValidation, u.Filename, s.maxBytes)
	}
	if _, ok := allowedAttachmentTypes[attachmentType(u)]; !ok {
		return fmt.Errorf("%w: attachment %q has unsupported type", shared.ErrValidation, u.Filename)
	}
	return nil
}

// Save writes u under a random name and returns its public path.
func (s *LocalStore) Save(_ context.Context, u Upload) (string, error) {
	if err := s.Check(u); err != nil {
		return "", err
	}
	name := uuid.NewString() + allowedAttachmentTypes[attachmentType(u)]
	if err := os.WriteFile(filepath.Join(s.dir, name), u.Data, 0o644); err != nil {
		return "", fmt.Errorf("sales: write attachment: %w", err)
	}
	return path.Join(s.prefix, name), nil
}

// Remove deletes a file previously returned by Save. Unknown paths are ignored.
func (s *LocalStore) Remove(_ context.Context, p string) error {
	if !strings.HasPrefix(p, s.prefix+"/") {
		return nil
	}
	name := path.Base(p)
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// attachmentType resolves the MIME type from the declared header, the file
// extension, then the content itself.
func attachmentType(u Upload) string {
	if ct, _, err := mime.ParseMediaType(u.ContentType); err == nil && ct != "application/octet-stream" {
		return ct
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if ct, ok := typeByExtension[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			return parsed
		}
	}
	ct, _, _ := mime.ParseMediaType(http.DetectContentType(u.Data))
	return ct
}
