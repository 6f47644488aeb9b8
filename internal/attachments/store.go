// Package attachments stores files submitted alongside step input.
package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/flexinfer/agentmarket/internal/metrics"
	"github.com/flexinfer/agentmarket/pkg/types"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// DefaultMaxSize caps a single upload.
const DefaultMaxSize = 10 << 20

// Store persists attachment bytes.
type Store interface {
	// Put stores data under key and returns a reference to it
	Put(ctx context.Context, key string, data io.Reader, contentType string) (*types.ArtifactRef, error)

	// Get opens the stored data for a reference
	Get(ctx context.Context, ref *types.ArtifactRef) (io.ReadCloser, error)

	// Delete removes a single attachment
	Delete(ctx context.Context, ref *types.ArtifactRef) error

	// DeletePrefix removes every attachment under prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// Config holds attachment store configuration.
type Config struct {
	// Type: "memory" or "s3"
	Type string

	// MaxSize is the per-file size limit in bytes
	MaxSize int64

	S3 S3Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:    "memory",
		MaxSize: DefaultMaxSize,
		S3:      S3Config{PathPrefix: "attachments"},
	}
}

// New creates the configured store.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "s3", "minio":
		s, err := NewS3Store(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown attachment store type: %s", cfg.Type)
	}
}

// SessionPrefix is the key prefix for every attachment of a session.
func SessionPrefix(sessionID string) string {
	return fmt.Sprintf("sessions/%s/", sessionID)
}

// Key builds the storage key for a file submitted at a step.
func Key(sessionID string, index int, name string) string {
	return fmt.Sprintf("sessions/%s/%d/%s", sessionID, index, sanitizeName(name))
}

// sanitizeName keeps only the base name so uploads cannot escape their prefix.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "file"
	}
	return base
}

// File is an upload waiting to be stored.
type File struct {
	Name        string
	ContentType string
	Data        io.Reader
}

// SaveAll stores files for a step and returns their references in order.
// On failure, files already written are removed.
func SaveAll(ctx context.Context, s Store, sessionID string, index int, files []File) ([]*types.ArtifactRef, error) {
	refs := make([]*types.ArtifactRef, 0, len(files))
	for _, f := range files {
		ref, err := s.Put(ctx, Key(sessionID, index, f.Name), f.Data, f.ContentType)
		if err != nil {
			for _, r := range refs {
				_ = s.Delete(ctx, r)
			}
			return nil, fmt.Errorf("store %s: %w", f.Name, err)
		}
		ref.Name = sanitizeName(f.Name)
		metrics.AttachmentBytes.Add(float64(ref.Size))
		refs = append(refs, ref)
	}
	return refs, nil
}

func checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func defaultContentType(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
