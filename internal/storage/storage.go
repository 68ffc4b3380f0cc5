package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"media-migrator/internal/logging"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the
// storage root.
var ErrInvalidKey = errors.New("invalid storage key")

var log = logging.With("storage")

// Object locates a stored file.
type Object struct {
	// URL is the public address galleries render.
	URL string
	// Path is the backend-relative key.
	Path string
}

// Store receives processed images.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string // "local" or "s3"

	LocalDir  string
	PublicURL string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.PublicURL)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Key returns the canonical object key for a migrated item.
func Key(parentID, itemID string) string {
	return path.Join("units", parentID, itemID+".jpg")
}

// cleanKey validates key and returns it in normalized form.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
