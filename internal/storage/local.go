package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"media-migrator/internal/filesystem"
	"media-migrator/internal/metrics"
)

// Local stores objects on disk and serves them from a public base URL.
type Local struct {
	root      string
	publicURL string
	retry     filesystem.RetryConfig
}

// NewLocal creates the root directory if needed.
func NewLocal(root, publicURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage directory is required")
	}
	if publicURL == "" {
		return nil, errors.New("local storage public URL is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	log.Info("Local storage at %s, served from %s", root, publicURL)
	return &Local{root: root, publicURL: publicURL, retry: filesystem.DefaultRetryConfig()}, nil
}

// Put writes data under key. An existing object is replaced.
func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (*Object, error) {
	obj, err := l.put(ctx, key, data)
	metrics.StorageUploadsTotal.WithLabelValues("local", metrics.StatusLabel(err)).Inc()
	return obj, err
}

func (l *Local) put(ctx context.Context, key string, data []byte) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if err := filesystem.WriteFileAtomic(dst, data, 0o644, l.retry); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	return &Object{URL: joinURL(l.publicURL, key), Path: key}, nil
}
