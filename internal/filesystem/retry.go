package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avast/retry-go"

	"media-migrator/internal/logging"
	"media-migrator/internal/metrics"
)

var log = logging.With("filesystem")

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// Retry runs fn, retrying with exponential backoff only while it fails with
// a stale NFS file handle. Any other error is returned immediately.
func Retry(operation string, config RetryConfig, fn func() error) error {
	attempts := config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(fn,
		retry.Attempts(uint(attempts)),
		retry.Delay(config.InitialBackoff),
		retry.MaxDelay(config.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isNFSStaleError),
		retry.OnRetry(func(n uint, err error) {
			metrics.FilesystemRetryAttempts.WithLabelValues(operation).Inc()
			log.Debug("NFS %s stale file handle, retrying (attempt %d/%d): %v", operation, n+1, attempts, err)
		}),
	)
	if isNFSStaleError(err) {
		metrics.FilesystemRetryFailures.WithLabelValues(operation).Inc()
		log.Warn("NFS %s failed after %d attempts: %v", operation, attempts, err)
	}
	return err
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := Retry("stat", config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial file. Parent
// directories are created as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, config RetryConfig) error {
	dir := filepath.Dir(path)
	return Retry("write", config, func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}

		tmp, err := os.CreateTemp(dir, ".upload-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		tmpName := tmp.Name()
		cleanup := func() { _ = os.Remove(tmpName) }

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			cleanup()
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			cleanup()
			return fmt.Errorf("sync temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			cleanup()
			return fmt.Errorf("close temp file: %w", err)
		}
		if err := os.Chmod(tmpName, perm); err != nil {
			cleanup()
			return fmt.Errorf("chmod temp file: %w", err)
		}
		if err := os.Rename(tmpName, path); err != nil {
			cleanup()
			return fmt.Errorf("rename into place: %w", err)
		}
		return nil
	})
}
