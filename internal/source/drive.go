package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"media-migrator/internal/mediatypes"
)

const drivePageSize = 100

// Drive reads image files from Google Drive folders.
type Drive struct {
	svc      *drive.Service
	call     *caller
	maxBytes int64
}

// NewDrive creates a Drive client. opts are appended after the options
// derived from cfg.
func NewDrive(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Drive, error) {
	cfg = cfg.normalized()
	svc, err := drive.NewService(ctx, cfg.clientOptions(drive.DriveReadonlyScope, opts)...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &Drive{svc: svc, call: newCaller(cfg), maxBytes: cfg.MaxDownloadBytes}, nil
}

// Download returns the content of fileID.
func (d *Drive) Download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := d.call.do(ctx, "download", func() error {
		resp, err := d.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return mapNotFound(err, fileID)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
		if err != nil {
			return fmt.Errorf("read %s: %w", fileID, err)
		}
		if int64(len(body)) > d.maxBytes {
			return fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, fileID, d.maxBytes)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ListFolder returns up to limit image files directly inside folderID,
// ordered by name. Trashed files and non-image files are skipped.
func (d *Drive) ListFolder(ctx context.Context, folderID string, limit int) ([]FileEntry, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false and mimeType contains 'image/'", escapeQuery(folderID))

	var files []FileEntry
	pageToken := ""
	for {
		var page *drive.FileList
		err := d.call.do(ctx, "list", func() error {
			call := d.svc.Files.List().
				Q(q).
				Fields("nextPageToken, files(id, name, mimeType, size)").
				OrderBy("name").
				PageSize(drivePageSize).
				SupportsAllDrives(true).
				IncludeItemsFromAllDrives(true).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			page, err = call.Do()
			return mapNotFound(err, folderID)
		})
		if err != nil {
			return nil, err
		}

		for _, f := range page.Files {
			if !mediatypes.Detect(f.MimeType, f.Name).Supported() {
				log.Debug("Skipping %s (%s): not a decodable image", f.Name, f.MimeType)
				continue
			}
			files = append(files, FileEntry{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size})
			if limit > 0 && len(files) >= limit {
				return files, nil
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	log.Debug("Folder %s: %d image files", folderID, len(files))
	return files, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
