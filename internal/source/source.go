package source

import (
	"context"
	"errors"
	"strings"

	"media-migrator/internal/logging"
)

var (
	// ErrNotFound is returned when a file or folder does not exist or is not
	// visible to the configured credentials.
	ErrNotFound = errors.New("source object not found")

	// ErrTooLarge is returned when a download exceeds the configured limit.
	ErrTooLarge = errors.New("source file exceeds download limit")
)

var log = logging.With("source")

// FileEntry is one image file inside a source folder.
type FileEntry struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// Files is the external file service photos are migrated from.
type Files interface {
	// Download returns the full content of a file.
	Download(ctx context.Context, fileID string) ([]byte, error)
	// ListFolder returns up to limit image files in a folder, in name order.
	// A limit of zero or less returns every file.
	ListFolder(ctx context.Context, folderID string, limit int) ([]FileEntry, error)
}

// Cell is one spreadsheet cell: its displayed value and any attached note.
type Cell struct {
	Value string
	Note  string
}

// Row is one spreadsheet row. Number is the 1-based sheet row number.
type Row struct {
	Number int
	Cells  []Cell
}

// Cell returns the cell at a 0-based column index, or an empty cell.
func (r Row) Cell(col int) Cell {
	if col < 0 || col >= len(r.Cells) {
		return Cell{}
	}
	return r.Cells[col]
}

// Notes returns every non-empty note on the row, left to right.
func (r Row) Notes() []string {
	var notes []string
	for _, c := range r.Cells {
		if n := strings.TrimSpace(c.Note); n != "" {
			notes = append(notes, n)
		}
	}
	return notes
}

// Sheet reads rows from an external tabular source.
type Sheet interface {
	ReadRows(ctx context.Context, spreadsheetID, rng string) ([]Row, error)
}

// ColumnIndex converts a column letter ("A", "AB") to a 0-based index.
// It returns -1 for anything that is not a column letter.
func ColumnIndex(letters string) int {
	letters = strings.ToUpper(strings.TrimSpace(letters))
	if letters == "" {
		return -1
	}
	idx := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return -1
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx - 1
}
