package source

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheets reads cell values and notes from Google Sheets.
type Sheets struct {
	svc  *sheets.Service
	call *caller
}

// NewSheets creates a Sheets client. opts are appended after the options
// derived from cfg.
func NewSheets(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Sheets, error) {
	cfg = cfg.normalized()
	svc, err := sheets.NewService(ctx, cfg.clientOptions(sheets.SpreadsheetsReadonlyScope, opts)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &Sheets{svc: svc, call: newCaller(cfg)}, nil
}

// ReadRows returns the rows of rng (A1 notation, for example "Units!A2:H").
// An empty range reads every sheet. Values are the formatted display values.
func (s *Sheets) ReadRows(ctx context.Context, spreadsheetID, rng string) ([]Row, error) {
	var doc *sheets.Spreadsheet
	err := s.call.do(ctx, "read_rows", func() error {
		call := s.svc.Spreadsheets.Get(spreadsheetID).
			IncludeGridData(true).
			Fields("sheets(data(startRow,rowData(values(formattedValue,note))))").
			Context(ctx)
		if rng != "" {
			call = call.Ranges(rng)
		}
		var err error
		doc, err = call.Do()
		return mapNotFound(err, spreadsheetID)
	})
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, sh := range doc.Sheets {
		for _, grid := range sh.Data {
			for i, rd := range grid.RowData {
				row := Row{Number: int(grid.StartRow) + i + 1}
				for _, v := range rd.Values {
					if v == nil {
						row.Cells = append(row.Cells, Cell{})
						continue
					}
					row.Cells = append(row.Cells, Cell{Value: v.FormattedValue, Note: v.Note})
				}
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}
