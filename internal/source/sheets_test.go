package source

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"google.golang.org/api/option"
)

const sheetsBase = "https://sheets.test/"

func newTestSheets(t *testing.T) (*Sheets, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	s, err := NewSheets(context.Background(), testConfig(),
		option.WithHTTPClient(&http.Client{Transport: mock}),
		option.WithEndpoint(sheetsBase),
	)
	if err != nil {
		t.Fatalf("NewSheets failed: %v", err)
	}
	return s, mock
}

func TestSheetsReadRows(t *testing.T) {
	s, mock := newTestSheets(t)

	var gotRange string
	mock.RegisterResponder(http.MethodGet, sheetsBase+"v4/spreadsheets/sheet-1", func(req *http.Request) (*http.Response, error) {
		gotRange = req.URL.Query().Get("ranges")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"sheets": []map[string]any{{
				"data": []map[string]any{{
					"startRow": 1,
					"rowData": []map[string]any{
						{"values": []map[string]any{
							{"formattedValue": "APT-1"},
							{"formattedValue": "Photos", "note": "https://drive.google.com/drive/folders/1AbCdEfGhIjKlMnOpQrStUv"},
						}},
						{},
						{"values": []map[string]any{{"formattedValue": "APT-2"}}},
					},
				}},
			}},
		})
	})

	rows, err := s.ReadRows(context.Background(), "sheet-1", "Units!A2:H")
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if gotRange != "Units!A2:H" {
		t.Errorf("ranges param = %q", gotRange)
	}
	if len(rows) != 3 {
		t.Fatalf("ReadRows returned %d rows, want 3", len(rows))
	}
	if rows[0].Number != 2 || rows[2].Number != 4 {
		t.Errorf("row numbers = %d, %d; want 2, 4", rows[0].Number, rows[2].Number)
	}
	if rows[0].Cell(0).Value != "APT-1" || rows[0].Cell(1).Note == "" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if len(rows[1].Cells) != 0 {
		t.Errorf("empty row has %d cells", len(rows[1].Cells))
	}
}

func TestSheetsReadRowsNotFound(t *testing.T) {
	s, mock := newTestSheets(t)
	mock.RegisterResponder(http.MethodGet, sheetsBase+"v4/spreadsheets/nope",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":{"code":404,"message":"Requested entity was not found."}}`))

	if _, err := s.ReadRows(context.Background(), "nope", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadRows error = %v, want ErrNotFound", err)
	}
}
