// Package export writes stored scan results to spreadsheet files.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/phonescan/internal/results"
)

// SheetName is the worksheet results are written to.
const SheetName = "Results"

// Headers are the column titles of the results sheet, in order.
var Headers = []string{
	"Found At (UTC)",
	"Number",
	"National",
	"E.164",
	"Valid",
	"Frame",
	"Sightings",
	"Source",
	"Session",
	"Result ID",
}

// Exporter reads results from a store and renders them as XLSX.
type Exporter struct {
	store  results.Store
	logger *slog.Logger
}

// New creates an Exporter. A nil logger uses slog.Default().
func New(store results.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, logger: logger}
}

// WriteXLSX lists results matching opts and writes them as a workbook to w.
// It returns the number of data rows written.
func (e *Exporter) WriteXLSX(ctx context.Context, w io.Writer, opts results.ListOptions) (int, error) {
	start := time.Now()

	recs, err := e.store.List(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("export: list results: %w", err)
	}

	f, err := Workbook(recs)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("export: xlsx write: %w", err)
	}

	e.logger.Info("export xlsx ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return len(recs), nil
}

// Workbook builds a workbook with one header row and one row per record.
// The caller closes the returned file.
func Workbook(recs []results.Record) (*excelize.File, error) {
	f := excelize.NewFile()

	// Rename the default sheet rather than leaving an empty "Sheet1".
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("export: header %s: %w", cell, err)
		}
	}

	for i, r := range recs {
		row := i + 2
		values := []any{
			r.CreatedAt.UTC().Format(time.DateTime),
			r.Number,
			r.National,
			r.E164,
			r.Valid,
			r.Frame,
			r.Sightings,
			r.Source,
			r.SessionID,
			r.ID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("export: row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20) // timestamp
	_ = f.SetColWidth(SheetName, "B", "D", 16) // number forms
	_ = f.SetColWidth(SheetName, "I", "J", 38) // uuids
	_ = f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return f, nil
}
