package tabular

import (
	"errors"
	"fmt"
	"io"

	"github.com/hylla/weldtrack/internal/app"
	"github.com/xuri/excelize/v2"
)

// Workbook sheet names used for report exports.
const (
	ReportSheet  = "Report"
	SummarySheet = "Summary"
)

// NamedTable is one workbook sheet.
type NamedTable struct {
	Name  string
	Table app.Table
}

// ReadXLSX decodes the first sheet of a workbook.
func ReadXLSX(r io.Reader) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return Sheet{}, ErrNoHeader
	}
	rows, err := f.GetRows(names[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("read sheet %q: %w", names[0], err)
	}
	return splitSheet(rows)
}

// WriteReportWorkbook writes the report and summary tables as two sheets.
func WriteReportWorkbook(w io.Writer, report, summary app.Table) error {
	return WriteXLSX(w, NamedTable{Name: ReportSheet, Table: report}, NamedTable{Name: SummarySheet, Table: summary})
}

// WriteXLSX writes each table to its own sheet, in order.
func WriteXLSX(w io.Writer, sheets ...NamedTable) error {
	if len(sheets) == 0 {
		return errors.New("xlsx workbook needs at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return fmt.Errorf("name sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("add sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheetRows(f, sheet); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSheetRows(f *excelize.File, sheet NamedTable) error {
	rows := append([][]string{sheet.Table.Header}, sheet.Table.Rows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet.Name, i+1, err)
		}
	}
	return nil
}
