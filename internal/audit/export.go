// Package audit exports appointment history to Excel workbooks for the
// salon's bookkeeping.
package audit

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"velora/internal/model"
)

// Source lists the appointments to export.
type Source interface {
	ListByRange(ctx context.Context, from, to string) ([]model.Appointment, error)
}

var monthNames = map[time.Month]string{
	time.January:   "Enero",
	time.February:  "Febrero",
	time.March:     "Marzo",
	time.April:     "Abril",
	time.May:       "Mayo",
	time.June:      "Junio",
	time.July:      "Julio",
	time.August:    "Agosto",
	time.September: "Septiembre",
	time.October:   "Octubre",
	time.November:  "Noviembre",
	time.December:  "Diciembre",
}

// Filename builds a workbook name like "Enero_2026.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("%s_%d.xlsx", monthNames[t.Month()], t.Year())
}

var exportColumns = []string{
	"Fecha", "Hora", "Duración (min)", "Cliente", "Servicios", "Estado", "Notas",
}

// Exporter renders appointments into a workbook, one sheet per month.
type Exporter struct {
	source Source
}

// NewExporter builds an Exporter over a store.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Export writes every appointment between from and to (inclusive calendar
// dates) as xlsx to w. Months without appointments get no sheet; an empty
// range still yields a valid workbook with a single empty sheet.
func (e *Exporter) Export(ctx context.Context, w io.Writer, from, to string) error {
	appts, err := e.source.ListByRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	currentSheet := ""
	row := 0
	for i := range appts {
		a := &appts[i]
		sheet := sheetNameFor(a.Date)
		if sheet != currentSheet {
			if currentSheet == "" {
				f.SetSheetName("Sheet1", sheet)
			} else if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet, err)
			}
			currentSheet = sheet
			row = 1
			if err := writeRow(f, sheet, row, headerCells()); err != nil {
				return err
			}
			styleHeader(f, sheet, len(exportColumns))
		}
		row++
		if err := writeRow(f, sheet, row, appointmentCells(a)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetNameFor maps "2026-01-15" to "Enero 2026". Dates that fail to parse
// land on a literal sheet so the export never drops rows.
func sheetNameFor(date string) string {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s %d", monthNames[t.Month()], t.Year())
}

func headerCells() []any {
	cells := make([]any, len(exportColumns))
	for i, c := range exportColumns {
		cells[i] = c
	}
	return cells
}

func appointmentCells(a *model.Appointment) []any {
	return []any{
		a.Date,
		a.Time,
		a.Duration,
		a.UserName,
		strings.Join(a.ServiceNames(), ", "),
		string(a.Status),
		a.Notes,
	}
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	for i, val := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, ncols int) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(ncols, 1)
	_ = f.SetCellStyle(sheet, start, end, style)
}
