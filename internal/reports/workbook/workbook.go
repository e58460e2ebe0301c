// Package workbook renders the multi-sheet XLSX report.
package workbook

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"safetyreports/internal/reports"
	"safetyreports/internal/stats"
	"safetyreports/internal/types"
)

const (
	mimeType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	extension = "xlsx"
)

// Sheet names.
const (
	SheetSummary     = "Summary"
	SheetItems       = "Failures by Item"
	SheetSubmissions = "All Submissions"
)

var submissionHeaders = []any{
	"Submitted At", "Location", "Submitted By", "Equipment ID", "Safe to Operate",
	"Failed Items", "Passed Items", "N/A Items",
}

// Renderer produces the XLSX attachment.
type Renderer struct{}

// New returns a workbook Renderer.
func New() *Renderer { return &Renderer{} }

// Format implements reports.Renderer.
func (r *Renderer) Format() types.ReportFormat { return types.FormatWorkbook }

// Render implements reports.Renderer.
func (r *Renderer) Render(in reports.Input) (types.Attachment, error) {
	f, err := build(in)
	if err != nil {
		return types.Attachment{}, types.NewAppError(types.ErrCodeInternalRender, "failed to render workbook report", err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return types.Attachment{}, types.NewAppError(types.ErrCodeInternalRender, "failed to encode workbook report", err)
	}
	return types.Attachment{
		Filename: reports.FileName(in.Range, extension),
		MimeType: mimeType,
		Content:  buf.Bytes(),
	}, nil
}

func build(in reports.Input) (*excelize.File, error) {
	f := excelize.NewFile()

	stamp := in.GeneratedAt.UTC().Format(time.RFC3339)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:    reports.Title,
		Creator:  "safetyreports",
		Created:  stamp,
		Modified: stamp,
	}); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	steps := []func(*excelize.File, reports.Input, int) error{
		writeSummary,
		writeItems,
		writeSubmissions,
	}
	for _, step := range steps {
		if err := step(f, in, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeRows(f *excelize.File, sheet string, startRow int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, startRow+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, startRow+i, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, in reports.Input, bold int) error {
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	s := in.Summary
	rows := [][]any{
		{reports.Title},
		{"Period", in.Range.String()},
		{"Location", in.LocationLabel()},
		{},
		{"Total Inspections", s.TotalInspections},
		{"Inspections With Failures", s.InspectionsWithFailures},
		{"Total Failed Items", s.TotalFailures},
		{"Pass Rate", fmt.Sprintf("%d%%", stats.PassRate(s))},
		{"Safe to Operate: Yes", s.SafeToOperate.Yes},
		{"Safe to Operate: No", s.SafeToOperate.No},
		{},
		{"Generated At", in.GeneratedAt.In(in.Zone()).Format("2006-01-02 15:04 MST")},
	}
	if err := writeRows(f, SheetSummary, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "A12", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 28); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "B", "B", 26)
}

func writeItems(f *excelize.File, in reports.Input, bold int) error {
	if _, err := f.NewSheet(SheetItems); err != nil {
		return err
	}
	s := in.Summary
	rows := [][]any{{"Item", "Failures", "% of Failures"}}
	for _, kc := range s.RankedItems() {
		rows = append(rows, []any{kc.Label, kc.Count, fmt.Sprintf("%d%%", stats.Percent(kc.Count, s.TotalFailures))})
	}
	if err := writeRows(f, SheetItems, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetItems, "A1", "C1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetItems, "A", "A", 24); err != nil {
		return err
	}
	return f.SetColWidth(SheetItems, "B", "C", 14)
}

func writeSubmissions(f *excelize.File, in reports.Input, bold int) error {
	if _, err := f.NewSheet(SheetSubmissions); err != nil {
		return err
	}
	zone := in.Zone()
	rows := [][]any{submissionHeaders}
	for _, sub := range in.SortedSubmissions() {
		view := sub.Inspection()
		passed, failed, na := reports.ChecklistGroups(view.Checklist)
		rows = append(rows, []any{
			sub.SubmittedAt.In(zone).Format("2006-01-02 15:04"),
			sub.Location,
			sub.SubmittedBy,
			view.AssetID,
			view.SafeToOperate,
			failed,
			passed,
			na,
		})
	}
	if err := writeRows(f, SheetSubmissions, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSubmissions, "A1", "H1", bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSubmissions, "A", "E", 18); err != nil {
		return err
	}
	return f.SetColWidth(SheetSubmissions, "F", "H", 40)
}
