// Package document renders the paginated PDF report.
package document

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"safetyreports/internal/reports"
	"safetyreports/internal/stats"
	"safetyreports/internal/types"
)

const (
	mimeType  = "application/pdf"
	extension = "pdf"

	pageHeight   = 297.0
	pageWidth    = 210.0
	margin       = 15.0
	footerHeight = 15.0
	// contentBottom is the lowest Y any block may reach before a page break.
	contentBottom = pageHeight - margin - footerHeight
	contentWidth  = pageWidth - 2*margin

	rowHeight   = 7.0
	sectionGap  = 6.0
	headingSize = 13.0
	topAssets   = 10
)

// Renderer produces the PDF attachment.
type Renderer struct{}

// New returns a document Renderer.
func New() *Renderer { return &Renderer{} }

// Format implements reports.Renderer.
func (r *Renderer) Format() types.ReportFormat { return types.FormatDocument }

// Render implements reports.Renderer. Output is byte-identical for equal
// input.
func (r *Renderer) Render(in reports.Input) (types.Attachment, error) {
	pdf := build(in)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return types.Attachment{}, types.NewAppError(types.ErrCodeInternalRender, "failed to render PDF report", err)
	}
	return types.Attachment{
		Filename: reports.FileName(in.Range, extension),
		MimeType: mimeType,
		Content:  buf.Bytes(),
	}, nil
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func build(in reports.Input) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(in.GeneratedAt)
	pdf.SetModificationDate(in.GeneratedAt)
	pdf.SetTitle(reports.Title, true)
	pdf.SetCreator("safetyreports", true)

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	footer := p.tr(in.GeneratedAtLabel())
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin - 5)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(contentWidth/2, 5, footer, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidth/2, 5, "Page "+strconv.Itoa(pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	p.header(in)
	p.tiles(in.Summary)
	p.itemBars(in.Summary)
	p.locations(in.Summary)
	p.assets(in.Summary)
	return pdf
}

// ensure starts a new page when a block of height h would cross
// contentBottom.
func (p *page) ensure(h float64) {
	if p.pdf.GetY()+h > contentBottom {
		p.pdf.AddPage()
	}
}

func (p *page) text(w, h float64, s, align string) {
	p.pdf.CellFormat(w, h, p.tr(s), "", 0, align, false, 0, "")
}

func (p *page) header(in reports.Input) {
	pdf := p.pdf
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(20, 40, 80)
	p.text(contentWidth, 10, reports.Title, "L")
	pdf.Ln(11)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(60, 60, 60)
	p.text(contentWidth, 6, "Period: "+in.Range.String(), "L")
	pdf.Ln(6)
	p.text(contentWidth, 6, "Location: "+in.LocationLabel(), "L")
	pdf.Ln(6 + sectionGap)
}

func (p *page) heading(title string, firstRow float64) {
	p.ensure(8 + firstRow)
	p.pdf.SetFont("Helvetica", "B", headingSize)
	p.pdf.SetTextColor(20, 40, 80)
	p.text(contentWidth, 8, title, "L")
	p.pdf.Ln(9)
}

func (p *page) tiles(s stats.Summary) {
	const (
		tileGap    = 4.0
		tileHeight = 24.0
	)
	p.ensure(tileHeight + sectionGap)

	values := []struct{ label, value string }{
		{"Total Inspections", strconv.Itoa(s.TotalInspections)},
		{"With Failures", strconv.Itoa(s.InspectionsWithFailures)},
		{"Failed Items", strconv.Itoa(s.TotalFailures)},
		{"Pass Rate", fmt.Sprintf("%d%%", stats.PassRate(s))},
	}
	tileWidth := (contentWidth - tileGap*float64(len(values)-1)) / float64(len(values))
	y := p.pdf.GetY()
	for i, v := range values {
		x := margin + float64(i)*(tileWidth+tileGap)
		p.pdf.SetFillColor(236, 241, 248)
		p.pdf.Rect(x, y, tileWidth, tileHeight, "F")

		p.pdf.SetXY(x, y+3)
		p.pdf.SetFont("Helvetica", "B", 18)
		p.pdf.SetTextColor(20, 40, 80)
		p.text(tileWidth, 10, v.value, "C")

		p.pdf.SetXY(x, y+14)
		p.pdf.SetFont("Helvetica", "", 9)
		p.pdf.SetTextColor(90, 90, 90)
		p.text(tileWidth, 6, v.label, "C")
	}
	p.pdf.SetXY(margin, y+tileHeight+3)

	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.SetTextColor(60, 60, 60)
	p.text(contentWidth, 6, fmt.Sprintf("Safe to operate: %d yes, %d no", s.SafeToOperate.Yes, s.SafeToOperate.No), "L")
	p.pdf.Ln(6 + sectionGap)
}

func (p *page) empty(msg string) {
	p.ensure(rowHeight)
	p.pdf.SetFont("Helvetica", "I", 10)
	p.pdf.SetTextColor(110, 110, 110)
	p.text(contentWidth, rowHeight, msg, "L")
	p.pdf.Ln(rowHeight)
}

func (p *page) itemBars(s stats.Summary) {
	const (
		labelWidth = 45.0
		countWidth = 15.0
		barHeight  = 5.0
	)
	p.heading("Failures by Item", rowHeight)

	var ranked []stats.KeyCount
	for _, kc := range s.RankedItems() {
		if kc.Count > 0 {
			ranked = append(ranked, kc)
		}
	}
	if len(ranked) == 0 {
		p.empty("No failed items in this period.")
		p.pdf.Ln(sectionGap)
		return
	}

	maxCount := ranked[0].Count
	barSpace := contentWidth - labelWidth - countWidth
	for _, kc := range ranked {
		p.ensure(rowHeight)
		y := p.pdf.GetY()

		p.pdf.SetFont("Helvetica", "", 10)
		p.pdf.SetTextColor(40, 40, 40)
		p.text(labelWidth, rowHeight, kc.Label, "L")

		w := barSpace * float64(kc.Count) / float64(maxCount)
		p.pdf.SetFillColor(200, 60, 50)
		p.pdf.Rect(margin+labelWidth, y+(rowHeight-barHeight)/2, w, barHeight, "F")

		p.pdf.SetXY(margin+labelWidth+barSpace, y)
		p.text(countWidth, rowHeight, strconv.Itoa(kc.Count), "R")
		p.pdf.SetXY(margin, y+rowHeight)
	}
	p.pdf.Ln(sectionGap)
}

func (p *page) table(title, keyHeader string, rows []stats.KeyCount, emptyMsg string) {
	const countWidth = 30.0
	p.heading(title, 2*rowHeight)
	if len(rows) == 0 {
		p.empty(emptyMsg)
		p.pdf.Ln(sectionGap)
		return
	}

	head := func() {
		p.pdf.SetFont("Helvetica", "B", 10)
		p.pdf.SetTextColor(255, 255, 255)
		p.pdf.SetFillColor(20, 40, 80)
		p.pdf.CellFormat(contentWidth-countWidth, rowHeight, p.tr(keyHeader), "", 0, "L", true, 0, "")
		p.pdf.CellFormat(countWidth, rowHeight, "Failures", "", 1, "R", true, 0, "")
	}
	head()

	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.SetTextColor(40, 40, 40)
	for i, kc := range rows {
		if p.pdf.GetY()+rowHeight > contentBottom {
			p.pdf.AddPage()
			head()
			p.pdf.SetFont("Helvetica", "", 10)
			p.pdf.SetTextColor(40, 40, 40)
		}
		fill := i%2 == 1
		p.pdf.SetFillColor(245, 245, 245)
		p.pdf.CellFormat(contentWidth-countWidth, rowHeight, p.tr(kc.Key), "", 0, "L", fill, 0, "")
		p.pdf.CellFormat(countWidth, rowHeight, strconv.Itoa(kc.Count), "", 1, "R", fill, 0, "")
	}
	p.pdf.Ln(sectionGap)
}

func (p *page) locations(s stats.Summary) {
	p.table("Failures by Location", "Location", s.FailuresByLocation, "No location recorded a failure.")
}

func (p *page) assets(s stats.Summary) {
	p.table(fmt.Sprintf("Top %d Equipment by Failures", topAssets), "Equipment ID", s.TopAssets(topAssets), "No equipment recorded a failure.")
}
