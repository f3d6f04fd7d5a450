package digest

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"

	"pennywize/src/pkg/util"
)

// Layout constants, all in points on a Letter page.
const (
	pdfPageMargin    = 48
	pdfFooterReserve = 60 // body never enters this strip; footer draws inside it

	pdfTitleFontSize   = 20
	pdfHeadingFontSize = 13
	pdfBodyFontSize    = 11
	pdfFooterFontSize  = 9

	pdfHeadingLineHeight = 17
	pdfBodyLineHeight    = 14

	pdfSectionGap = 10
	pdfChartMaxH  = 320
	pdfBoxPadding = 10
	pdfBoxCornerR = 6
)

/*
PDFParams carries everything the report renderer needs. ChartPNG may be
nil (chart fetch failed or was skipped); the Chart section is then
omitted. EntryDates must already be oldest-first.
*/
type PDFParams struct {
	Title       string
	DisplayName string
	PeriodLabel string
	Metrics     Metrics
	ChartPNG    []byte
	AIText      string
	EntryDates  []string
}

/*
BuildDigestPDF lays out the paginated digest report and returns the
complete document bytes. The buffer is only returned once generation
finished; there are no partial reads.

Single-column vertical flow: each fixed-height element (chart image,
entries list, suggestion box) is preceded by a remaining-room check
that starts a new page instead of splitting the element. Only plain
paragraph text paginates naturally.
*/
func BuildDigestPDF(params PDFParams) (pdfBytes []byte, e *xerr.Error) {
	// A renderer bug must degrade to "no PDF attachment", never abort
	// the batch.
	defer func() {
		if r := recover(); r != nil {
			pdfBytes = nil
			e = xerr.NewError(fmt.Errorf("%v", r), "Panic during digest PDF render", params.Title)
		}
	}()

	doc := buildDigestDocument(params)

	var buffer bytes.Buffer
	outputErr := doc.Output(&buffer)
	if outputErr != nil {
		return nil, xerr.NewError(outputErr, "Failed to render digest PDF", params.Title)
	}

	tl.Log(tl.Detailed, palette.CyanDim, "Rendered digest PDF: '%d' bytes, '%d' pages", buffer.Len(), doc.PageCount())
	return buffer.Bytes(), nil
}

/*
buildDigestDocument assembles the fpdf document. Split from
BuildDigestPDF so tests can inspect page counts before serialization.
*/
func buildDigestDocument(params PDFParams) *fpdf.Fpdf {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(pdfPageMargin, pdfPageMargin, pdfPageMargin)
	doc.SetAutoPageBreak(true, pdfFooterReserve)
	doc.AliasNbPages("")

	// Core fonts are cp1252; every drawn string must pass through the
	// translator or bullets and dashes come out as mojibake (and
	// SplitText panics on runes past 0xFF).
	translate := doc.UnicodeTranslatorFromDescriptor("")

	// Footer is drawn on every page; the auto-page-break margin above
	// reserves its strip so flowing text cannot collide with it.
	doc.SetFooterFunc(func() {
		doc.SetY(-40)
		doc.SetFont("Helvetica", "", pdfFooterFontSize)
		doc.SetTextColor(0x9C, 0xA3, 0xAF)
		footerText := fmt.Sprintf("Generated by PennyWize — page %d of {nb}", doc.PageNo())
		doc.CellFormat(0, pdfBodyLineHeight, translate(footerText), "", 0, "C", false, 0, "")
	})

	doc.AddPage()

	writeReportHeader(doc, translate, params)
	writeSummarySection(doc, translate, params.Metrics)
	writeChartSection(doc, translate, params.ChartPNG)
	writeEntriesSection(doc, translate, params.EntryDates)
	writeSuggestionBox(doc, translate, params.AIText)

	return doc
}

func writeReportHeader(doc *fpdf.Fpdf, translate func(string) string, params PDFParams) {
	doc.SetFont("Helvetica", "B", pdfTitleFontSize)
	doc.SetTextColor(0x11, 0x11, 0x11)
	doc.CellFormat(0, pdfTitleFontSize+4, translate(params.Title), "", 1, "L", false, 0, "")

	doc.SetFont("Helvetica", "", pdfBodyFontSize)
	doc.SetTextColor(0x66, 0x66, 0x66)
	doc.CellFormat(0, pdfBodyLineHeight, translate("Recipient: "+params.DisplayName), "", 1, "L", false, 0, "")
	if params.PeriodLabel != "" {
		doc.CellFormat(0, pdfBodyLineHeight, translate("Period: "+params.PeriodLabel), "", 1, "L", false, 0, "")
	}

	doc.SetTextColor(0, 0, 0)
	doc.Ln(pdfSectionGap)
}

func writeSummarySection(doc *fpdf.Fpdf, translate func(string) string, metrics Metrics) {
	writeSectionHeading(doc, "Summary")

	doc.SetFont("Helvetica", "", pdfBodyFontSize)
	doc.CellFormat(0, pdfBodyLineHeight, translate("• Total Income: "+FormatUSD(metrics.TotalIncome)), "", 1, "L", false, 0, "")
	doc.CellFormat(0, pdfBodyLineHeight, translate("• Total Expenses: "+FormatUSD(metrics.TotalExpenses)), "", 1, "L", false, 0, "")
	doc.CellFormat(0, pdfBodyLineHeight, translate("• Estimated Savings: "+FormatUSD(metrics.Savings)), "", 1, "L", false, 0, "")
	doc.Ln(pdfSectionGap)
}

/*
writeChartSection scales the PNG to the content width, caps the height
at pdfChartMaxH preserving aspect ratio, and page-breaks first if the
image would not fit. Undecodable image bytes skip the section the same
way a failed fetch does.
*/
func writeChartSection(doc *fpdf.Fpdf, translate func(string) string, chartPNG []byte) {
	if len(chartPNG) == 0 {
		return
	}

	decoded, decodeErr := imaging.Decode(bytes.NewReader(chartPNG))
	if decodeErr != nil {
		tl.Log(tl.Warning, palette.PurpleBright, "Skipping chart section, undecodable PNG: %s", decodeErr)
		return
	}

	bounds := decoded.Bounds()
	aspect := float64(bounds.Dy()) / float64(bounds.Dx())

	drawWidth := contentWidth(doc)
	drawHeight := util.Clamp(drawWidth*aspect, 1, pdfChartMaxH)
	drawWidth = drawHeight / aspect

	ensureRoom(doc, pdfHeadingLineHeight+drawHeight+pdfSectionGap)

	writeSectionHeading(doc, "Chart")

	leftMargin, _, _, _ := doc.GetMargins()
	imageX := leftMargin + (contentWidth(doc)-drawWidth)/2
	imageY := doc.GetY()

	options := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader("digest-chart", options, bytes.NewReader(chartPNG))
	doc.ImageOptions("digest-chart", imageX, imageY, drawWidth, drawHeight, false, options, 0, "")

	doc.SetY(imageY + drawHeight)
	doc.Ln(pdfSectionGap)
}

func writeEntriesSection(doc *fpdf.Fpdf, translate func(string) string, entryDates []string) {
	if len(entryDates) == 0 {
		return
	}

	listHeight := pdfHeadingLineHeight + float64(len(entryDates))*pdfBodyLineHeight
	ensureRoom(doc, listHeight+pdfSectionGap)

	writeSectionHeading(doc, "Recent Entries")

	doc.SetFont("Helvetica", "", pdfBodyFontSize)
	for _, date := range entryDates {
		doc.CellFormat(0, pdfBodyLineHeight, translate("• "+date), "", 1, "L", false, 0, "")
	}
	doc.Ln(pdfSectionGap)
}

/*
writeSuggestionBox renders the AI text inside a rounded, filled box.
The whole box (heading + text + padding) is measured up front and never
split across a page boundary.
*/
func writeSuggestionBox(doc *fpdf.Fpdf, translate func(string) string, aiText string) {
	boxWidth := contentWidth(doc)
	textWidth := boxWidth - 2*pdfBoxPadding

	doc.SetFont("Helvetica", "", pdfBodyFontSize)
	// Translate before measuring: SplitText widths come from the core
	// font's 256-entry table.
	lines := doc.SplitText(translate(aiText), textWidth)

	boxHeight := 2*pdfBoxPadding + pdfHeadingLineHeight + float64(len(lines))*pdfBodyLineHeight
	ensureRoom(doc, boxHeight+pdfSectionGap)

	leftMargin, _, _, _ := doc.GetMargins()
	boxX := leftMargin
	boxY := doc.GetY()

	doc.SetFillColor(0xFF, 0xF8, 0xE1)
	doc.SetDrawColor(0xE5, 0xE7, 0xEB)
	doc.RoundedRect(boxX, boxY, boxWidth, boxHeight, pdfBoxCornerR, "1234", "FD")

	doc.SetXY(boxX+pdfBoxPadding, boxY+pdfBoxPadding)
	doc.SetFont("Helvetica", "B", pdfHeadingFontSize)
	doc.SetTextColor(0x11, 0x11, 0x11)
	doc.CellFormat(textWidth, pdfHeadingLineHeight, "AI Suggestions", "", 1, "L", false, 0, "")

	doc.SetFont("Helvetica", "", pdfBodyFontSize)
	for _, line := range lines {
		doc.SetX(boxX + pdfBoxPadding)
		doc.CellFormat(textWidth, pdfBodyLineHeight, line, "", 1, "L", false, 0, "")
	}

	doc.SetY(boxY + boxHeight)
	doc.Ln(pdfSectionGap)
}

func writeSectionHeading(doc *fpdf.Fpdf, heading string) {
	doc.SetFont("Helvetica", "B", pdfHeadingFontSize)
	doc.SetTextColor(0x11, 0x11, 0x11)
	doc.CellFormat(0, pdfHeadingLineHeight, heading, "", 1, "L", false, 0, "")
	doc.SetTextColor(0, 0, 0)
}

/*
ensureRoom starts a new page when the current one has less than needed
points of body space left. The bottom limit already excludes the footer
strip because SetAutoPageBreak reserved it.
*/
func ensureRoom(doc *fpdf.Fpdf, needed float64) {
	_, pageHeight := doc.GetPageSize()
	bodyBottom := pageHeight - pdfFooterReserve

	if doc.GetY()+needed > bodyBottom {
		doc.AddPage()
	}
}

func contentWidth(doc *fpdf.Fpdf) float64 {
	pageWidth, _ := doc.GetPageSize()
	leftMargin, _, rightMargin, _ := doc.GetMargins()
	return pageWidth - leftMargin - rightMargin
}
