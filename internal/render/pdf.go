package render

import (
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultExportSubtitle is printed under the export title.
const DefaultExportSubtitle = "Emerald High School Counselor Assistant"

// Turn is one exported conversation entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExportOptions controls the export header.
type ExportOptions struct {
	Username    string
	Subtitle    string
	GeneratedAt time.Time
}

// ExportFileName is the attachment name for an export made at t.
func ExportFileName(t time.Time) string {
	return "chat_export_" + t.Format("20060102") + ".pdf"
}

const (
	margin = 72.0
	indent = 20.0
)

var (
	strict  = bluemonday.StrictPolicy()
	breakRE = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</li>|</h[1-6]>|</tr>`)
	blankRE = regexp.MustCompile(`\n{3,}`)
)

// PlainText strips markup from a rendered turn and decodes entities. Block
// ends and <br> become newlines.
func PlainText(s string) string {
	s = breakRE.ReplaceAllString(s, "$0\n")
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.TrimSpace(blankRE.ReplaceAllString(s, "\n\n"))
}

// WritePDF renders turns as a Letter-size PDF to w. User turns are labelled
// "You:" in blue, everything else "AI Counselor:" in green.
func WritePDF(w io.Writer, turns []Turn, opt ExportOptions) error {
	if opt.Subtitle == "" {
		opt.Subtitle = DefaultExportSubtitle
	}
	if opt.GeneratedAt.IsZero() {
		opt.GeneratedAt = time.Now()
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle("Chat Export - "+opt.Username, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	bodyW := pageW - 2*margin

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0x1a, 0x23, 0x7e)
	pdf.MultiCell(bodyW, 20, tr("Chat Export - "+opt.Username), "", "C", false)
	pdf.MultiCell(bodyW, 20, tr(opt.Subtitle), "", "C", false)
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(bodyW, 14, tr("Generated: "+opt.GeneratedAt.Format("January 02, 2006 at 03:04 PM")), "", "L", false)
	pdf.Ln(20)

	for _, t := range turns {
		label := "AI Counselor:"
		r, g, b := 0x1b, 0x5e, 0x20
		if t.Role == "user" {
			label = "You:"
			r, g, b = 0x19, 0x76, 0xd2
		}
		pdf.SetTextColor(r, g, b)
		pdf.SetX(margin + indent)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(bodyW-2*indent, 14, tr(label), "", "L", false)
		pdf.SetX(margin + indent)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(bodyW-2*indent, 14, tr(PlainText(t.Content)), "", "L", false)
		pdf.Ln(14)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}
