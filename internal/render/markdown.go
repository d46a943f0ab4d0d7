// Package render turns assistant replies and stored turns into display
// markup, and conversations into PDF exports.
package render

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	ugc = bluemonday.UGCPolicy()
)

// Markdown renders a markdown reply as sanitized HTML. Fenced code, tables,
// lists and hard line breaks are supported. Raw HTML in the input is dropped.
func Markdown(src string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return strings.TrimSpace(string(ugc.SanitizeBytes(buf.Bytes())))
}

// Markers of the profile preamble prepended to stored questions.
const (
	contextMarker  = "[User Context:"
	questionMarker = "Student Question: "
)

// StripContext returns the bare question of a stored user turn. Turns without
// the profile preamble are returned unchanged.
func StripContext(content string) string {
	if !strings.Contains(content, contextMarker) {
		return content
	}
	if _, q, ok := strings.Cut(content, questionMarker); ok {
		return q
	}
	return content
}

// UserTurn renders a stored user turn for display: preamble removed, text
// escaped, newlines as <br>.
func UserTurn(content string) string {
	return strings.ReplaceAll(html.EscapeString(StripContext(content)), "\n", "<br>")
}

// SourcesBlock renders download links for the cited documents. basePath is
// the route prefix the documents are served under. No names, no block.
func SourcesBlock(basePath string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	prefix := strings.TrimRight(basePath, "/")
	var b strings.Builder
	b.WriteString(`<div class="source-documents"><strong>📄 Source Documents:</strong><ul>`)
	for _, n := range names {
		esc := html.EscapeString(n)
		fmt.Fprintf(&b, `<li><a href="%s/%s" class="pdf-download-link" data-filename="%s">📥 %s</a></li>`,
			prefix, url.PathEscape(n), esc, esc)
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

// QuotaNotice is appended to replies when few messages are left.
func QuotaNotice(remaining int) string {
	return fmt.Sprintf(`<p class="quota-notice"><em>💬 %d messages remaining today</em></p>`, remaining)
}

// LimitReached is the fixed reply once the daily quota is used up.
func LimitReached(limit int) string {
	return fmt.Sprintf(`<p><strong>Daily message limit reached!</strong></p>`+
		`<p>You've used all %d messages for today. Your limit will reset tomorrow.</p>`+
		`<p>If you need more assistance, please contact your school counselor directly.</p>`, limit)
}

// ErrorReply is shown when the assistant could not answer.
const ErrorReply = "Sorry, I encountered an error. Please try again."
