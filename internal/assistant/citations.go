package assistant

import "regexp"

// citationRE matches inline file-search markers such as 【4:0†handbook.pdf】.
var citationRE = regexp.MustCompile(`【\d+:\d+†[^】]+】`)

// StripCitations removes file-search citation markers from reply text.
func StripCitations(s string) string {
	return citationRE.ReplaceAllString(s, "")
}
