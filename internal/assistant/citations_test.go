package assistant

import "testing"

func TestStripCitations(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Meet your counselor【4:0†handbook.pdf】 on Monday.", "Meet your counselor on Monday."},
		{"A【1:2†a.pdf】B【10:11†course guide.pdf】C", "ABC"},
		{"no markers here", "no markers here"},
		{"【x:0†bad】 stays", "【x:0†bad】 stays"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripCitations(tc.in); got != tc.want {
			t.Errorf("StripCitations(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
