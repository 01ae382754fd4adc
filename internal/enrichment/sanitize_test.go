package enrichment

import (
	"testing"

	"DocketWatch/internal/domain"
)

func TestSanitizeStripsPlaceholders(t *testing.T) {
	t.Parallel()

	in := "Intro  text <!-- image -->\r\n\r\n\r\n[image] body\t\tpart <!-- PAGE BREAK --> end  "
	got := Sanitize(in)
	want := "Intro text\n\nbody part end"
	if got != want {
		t.Fatalf("unexpected sanitize output: %q", got)
	}
}

func TestProcessable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		att  domain.Attachment
		want bool
	}{
		{"pdf by type", domain.Attachment{URL: "https://docs.example.org/a", FileType: "PDF"}, true},
		{"docx by filename", domain.Attachment{URL: "https://docs.example.org/a", Filename: "comments.docx"}, true},
		{"html by url path", domain.Attachment{URL: "https://docs.example.org/view.htm"}, true},
		{"mime type", domain.Attachment{URL: "http://docs.example.org/x", FileType: "application/pdf"}, true},
		{"spreadsheet", domain.Attachment{URL: "https://docs.example.org/a.xlsx"}, false},
		{"confidential", domain.Attachment{URL: "https://docs.example.org/a.pdf", Confidential: true}, false},
		{"ftp source", domain.Attachment{URL: "ftp://docs.example.org/a.pdf"}, false},
		{"no url", domain.Attachment{Filename: "a.pdf"}, false},
	}
	for _, tc := range cases {
		if got := Processable(tc.att); got != tc.want {
			t.Fatalf("%s: Processable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
