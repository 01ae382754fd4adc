package enrichment

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"DocketWatch/internal/domain"
)

var (
	placeholderExpr = regexp.MustCompile(`(?i)<!--\s*(image|page break)\s*-->|\[image\]`)
	spaceRunExpr    = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesExpr  = regexp.MustCompile(`[ \t]*\n[ \t]*(\n[ \t]*)+`)
)

var processableTypes = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
	"txt":  true,
	"rtf":  true,
	"html": true,
	"htm":  true,
}

// Sanitize strips extraction-provider placeholder artifacts and collapses whitespace.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = placeholderExpr.ReplaceAllString(text, " ")
	text = spaceRunExpr.ReplaceAllString(text, " ")
	text = blankLinesExpr.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// InferFileType returns the declared type, or the extension of the filename or URL path.
func InferFileType(att domain.Attachment) string {
	if t := normalizeType(att.FileType); t != "" {
		return t
	}
	if t := normalizeType(path.Ext(att.Filename)); t != "" {
		return t
	}
	if u, err := url.Parse(att.URL); err == nil {
		return normalizeType(path.Ext(u.Path))
	}
	return ""
}

// Processable reports whether the attachment can be sent to the extraction provider.
func Processable(att domain.Attachment) bool {
	if att.Confidential {
		return false
	}
	u, err := url.Parse(att.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	return processableTypes[InferFileType(att)]
}

func normalizeType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, ".")
	if i := strings.LastIndex(value, "/"); i >= 0 {
		// MIME types such as application/pdf
		value = value[i+1:]
	}
	switch value {
	case "msword":
		return "doc"
	case "vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "plain":
		return "txt"
	}
	return value
}
