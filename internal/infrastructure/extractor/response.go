package extractor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Variant is the shape of a provider response body.
type Variant int

const (
	VariantPlain Variant = iota
	VariantJSON
	VariantEventStream
	VariantNDJSON
	VariantHTML
)

func (v Variant) String() string {
	switch v {
	case VariantJSON:
		return "json"
	case VariantEventStream:
		return "event-stream"
	case VariantNDJSON:
		return "ndjson"
	case VariantHTML:
		return "html"
	default:
		return "plain"
	}
}

// ErrEmptyResponse is returned when a response decodes to no text at all.
var ErrEmptyResponse = errors.New("extraction response carried no text")

// ClassifyResponse picks the variant from the declared content type, sniffing
// the body when the header is missing or generic.
func ClassifyResponse(contentType string, body []byte) Variant {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/event-stream":
		return VariantEventStream
	case "application/x-ndjson", "application/jsonl", "application/ndjson":
		return VariantNDJSON
	case "text/html", "application/xhtml+xml":
		return VariantHTML
	case "application/json":
		if looksLikeNDJSON(body) {
			return VariantNDJSON
		}
		return VariantJSON
	case "text/plain":
		return VariantPlain
	}
	return sniff(body)
}

func sniff(body []byte) Variant {
	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(trimmed, []byte("data:")) || bytes.HasPrefix(trimmed, []byte("event:")):
		return VariantEventStream
	case bytes.HasPrefix(trimmed, []byte("{")):
		if looksLikeNDJSON(trimmed) {
			return VariantNDJSON
		}
		return VariantJSON
	case bytes.HasPrefix(trimmed, []byte("<")):
		lower := bytes.ToLower(trimmed[:min(len(trimmed), 512)])
		if bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<body")) {
			return VariantHTML
		}
	}
	return VariantPlain
}

func looksLikeNDJSON(body []byte) bool {
	lines := 0
	for _, line := range bytes.Split(bytes.TrimSpace(body), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return false
		}
		lines++
	}
	return lines > 1
}

// DecodeText extracts the document text carried by a response of variant v.
func DecodeText(v Variant, body []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch v {
	case VariantJSON:
		text, err = decodeJSON(body)
	case VariantEventStream:
		text, err = decodeEventStream(body)
	case VariantNDJSON:
		text, err = decodeNDJSON(body)
	case VariantHTML:
		text, err = decodeHTML(body)
	default:
		text = string(body)
	}
	if err != nil {
		return "", fmt.Errorf("decode %s response: %w", v, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// chunk covers the fields providers use for whole documents and stream events.
type chunk struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
	Delta    string `json:"delta"`
	Message  string `json:"message"`
	Error    any    `json:"error"`
	Document *struct {
		Text      string `json:"text"`
		MDContent string `json:"md_content"`
	} `json:"document"`
	Pages []struct {
		Text string `json:"text"`
	} `json:"pages"`
}

func (c chunk) text() string {
	for _, s := range []string{c.Text, c.Content, c.Markdown, c.Delta} {
		if s != "" {
			return s
		}
	}
	if c.Document != nil {
		if c.Document.MDContent != "" {
			return c.Document.MDContent
		}
		return c.Document.Text
	}
	if len(c.Pages) > 0 {
		parts := make([]string, 0, len(c.Pages))
		for _, p := range c.Pages {
			parts = append(parts, p.Text)
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

func (c chunk) failure() error {
	if c.Type == "error" {
		msg := c.Message
		if msg == "" {
			msg = fmt.Sprint(c.Error)
		}
		return fmt.Errorf("provider reported error: %s", msg)
	}
	switch e := c.Error.(type) {
	case string:
		if e != "" {
			return fmt.Errorf("provider reported error: %s", e)
		}
	case map[string]any:
		return fmt.Errorf("provider reported error: %v", e["message"])
	}
	return nil
}

func decodeJSON(body []byte) (string, error) {
	var c chunk
	if err := json.Unmarshal(body, &c); err != nil {
		return "", err
	}
	text := c.text()
	if text == "" {
		if err := c.failure(); err != nil {
			return "", err
		}
	}
	return text, nil
}

func decodeEventStream(body []byte) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}
		if err := appendChunk(&sb, payload); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func decodeNDJSON(body []byte) (string, error) {
	var sb strings.Builder
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := appendChunk(&sb, line); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func appendChunk(sb *strings.Builder, payload string) error {
	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		sb.WriteString(payload)
		return nil
	}
	if err := c.failure(); err != nil {
		return err
	}
	sb.WriteString(c.text())
	return nil
}

func decodeHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, p, li, pre, td").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.Join(strings.Fields(sel.Text()), " "); t != "" {
			blocks = append(blocks, t)
		}
	})
	if len(blocks) == 0 {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}
