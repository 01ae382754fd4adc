package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"DocketWatch/internal/domain"
)

const digestTemplate = `<html><body>
<h1>{{.Heading}}</h1>
<p>Hello {{.Name}},</p>
{{range .Sections}}<h2>Docket {{.Docket}}</h2>
{{range .Filings}}<h3>{{.Title}}</h3>
<p>Filed by {{.Author}}{{if .FilingType}} ({{.FilingType}}){{end}}{{if .Received}} on {{.Received}}{{end}}</p>
{{if .Summary}}<p>{{.Summary}}</p>{{else}}<p>Analysis pending.</p>{{end}}
{{if .KeyPoints}}<p>Key points:</p><ul>{{range .KeyPoints}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Stakeholders}}<p>Stakeholders:</p><ul>{{range .Stakeholders}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Impact}}<p>Regulatory impact: {{.Impact}}</p>{{end}}
{{if .URL}}<p>View filing: <a href="{{.URL}}">{{.URL}}</a></p>{{end}}
{{end}}{{end}}{{if .Upgrade}}<p>Upgrade to Pro for full AI analysis: <a href="{{.UpgradeURL}}">{{.UpgradeURL}}</a></p>
{{end}}</body></html>`

const noticeTemplate = `<html><body>
<h1>High activity on docket {{.Docket}}</h1>
<p>Hello {{.Name}},</p>
<p>Docket {{.Docket}} received an unusually large number of filings at once. Monitoring is paused for the rest of the day and resumes automatically after the daily reset.</p>
<p>Nothing is wrong with your subscription. You can review the filings directly on the source site in the meantime.</p>
</body></html>`

// Section is one docket's filings inside a digest.
type Section struct {
	Docket  string
	Filings []domain.Filing
}

type filingView struct {
	Title        string
	Author       string
	FilingType   string
	Received     string
	URL          string
	Summary      string
	KeyPoints    []string
	Stakeholders []string
	Impact       string
}

type sectionView struct {
	Docket  string
	Filings []filingView
}

// Renderer produces tier-gated digest emails.
type Renderer struct {
	upgradeURL string
	freeChars  int
	digest     *template.Template
	notice     *template.Template
}

// NewRenderer parses the templates; freeChars bounds the free-tier summary.
func NewRenderer(upgradeURL string, freeChars int) *Renderer {
	if freeChars <= 0 {
		freeChars = 160
	}
	return &Renderer{
		upgradeURL: upgradeURL,
		freeChars:  freeChars,
		digest:     template.Must(template.New("digest").Parse(digestTemplate)),
		notice:     template.Must(template.New("notice").Parse(noticeTemplate)),
	}
}

// Render builds the email for one recipient and digest type.
func (r *Renderer) Render(recipient domain.Recipient, digest domain.DigestType, sections []Section) (domain.Email, error) {
	if recipient.Email == "" {
		return domain.Email{}, fmt.Errorf("recipient %s has no email address", recipient.ID)
	}

	gated := false
	views := make([]sectionView, 0, len(sections))
	total := 0
	for _, sec := range sections {
		sv := sectionView{Docket: sec.Docket}
		for _, f := range sec.Filings {
			fv, g := r.view(recipient, f)
			gated = gated || g
			sv.Filings = append(sv.Filings, fv)
		}
		total += len(sv.Filings)
		views = append(views, sv)
	}
	if total == 0 {
		return domain.Email{}, fmt.Errorf("digest for %s has no filings", recipient.ID)
	}

	data := map[string]any{
		"Heading":    heading(digest, views, total),
		"Name":       displayName(recipient),
		"Sections":   views,
		"Upgrade":    gated,
		"UpgradeURL": r.upgradeURL,
	}

	var buf bytes.Buffer
	if err := r.digest.Execute(&buf, data); err != nil {
		return domain.Email{}, fmt.Errorf("render digest: %w", err)
	}
	text, err := PlainText(buf.String())
	if err != nil {
		return domain.Email{}, err
	}

	return domain.Email{
		To:       recipient.Email,
		ToName:   recipient.Name,
		Subject:  heading(digest, views, total),
		HTML:     buf.String(),
		Text:     text,
		Category: string(digest),
	}, nil
}

// RenderHighActivity builds the one-off notice sent when a docket is suspended.
func (r *Renderer) RenderHighActivity(recipient domain.Recipient, docket string) (domain.Email, error) {
	var buf bytes.Buffer
	if err := r.notice.Execute(&buf, map[string]any{"Docket": docket, "Name": displayName(recipient)}); err != nil {
		return domain.Email{}, fmt.Errorf("render notice: %w", err)
	}
	text, err := PlainText(buf.String())
	if err != nil {
		return domain.Email{}, err
	}
	return domain.Email{
		To:       recipient.Email,
		ToName:   recipient.Name,
		Subject:  fmt.Sprintf("High activity on docket %s", docket),
		HTML:     buf.String(),
		Text:     text,
		Category: "high_activity",
	}, nil
}

func (r *Renderer) view(recipient domain.Recipient, f domain.Filing) (filingView, bool) {
	fv := filingView{
		Title:      f.Title,
		Author:     f.Author,
		FilingType: f.FilingType,
		URL:        f.URL,
	}
	if !f.ReceivedAt.IsZero() {
		fv.Received = f.ReceivedAt.Format("Jan 2, 2006")
	}
	a := f.Analysis
	if a == nil {
		return fv, false
	}
	fv.Summary = a.Summary
	if a.Degraded || f.Status == domain.FilingCompletedRestricted {
		return fv, false
	}
	if !recipient.FullAccess() {
		fv.Summary = truncateRunes(a.Summary, r.freeChars)
		return fv, true
	}
	fv.KeyPoints = a.KeyPoints
	fv.Stakeholders = a.Stakeholders
	fv.Impact = a.RegulatoryImpact
	return fv, false
}

// PlainText flattens rendered HTML into the text/plain alternative.
func PlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse rendered html: %w", err)
	}
	var lines []string
	doc.Find("h1, h2, h3, p, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		switch goquery.NodeName(sel) {
		case "h1", "h2":
			lines = append(lines, "", strings.ToUpper(text))
		case "li":
			lines = append(lines, "  - "+text)
		default:
			lines = append(lines, text)
		}
	})
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func heading(digest domain.DigestType, sections []sectionView, total int) string {
	switch digest {
	case domain.DigestDaily:
		return fmt.Sprintf("Your daily docket digest: %d new filings", total)
	case domain.DigestWeekly:
		return fmt.Sprintf("Your weekly docket digest: %d new filings", total)
	case domain.DigestSeed:
		if len(sections) == 1 {
			return fmt.Sprintf("Welcome: recent filings in docket %s", sections[0].Docket)
		}
		return "Welcome: recent filings in your dockets"
	default:
		if len(sections) == 1 {
			return fmt.Sprintf("New filing activity in docket %s", sections[0].Docket)
		}
		return fmt.Sprintf("New filing activity in %d dockets", len(sections))
	}
}

func displayName(r domain.Recipient) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "…"
}
