package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"DocketWatch/internal/config"
	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

const filingPageURL = "https://www.fcc.gov/ecfs/search/search-filings/filing/"

// Client queries the public filing API for one docket at a time.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.FilingSource = (*Client)(nil)

// NewClient creates a rate-limited client; the source has no automatic retry.
func NewClient(cfg config.SourceConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

type filingRecord struct {
	ID          string `json:"id_submission"`
	Proceedings []struct {
		Name string `json:"name"`
	} `json:"proceedings"`
	Filers []struct {
		Name string `json:"name"`
	} `json:"filers"`
	SubmissionType struct {
		Description string `json:"description"`
	} `json:"submissiontype"`
	ViewingStatus struct {
		Description string `json:"description"`
	} `json:"viewingstatus"`
	DateReceived string `json:"date_received"`
	BriefComment string `json:"brief_comment_summary"`
	Documents    []struct {
		Filename     string `json:"filename"`
		Src          string `json:"src"`
		Type         string `json:"type"`
		Confidential bool   `json:"confidential"`
	} `json:"documents"`
}

// RecentFilings returns up to limit filings of the docket, newest first.
// Records that cannot be decoded or carry no identifier are skipped.
func (c *Client) RecentFilings(ctx context.Context, docket string, limit int) ([]domain.Filing, error) {
	if limit <= 0 {
		limit = 1
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("proceedings.name", docket)
	query.Set("sort", "date_received,DESC")
	query.Set("limit", strconv.Itoa(limit))
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("filing source error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var envelope struct {
		Filings []json.RawMessage `json:"filing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode filings: %w", err)
	}

	filings := make([]domain.Filing, 0, len(envelope.Filings))
	for i, raw := range envelope.Filings {
		f, err := normalize(docket, raw)
		if err != nil {
			c.logger.Warn("skipping malformed filing record", "docket", docket, "index", i, "error", err)
			continue
		}
		filings = append(filings, f)
	}
	if len(filings) > limit {
		filings = filings[:limit]
	}
	return filings, nil
}

func normalize(docket string, raw json.RawMessage) (domain.Filing, error) {
	var rec filingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Filing{}, fmt.Errorf("decode record: %w", err)
	}
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return domain.Filing{}, fmt.Errorf("record has no submission id")
	}

	f := domain.Filing{
		ID:           id,
		DocketNumber: docket,
		Title:        title(rec),
		FilingType:   rec.SubmissionType.Description,
		URL:          filingPageURL + url.PathEscape(id),
		Raw:          raw,
		Status:       domain.FilingPending,
	}
	names := make([]string, 0, len(rec.Filers))
	for _, filer := range rec.Filers {
		if filer.Name != "" {
			names = append(names, filer.Name)
		}
	}
	f.Author = strings.Join(names, "; ")
	f.ReceivedAt = parseReceived(rec.DateReceived)

	restricted := isRestricted(rec.ViewingStatus.Description)
	f.RestrictedAccess = restricted
	for _, doc := range rec.Documents {
		f.Attachments = append(f.Attachments, domain.Attachment{
			Filename:     doc.Filename,
			URL:          doc.Src,
			FileType:     doc.Type,
			Confidential: restricted || doc.Confidential,
			Extraction:   domain.ExtractionSkipped,
		})
	}
	return f, nil
}

func title(rec filingRecord) string {
	if s := strings.TrimSpace(rec.BriefComment); s != "" {
		return s
	}
	if rec.SubmissionType.Description != "" && len(rec.Filers) > 0 {
		return rec.SubmissionType.Description + " of " + rec.Filers[0].Name
	}
	if rec.SubmissionType.Description != "" {
		return rec.SubmissionType.Description
	}
	return "Filing " + rec.ID
}

func isRestricted(status string) bool {
	s := strings.ToLower(status)
	return (strings.Contains(s, "restricted") && !strings.Contains(s, "unrestricted")) || strings.Contains(s, "confidential")
}

func parseReceived(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
