package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PollutionSync/internal/config"
	"PollutionSync/internal/logging"
	"PollutionSync/internal/ports"
)

const defaultBaseURL = "https://en.wikipedia.org/api/rest_v1"

// Client resolves place descriptions through the Wikipedia REST summary endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.DescriptionSource = (*Client)(nil)

// NewClient creates a client; an empty base URL points at English Wikipedia.
func NewClient(cfg config.WikipediaConfig, log *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	log = logging.OrDiscard(log)

	return &Client{
		baseURL:    baseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type summary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ExtractHTML string `json:"extract_html"`
}

// Describe returns the summary extract for name. A missing page, or a page
// without any extract text, is reported as not found.
func (c *Client) Describe(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}

	endpoint := c.baseURL + "/page/summary/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch summary %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("no summary page", "city", name)
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("fetch summary %q: unexpected status %s: %s", name, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var s summary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return "", false, fmt.Errorf("decode summary %q: %w", name, err)
	}

	text := strings.TrimSpace(s.Extract)
	if text == "" && s.ExtractHTML != "" {
		text, err = htmlText(s.ExtractHTML)
		if err != nil {
			return "", false, fmt.Errorf("parse summary html %q: %w", name, err)
		}
	}
	if text == "" {
		return "", false, nil
	}

	return text, true, nil
}

var errEmptyDocument = errors.New("empty document")

// htmlText flattens an HTML fragment to whitespace-normalised text.
func htmlText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", errEmptyDocument
	}
	return strings.Join(strings.Fields(body.Text()), " "), nil
}
