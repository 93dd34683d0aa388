// Package lookup fetches short encyclopedia summaries from Wikipedia.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSentences is how much of a summary is kept.
const DefaultSentences = 3

const maxOptions = 3

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("empty query")

// Kind classifies a lookup result.
type Kind string

const (
	KindSummary   Kind = "summary"
	KindAmbiguous Kind = "ambiguous"
	KindNotFound  Kind = "not_found"
)

// Result is the outcome of a lookup.
type Result struct {
	Kind  Kind
	Query string
	Title string
	// Text holds the first sentences of the article for KindSummary.
	Text string
	// Options holds candidate titles for KindAmbiguous.
	Options []string
}

// String renders the result as a chat reply.
func (r Result) String() string {
	switch r.Kind {
	case KindSummary:
		return fmt.Sprintf("Wikipedia: %s\n\n%s", r.Title, r.Text)
	case KindAmbiguous:
		if len(r.Options) == 0 {
			return fmt.Sprintf("%q has several meanings. Try a more specific query.", r.Query)
		}
		return fmt.Sprintf("Too many results. Did you mean one of these?\n(%s)", strings.Join(r.Options, ", "))
	default:
		return "No Wikipedia page was found for this topic."
	}
}

// Client queries one Wikipedia language edition.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger

	// Sentences limits the summary length; zero means DefaultSentences.
	Sentences  int
	retryDelay time.Duration
}

// NewClient creates a Client for the given language code, e.g. "en" or "tr".
func NewClient(lang string, logger *slog.Logger) *Client {
	return NewClientWithURL(fmt.Sprintf("https://%s.wikipedia.org", lang), logger)
}

// NewClientWithURL creates a Client with a custom base URL (for testing).
func NewClientWithURL(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger.With("adapter", "wikipedia"),
		retryDelay: 500 * time.Millisecond,
	}
}

type summaryResponse struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

// Summary looks up query. A missing page is a KindNotFound result, not an
// error; errors are reserved for transport and decoding failures.
func (c *Client) Summary(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	result := Result{Kind: KindNotFound, Query: query}

	title := strings.ReplaceAll(query, " ", "_")
	reqURL := c.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)

	c.log.DebugContext(ctx, "wikipedia request", slog.String("query", query))

	var page summaryResponse
	found, err := c.getJSON(ctx, reqURL, &page)
	if err != nil {
		c.log.ErrorContext(ctx, "wikipedia request failed", slog.String("query", query), slog.String("error", err.Error()))
		return Result{}, err
	}
	if !found {
		return result, nil
	}

	result.Title = page.Title
	if page.Type == "disambiguation" {
		result.Kind = KindAmbiguous
		options, err := c.options(ctx, query, page.Title)
		if err != nil {
			// The page is still known to be ambiguous.
			c.log.WarnContext(ctx, "wikipedia options failed", slog.String("query", query), slog.String("error", err.Error()))
		}
		result.Options = options
		return result, nil
	}

	n := c.Sentences
	if n <= 0 {
		n = DefaultSentences
	}
	result.Kind = KindSummary
	result.Text = FirstSentences(page.Extract, n)

	c.log.DebugContext(ctx, "wikipedia response",
		slog.String("query", query),
		slog.String("title", page.Title),
		slog.String("kind", string(result.Kind)),
	)
	return result, nil
}

// options lists article titles matching query through the opensearch API.
func (c *Client) options(ctx context.Context, query, exclude string) ([]string, error) {
	params := url.Values{
		"action": {"opensearch"},
		"format": {"json"},
		"limit":  {fmt.Sprint(maxOptions + 1)},
		"search": {query},
	}
	// [query, [titles], [descriptions], [urls]]
	var raw []json.RawMessage
	found, err := c.getJSON(ctx, c.baseURL+"/w/api.php?"+params.Encode(), &raw)
	if err != nil || !found || len(raw) < 2 {
		return nil, err
	}
	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("wikipedia: decode options: %w", err)
	}

	options := make([]string, 0, maxOptions)
	for _, t := range titles {
		if t == exclude {
			continue
		}
		options = append(options, t)
		if len(options) == maxOptions {
			break
		}
	}
	return options, nil
}

// getJSON decodes the response body into v. It reports false on a 404.
func (c *Client) getJSON(ctx context.Context, reqURL string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("wikipedia: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "brainquiz/1.0")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return false, fmt.Errorf("wikipedia: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("wikipedia: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("wikipedia: decode json: %w", err)
	}
	return true, nil
}

// doWithRetry executes the request with a single retry on 5xx or network errors.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)

	shouldRetry := err != nil || (resp != nil && resp.StatusCode >= 500)
	if !shouldRetry || ctx.Err() != nil {
		return resp, err
	}

	reason := "network error"
	if err == nil && resp != nil {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	c.log.WarnContext(ctx, "wikipedia retry", slog.String("url", req.URL.String()), slog.String("reason", reason))

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.retryDelay):
	}

	return c.httpClient.Do(req)
}

// FirstSentences returns the first n sentences of text. A sentence ends at
// '.', '!' or '?' followed by whitespace or the end of the text.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return ""
	}
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				count++
				if count == n {
					return text[:i+1]
				}
			}
		}
	}
	return text
}
