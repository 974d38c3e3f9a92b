package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/basegraphhq/researchd/common/llm"
)

// WebConfig configures the builtin web-facing tools: web search, wiki,
// scholarly search, news, weather, and page fetch. Every
// field is optional; tools degrade to a text explanation rather than an
// error when a key they need is absent, so a missing key never panics an
// agent's tool-calling turn.
type WebConfig struct {
	HTTPClient        *http.Client
	WebSearchAPIKey   string
	WebSearchEndpoint string // e.g. a Bing/Serper-compatible search endpoint
	NewsAPIKey        string
	NewsEndpoint      string
	// RequestsPerSecond caps outbound calls to third-party web APIs, shared
	// by the builtin web tools of one registry; each registry builds its
	// own limiter, so the cap is not process-wide. Zero means unlimited.
	RequestsPerSecond float64
}

const defaultFetchTimeout = 15 * time.Second

func registerBuiltinWebTools(cfg WebConfig) []Tool {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return []Tool{
		webSearchTool(client, limiter, cfg),
		wikiTool(client, limiter),
		scholarlySearchTool(client, limiter),
		newsTool(client, limiter, cfg),
		weatherTool(client, limiter),
		pageFetchTool(client, limiter),
	}
}

type queryParams struct {
	Query string `json:"query" jsonschema:"required,description=Search query text."`
}

func webSearchTool(client *http.Client, limiter *rate.Limiter, cfg WebConfig) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "web_search",
			Description: "Search the public web for a query and return the top matching page titles, URLs, and snippets.",
			Parameters:  llm.GenerateSchema[queryParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[queryParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			if cfg.WebSearchAPIKey == "" || cfg.WebSearchEndpoint == "" {
				return "web_search is not configured (missing API key or endpoint); try the wiki or scholarly_search tools instead", nil
			}
			endpoint := fmt.Sprintf("%s?q=%s", cfg.WebSearchEndpoint, url.QueryEscape(params.Query))
			body, err := httpGet(ctx, client, limiter, endpoint, map[string]string{"Authorization": "Bearer " + cfg.WebSearchAPIKey})
			if err != nil {
				return "", fmt.Errorf("web_search transport: %w", err)
			}
			return string(body), nil
		},
	}
}

// wikipediaSummary is the shape of Wikipedia's free REST summary endpoint.
type wikipediaSummary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

func wikiTool(client *http.Client, limiter *rate.Limiter) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "wiki",
			Description: "Look up the Wikipedia summary for a topic title.",
			Parameters:  llm.GenerateSchema[queryParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[queryParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			endpoint := "https://en.wikipedia.org/api/rest_v1/page/summary/" + url.PathEscape(params.Query)
			body, err := httpGet(ctx, client, limiter, endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("wiki transport: %w", err)
			}
			var summary wikipediaSummary
			if err := json.Unmarshal(body, &summary); err != nil {
				return "no Wikipedia summary found for " + params.Query, nil
			}
			return fmt.Sprintf("%s: %s", summary.Title, summary.Extract), nil
		},
	}
}

// semanticScholarResponse is the shape of Semantic Scholar's free paper
// search endpoint, trimmed to the fields the agent needs.
type semanticScholarResponse struct {
	Data []struct {
		Title   string   `json:"title"`
		Year    int      `json:"year"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		URL string `json:"url"`
	} `json:"data"`
}

func scholarlySearchTool(client *http.Client, limiter *rate.Limiter) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "scholarly_search",
			Description: "Search academic papers by topic and return title, year, authors, and URL for top matches.",
			Parameters:  llm.GenerateSchema[queryParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[queryParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			endpoint := "https://api.semanticscholar.org/graph/v1/paper/search?fields=title,year,authors,url&limit=5&query=" +
				url.QueryEscape(params.Query)
			body, err := httpGet(ctx, client, limiter, endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("scholarly_search transport: %w", err)
			}
			var resp semanticScholarResponse
			if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
				return "no papers found for " + params.Query, nil
			}
			var sb strings.Builder
			for _, p := range resp.Data {
				var authors []string
				for _, a := range p.Authors {
					authors = append(authors, a.Name)
				}
				fmt.Fprintf(&sb, "%s (%d) — %s — %s\n", p.Title, p.Year, strings.Join(authors, ", "), p.URL)
			}
			return sb.String(), nil
		},
	}
}

func newsTool(client *http.Client, limiter *rate.Limiter, cfg WebConfig) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "news",
			Description: "Search recent news articles for a query and return headline, source, and URL.",
			Parameters:  llm.GenerateSchema[queryParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[queryParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			if cfg.NewsAPIKey == "" {
				return "news is not configured (missing API key); try web_search instead", nil
			}
			endpoint := cfg.NewsEndpoint
			if endpoint == "" {
				endpoint = "https://newsapi.org/v2/everything"
			}
			endpoint += "?q=" + url.QueryEscape(params.Query) + "&apiKey=" + url.QueryEscape(cfg.NewsAPIKey)
			body, err := httpGet(ctx, client, limiter, endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("news transport: %w", err)
			}
			return string(body), nil
		},
	}
}

type weatherParams struct {
	Latitude  float64 `json:"latitude" jsonschema:"required,description=Latitude in decimal degrees."`
	Longitude float64 `json:"longitude" jsonschema:"required,description=Longitude in decimal degrees."`
}

func weatherTool(client *http.Client, limiter *rate.Limiter) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "weather",
			Description: "Get the current weather conditions for a latitude/longitude.",
			Parameters:  llm.GenerateSchema[weatherParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[weatherParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			endpoint := fmt.Sprintf(
				"https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current_weather=true",
				params.Latitude, params.Longitude)
			body, err := httpGet(ctx, client, limiter, endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("weather transport: %w", err)
			}
			return string(body), nil
		},
	}
}

type pageFetchParams struct {
	URL string `json:"url" jsonschema:"required,description=The URL of the page to fetch and read."`
}

var htmlTagPattern = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)

const maxPageFetchChars = 8000

func pageFetchTool(client *http.Client, limiter *rate.Limiter) Tool {
	return Tool{
		Type: TypeBuiltin,
		Definition: llm.Tool{
			Name:        "page_fetch",
			Description: "Fetch a web page by URL and return its text content, with HTML markup stripped.",
			Parameters:  llm.GenerateSchema[pageFetchParams](),
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			params, err := llm.ParseToolArguments[pageFetchParams](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			if params.URL == "" {
				return "Error: url is required", nil
			}
			body, err := httpGet(ctx, client, limiter, params.URL, nil)
			if err != nil {
				return "", fmt.Errorf("page_fetch transport: %w", err)
			}
			text := htmlTagPattern.ReplaceAllString(string(body), " ")
			text = strings.Join(strings.Fields(text), " ")
			if len(text) > maxPageFetchChars {
				text = text[:maxPageFetchChars] + "... (truncated)"
			}
			return text, nil
		},
	}
}

func httpGet(ctx context.Context, client *http.Client, limiter *rate.Limiter, endpoint string, headers map[string]string) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "researchd/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
