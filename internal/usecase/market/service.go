// Package market enriches market-flavored questions with public ticker
// snapshots. The block is cosmetic: appended after citation validation,
// never counted as evidence, and any upstream failure degrades to no block
// at all rather than an error.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Service fetches ticker snapshots from the Yahoo Finance chart API.
type Service struct {
	client  *http.Client
	baseURL string
	tickers []string
	logger  *zap.Logger
}

// New creates a market enrichment service.
func New(cfg config.MarketConfig, logger *zap.Logger) *Service {
	return &Service{
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		baseURL: defaultBaseURL,
		tickers: cfg.Tickers,
		logger:  logger,
	}
}

// NewWithBaseURL creates a service against a custom endpoint.
func NewWithBaseURL(cfg config.MarketConfig, baseURL string, logger *zap.Logger) *Service {
	s := New(cfg, logger)
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

var enrichKeywords = []string{
	"market", "compet", "vendor", "price", "pricing", "cost", "stock", "compare", "comparison",
}

// shouldEnrich reports whether the question looks like a market or pricing
// comparison.
func shouldEnrich(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range enrichKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Block returns a markdown market snapshot for market-flavored questions.
// ok=false means "append nothing": the question did not qualify, or every
// quote fetch failed.
func (s *Service) Block(ctx context.Context, question string) (string, bool) {
	if !shouldEnrich(question) {
		return "", false
	}

	var quotes []quote
	for _, ticker := range s.tickers {
		q, err := s.fetchQuote(ctx, ticker)
		if err != nil {
			s.logger.Debug("Quote fetch failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return "", false
	}

	return renderBlock(quotes), true
}

type quote struct {
	Ticker string
	Price  float64
	Closes []float64
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (s *Service) fetchQuote(ctx context.Context, ticker string) (quote, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=1mo&interval=1d", s.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return quote{}, err
	}
	req.Header.Set("User-Agent", "citedex/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return quote{}, fmt.Errorf("chart API status %d for %s", resp.StatusCode, ticker)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return quote{}, fmt.Errorf("decode chart response for %s: %w", ticker, err)
	}
	if len(parsed.Chart.Result) == 0 {
		return quote{}, fmt.Errorf("empty chart result for %s", ticker)
	}

	r := parsed.Chart.Result[0]
	q := quote{Ticker: ticker, Price: r.Meta.RegularMarketPrice}
	if len(r.Indicators.Quote) > 0 {
		for _, c := range r.Indicators.Quote[0].Close {
			if c > 0 {
				q.Closes = append(q.Closes, c)
			}
		}
	}
	return q, nil
}

// renderBlock builds the markdown snapshot: a quote table plus a mermaid
// xychart of the latest prices.
func renderBlock(quotes []quote) string {
	var b strings.Builder

	b.WriteString("**Market snapshot** (public data, not from the knowledge base):\n\n")
	b.WriteString("| Ticker | Price |\n|---|---|\n")
	for _, q := range quotes {
		b.WriteString(fmt.Sprintf("| %s | %.2f |\n", q.Ticker, q.Price))
	}

	b.WriteString("\n```mermaid\nxychart-beta\n")
	b.WriteString("    title \"Share price\"\n")
	b.WriteString("    x-axis [")
	for i, q := range quotes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(q.Ticker)
	}
	b.WriteString("]\n    bar [")
	for i, q := range quotes {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%.2f", q.Price))
	}
	b.WriteString("]\n```")

	return b.String()
}
