package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/citedex/internal/config"
)

func chartJSON(symbol string, price float64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"symbol":%q,"regularMarketPrice":%v},
		"indicators":{"quote":[{"close":[%v,%v]}]}}]}}`, symbol, price, price-1, price)
}

func TestBlockSkipsNonMarketQuestions(t *testing.T) {
	svc := New(config.MarketConfig{Tickers: []string{"CRWD"}, TimeoutSec: 1}, zap.NewNop())

	if _, ok := svc.Block(context.Background(), "How do I configure the VPN?"); ok {
		t.Error("non-market question must not be enriched")
	}
}

func TestBlockRendersSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticker := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		fmt.Fprint(w, chartJSON(ticker, 321.5))
	}))
	defer srv.Close()

	svc := NewWithBaseURL(
		config.MarketConfig{Tickers: []string{"CRWD", "PANW"}, TimeoutSec: 1},
		srv.URL, zap.NewNop(),
	)

	block, ok := svc.Block(context.Background(), "How do we compare against competitors on pricing?")
	if !ok {
		t.Fatal("expected a market block")
	}
	for _, want := range []string{"CRWD", "PANW", "321.50", "xychart-beta", "mermaid"} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
}

func TestBlockDegradesSilentlyOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := NewWithBaseURL(
		config.MarketConfig{Tickers: []string{"CRWD"}, TimeoutSec: 1},
		srv.URL, zap.NewNop(),
	)

	if _, ok := svc.Block(context.Background(), "market pricing comparison"); ok {
		t.Error("upstream failure must degrade to no block, not an error")
	}
}

func TestBlockPartialFailureKeepsSurvivors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "FTNT") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartJSON("CRWD", 100))
	}))
	defer srv.Close()

	svc := NewWithBaseURL(
		config.MarketConfig{Tickers: []string{"CRWD", "FTNT"}, TimeoutSec: 1},
		srv.URL, zap.NewNop(),
	)

	block, ok := svc.Block(context.Background(), "stock performance")
	if !ok {
		t.Fatal("surviving tickers should still produce a block")
	}
	if strings.Contains(block, "FTNT") {
		t.Errorf("failed ticker leaked into block:\n%s", block)
	}
}
