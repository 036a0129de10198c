// Minimal example demonstrating a basic resilient Wikipedia lookup plus a
// slightly more advanced service showing mirror failover, rate limiting and
// the monitoring dashboard. The full original verbose scenarios were removed
// intentionally to keep the example approachable. See README for extended
// patterns.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	wikimcp "github.com/1999AZZAR/wikipedia-mcp-server-sub001"
	"github.com/1999AZZAR/wikipedia-mcp-server-sub001/monitoring"
)

func main() {
	ctx := context.Background()

	// --- Basic service (batteries‑included defaults) ---
	basic := wikimcp.New(
		wikimcp.WithMaxRetries(3),
		wikimcp.WithBaseDelay(100*time.Millisecond),
		wikimcp.WithMaxDelay(5*time.Second),
		wikimcp.WithRateLimiter(10, time.Second),
		wikimcp.WithCache(500, 10*time.Minute),
		wikimcp.WithCircuitBreaker(wikimcp.CircuitBreakerConfig{}),
		wikimcp.WithSimpleLogger(),
		wikimcp.WithDebug(),
	)
	if !basic.IsValid() {
		log.Fatalf("invalid service config: %v", basic.ValidationError())
	}

	results, err := basic.Search(ctx, "Go (programming language)", wikimcp.SearchOptions{Limit: 3})
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}
	for _, r := range results {
		fmt.Printf("found %q (pageid %d)\n", r.Title, r.PageID)
	}

	summary, err := basic.GetSummary(ctx, "Go (programming language)", wikimcp.SummaryOptions{Sentences: 2})
	if err != nil {
		log.Fatalf("summary failed: %v", err)
	}
	fmt.Println("summary:", summary.Extract)

	// The second identical call is served from the cache.
	if _, err := basic.GetSummary(ctx, "Go (programming language)", wikimcp.SummaryOptions{Sentences: 2}); err != nil {
		log.Fatalf("cached summary failed: %v", err)
	}
	stats := basic.CacheStats()
	fmt.Printf("cache: %d hits, %d misses\n", stats.Hits, stats.Misses)

	// --- Advanced snippet: custom mirrors + monitoring dashboard ---
	monitor := monitoring.NewService(monitoring.DefaultConfig(), nil)
	advanced := wikimcp.New(
		wikimcp.WithMirrors(
			"https://{lang}.wikipedia.org/w/api.php",
			"https://{lang}.m.wikipedia.org/w/api.php",
		),
		wikimcp.WithDefaultLanguage("en"),
		wikimcp.WithCircuitBreaker(wikimcp.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: 5 * time.Second, SuccessThreshold: 1}),
		wikimcp.WithMaxRetries(2),
		wikimcp.WithMonitor(monitor),
	)

	random, err := advanced.RandomPage(ctx, wikimcp.RandomOptions{})
	if err != nil {
		log.Fatalf("random page failed: %v", err)
	}
	fmt.Printf("random article: %q\n", random.Title)

	batch := advanced.BatchGetSummaries(ctx, []string{"Germany", "France", "No Such Page Hopefully"}, wikimcp.SummaryOptions{Sentences: 1})
	for title, entry := range batch {
		if entry.Err != nil {
			fmt.Printf("%s: %v\n", title, entry.Err)
			continue
		}
		fmt.Printf("%s: %s\n", title, entry.Value.Extract)
	}

	for mirror, state := range advanced.MirrorStates() {
		fmt.Printf("mirror %s circuit %s\n", mirror, state)
	}

	dashboard := monitor.Dashboard()
	fmt.Printf("health: %s (%.0f req/min, %.1f%% errors)\n",
		dashboard.Health.Status,
		dashboard.Health.RequestsPerMinute,
		dashboard.Health.ErrorRate*100,
	)
	for _, q := range dashboard.Usage.TopQueries {
		fmt.Printf("top query %q x%d\n", q.Query, q.Count)
	}
}
