package wikimcp

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Per-operation cache lifetimes and request defaults.
const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultSearchTTL    = 5 * time.Minute
	DefaultPageTTL      = 30 * time.Minute
	DefaultSummaryTTL   = 30 * time.Minute
	DefaultLangLinksTTL = time.Hour

	DefaultLanguage       = "en"
	DefaultBatchWindow    = 5
	DefaultSearchLimit    = 10
	MaxSearchLimit        = 50
	DefaultLangLinksLimit = 100
	MaxLangLinksLimit     = 500
)

// Language codes end up in mirror hostnames, so they are validated strictly.
var langPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,11}$`)

// RequestMonitor observes the outcome of service operations. Implementations
// must record and return the handler's error unchanged, never suppress it.
// monitoring.Service satisfies this interface.
type RequestMonitor interface {
	MonitorRequest(ctx context.Context, method string, params map[string]interface{}, requestID string, handler func(context.Context) error) error
}

// ContentService is the resilient read facade over the upstream content API.
// Every operation validates its input, consults the cache, coalesces
// concurrent identical calls, and fetches through the mirror failover layer.
// It is safe for concurrent use.
type ContentService struct {
	endpoints *EndpointManager
	cache     *TTLCache
	dedup     *RequestDeduplicator
	limiters  *RateLimiterRegistry
	metrics   *MetricsCollector
	logger    Logger
	debug     *DebugConfig
	monitor   RequestMonitor

	defaultLang string
	batchWindow int

	searchTTL    time.Duration
	pageTTL      time.Duration
	summaryTTL   time.Duration
	langLinksTTL time.Duration

	emConfig        EndpointManagerConfig
	validationError error
}

// New constructs a ContentService from functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *ContentService {
	s := &ContentService{
		defaultLang:  DefaultLanguage,
		batchWindow:  DefaultBatchWindow,
		searchTTL:    DefaultSearchTTL,
		pageTTL:      DefaultPageTTL,
		summaryTTL:   DefaultSummaryTTL,
		langLinksTTL: DefaultLangLinksTTL,
		debug:        DefaultDebugConfig(),
	}

	for _, option := range options {
		option(s)
	}

	if s.cache == nil {
		s.cache = NewTTLCache(DefaultCacheMaxEntries, DefaultCacheTTL)
	}
	if s.dedup == nil {
		s.dedup = NewRequestDeduplicator()
	}
	if s.endpoints == nil {
		s.emConfig.Limiters = s.limiters
		s.emConfig.Metrics = s.metrics
		s.emConfig.Logger = s.logger
		s.emConfig.Debug = s.debug
		s.endpoints = NewEndpointManager(s.emConfig)
	}

	if err := s.ValidateConfiguration(); err != nil {
		s.validationError = err
	}

	return s
}

// SearchOptions tunes a Search call. Zero values use the service defaults.
type SearchOptions struct {
	Language string
	Limit    int
}

// Search runs a full-text search and returns the matching pages.
func (s *ContentService) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	const op = "search"
	requestID := s.newRequestID()

	query = strings.TrimSpace(query)
	lang := s.resolveLang(opts.Language)
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}

	if query == "" {
		return nil, validationError(op, "query must not be empty", requestID)
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, validationError(op, fmt.Sprintf("limit must be between 1 and %d", MaxSearchLimit), requestID)
	}
	if !langPattern.MatchString(lang) {
		return nil, validationError(op, fmt.Sprintf("invalid language code %q", lang), requestID)
	}

	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var results []SearchResult
	err := s.monitored(ctx, op, requestID, map[string]interface{}{"query": query, "language": lang, "limit": limit}, func(ctx context.Context) error {
		v, err := s.cachedFetch(ctx, op, requestID, lang, params, s.searchTTL, func(body []byte) (interface{}, error) {
			return decodeSearch(body)
		})
		if err != nil {
			return err
		}
		results = v.([]SearchResult)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PageOptions tunes a GetPage call.
type PageOptions struct {
	Language string
}

// GetPage fetches and parses the full rendered content of a page.
func (s *ContentService) GetPage(ctx context.Context, title string, opts PageOptions) (*ParsedPage, error) {
	const op = "page"
	requestID := s.newRequestID()

	title = strings.TrimSpace(title)
	lang := s.resolveLang(opts.Language)

	if title == "" {
		return nil, validationError(op, "title must not be empty", requestID)
	}
	if !langPattern.MatchString(lang) {
		return nil, validationError(op, fmt.Sprintf("invalid language code %q", lang), requestID)
	}

	params := url.Values{
		"action":        {"parse"},
		"page":          {title},
		"prop":          {"text|categories|links|sections"},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var page *ParsedPage
	err := s.monitored(ctx, op, requestID, map[string]interface{}{"title": title, "language": lang}, func(ctx context.Context) error {
		v, err := s.cachedFetch(ctx, op, requestID, lang, params, s.pageTTL, func(body []byte) (interface{}, error) {
			return decodePage(title, body)
		})
		if err != nil {
			return err
		}
		page = v.(*ParsedPage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// SummaryOptions tunes a GetSummary call. Sentences zero requests the whole
// intro section.
type SummaryOptions struct {
	Language  string
	Sentences int
}

// GetSummary fetches the plain-text intro extract of a page.
func (s *ContentService) GetSummary(ctx context.Context, title string, opts SummaryOptions) (*PageSummary, error) {
	const op = "summary"
	requestID := s.newRequestID()

	title = strings.TrimSpace(title)
	lang := s.resolveLang(opts.Language)

	if title == "" {
		return nil, validationError(op, "title must not be empty", requestID)
	}
	if opts.Sentences < 0 {
		return nil, validationError(op, "sentences must not be negative", requestID)
	}
	if !langPattern.MatchString(lang) {
		return nil, validationError(op, fmt.Sprintf("invalid language code %q", lang), requestID)
	}

	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"titles":        {title},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	if opts.Sentences > 0 {
		params.Set("exsentences", strconv.Itoa(opts.Sentences))
	} else {
		params.Set("exintro", "1")
	}

	var summary *PageSummary
	err := s.monitored(ctx, op, requestID, map[string]interface{}{"title": title, "language": lang}, func(ctx context.Context) error {
		v, err := s.cachedFetch(ctx, op, requestID, lang, params, s.summaryTTL, func(body []byte) (interface{}, error) {
			return decodeSummary(title, body)
		})
		if err != nil {
			return err
		}
		summary = v.(*PageSummary)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// LanguageLinksOptions tunes a GetLanguageLinks call.
type LanguageLinksOptions struct {
	Language string
	Limit    int
}

// GetLanguageLinks lists the other-language versions of a page.
func (s *ContentService) GetLanguageLinks(ctx context.Context, title string, opts LanguageLinksOptions) ([]LanguageLink, error) {
	const op = "langlinks"
	requestID := s.newRequestID()

	title = strings.TrimSpace(title)
	lang := s.resolveLang(opts.Language)
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLangLinksLimit
	}

	if title == "" {
		return nil, validationError(op, "title must not be empty", requestID)
	}
	if limit < 1 || limit > MaxLangLinksLimit {
		return nil, validationError(op, fmt.Sprintf("limit must be between 1 and %d", MaxLangLinksLimit), requestID)
	}
	if !langPattern.MatchString(lang) {
		return nil, validationError(op, fmt.Sprintf("invalid language code %q", lang), requestID)
	}

	params := url.Values{
		"action":        {"query"},
		"prop":          {"langlinks"},
		"titles":        {title},
		"lllimit":       {strconv.Itoa(limit)},
		"redirects":     {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var links []LanguageLink
	err := s.monitored(ctx, op, requestID, map[string]interface{}{"title": title, "language": lang}, func(ctx context.Context) error {
		v, err := s.cachedFetch(ctx, op, requestID, lang, params, s.langLinksTTL, func(body []byte) (interface{}, error) {
			return decodeLanguageLinks(title, body)
		})
		if err != nil {
			return err
		}
		links = v.([]LanguageLink)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// RandomOptions tunes a RandomPage call. Namespace zero selects articles.
type RandomOptions struct {
	Language  string
	Namespace int
}

// RandomPage returns one randomly chosen page reference. Results are neither
// cached nor coalesced: every call is meant to produce a fresh page.
func (s *ContentService) RandomPage(ctx context.Context, opts RandomOptions) (*RandomPage, error) {
	const op = "random"
	requestID := s.newRequestID()

	lang := s.resolveLang(opts.Language)
	if opts.Namespace < 0 {
		return nil, validationError(op, "namespace must not be negative", requestID)
	}
	if !langPattern.MatchString(lang) {
		return nil, validationError(op, fmt.Sprintf("invalid language code %q", lang), requestID)
	}

	params := url.Values{
		"action":        {"query"},
		"list":          {"random"},
		"rnnamespace":   {strconv.Itoa(opts.Namespace)},
		"rnlimit":       {"1"},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var page *RandomPage
	err := s.monitored(ctx, op, requestID, map[string]interface{}{"language": lang}, func(ctx context.Context) error {
		s.metrics.RecordRequestStart(op)
		defer s.metrics.RecordRequestEnd(op)

		body, err := s.endpoints.fetch(ctx, op, requestID, lang, params)
		if err != nil {
			return err
		}
		p, err := decodeRandom(body)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// BatchSearch runs one search per query with bounded concurrency. Per-item
// failures land in that item's entry; one bad query never fails the batch.
// Duplicate queries collapse into a single entry.
func (s *ContentService) BatchSearch(ctx context.Context, queries []string, opts SearchOptions) map[string]BatchResult[[]SearchResult] {
	results := make(map[string]BatchResult[[]SearchResult], len(queries))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.batchWindow)

	seen := make(map[string]bool, len(queries))
	for _, query := range queries {
		if seen[query] {
			continue
		}
		seen[query] = true
		query := query
		g.Go(func() error {
			items, err := s.Search(ctx, query, opts)
			mu.Lock()
			results[query] = BatchResult[[]SearchResult]{Value: items, Err: err}
			mu.Unlock()
			return nil
		})
	}
	// Item outcomes are recorded per entry; Wait only joins the group.
	g.Wait()

	return results
}

// BatchGetSummaries fetches summaries for many titles with bounded
// concurrency, mapping each title to its own outcome.
func (s *ContentService) BatchGetSummaries(ctx context.Context, titles []string, opts SummaryOptions) map[string]BatchResult[*PageSummary] {
	results := make(map[string]BatchResult[*PageSummary], len(titles))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.batchWindow)

	seen := make(map[string]bool, len(titles))
	for _, title := range titles {
		if seen[title] {
			continue
		}
		seen[title] = true
		title := title
		g.Go(func() error {
			summary, err := s.GetSummary(ctx, title, opts)
			mu.Lock()
			results[title] = BatchResult[*PageSummary]{Value: summary, Err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// CacheStats reports cache effectiveness counters for health endpoints.
func (s *ContentService) CacheStats() CacheStats {
	return s.cache.Stats()
}

// PendingRequests reports how many upstream fetches are currently coalescing
// concurrent callers.
func (s *ContentService) PendingRequests() int {
	return s.dedup.Pending()
}

// MirrorStates reports the circuit state of every configured mirror.
func (s *ContentService) MirrorStates() map[string]CircuitState {
	return s.endpoints.States()
}

// cachedFetch is the shared cache-or-fetch path: cache lookup, then a
// deduplicated fetch-decode-store flight keyed by the same fingerprint.
func (s *ContentService) cachedFetch(ctx context.Context, op, requestID, lang string, params url.Values, ttl time.Duration, decode func([]byte) (interface{}, error)) (interface{}, error) {
	s.metrics.RecordRequestStart(op)
	defer s.metrics.RecordRequestEnd(op)

	key := fingerprint(op, lang, params)

	if v, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit(op)
		if s.debug != nil && s.debug.Enabled && s.debug.LogCache && s.logger != nil {
			s.logger.Debug("Cache hit", "requestID", requestID, "key", key)
		}
		return v, nil
	}
	s.metrics.RecordCacheMiss(op)
	if s.debug != nil && s.debug.Enabled && s.debug.LogCache && s.logger != nil {
		s.logger.Debug("Cache miss", "requestID", requestID, "key", key)
	}

	v, shared, err := s.dedup.Deduplicate(ctx, key, func(ctx context.Context) (interface{}, error) {
		body, err := s.endpoints.fetch(ctx, op, requestID, lang, params)
		if err != nil {
			return nil, err
		}
		val, err := decode(body)
		if err != nil {
			return nil, err
		}
		s.cache.SetWithTTL(key, val, ttl)
		s.metrics.RecordCacheSize("default", s.cache.Len())
		if s.debug != nil && s.debug.Enabled && s.debug.LogCache && s.logger != nil {
			s.logger.Debug("Response cached", "requestID", requestID, "key", key, "ttl", ttl)
		}
		return val, nil
	})
	if shared {
		s.metrics.RecordDedupHit(op)
		if s.debug != nil && s.debug.Enabled && s.debug.LogDedup && s.logger != nil {
			s.logger.Debug("Joined in-flight request", "requestID", requestID, "key", key)
		}
	}
	return v, err
}

// monitored wraps handler with the configured monitor so every operation's
// outcome is recorded. Without a monitor the handler runs directly.
func (s *ContentService) monitored(ctx context.Context, op, requestID string, params map[string]interface{}, handler func(context.Context) error) error {
	if s.monitor == nil {
		return handler(ctx)
	}
	return s.monitor.MonitorRequest(ctx, op, params, requestID, handler)
}

func (s *ContentService) resolveLang(lang string) string {
	if lang == "" {
		return s.defaultLang
	}
	return lang
}

func (s *ContentService) newRequestID() string {
	if s.debug != nil && s.debug.RequestIDGen != nil {
		return s.debug.RequestIDGen()
	}
	return generateRequestID()
}

// fingerprint builds the deterministic key shared by cache and dedup.
// url.Values.Encode sorts keys, keeping the key stable across callers.
func fingerprint(op, lang string, params url.Values) string {
	return op + ":" + lang + ":" + params.Encode()
}

func validationError(op, msg, requestID string) error {
	return &Error{
		Kind:      KindValidation,
		Message:   msg,
		Op:        op,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}
