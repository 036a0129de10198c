package wikimcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// SearchResult is one entry of a full-text search.
type SearchResult struct {
	Title     string    `json:"title"`
	PageID    int64     `json:"pageid"`
	Snippet   string    `json:"snippet"`
	Size      int       `json:"size"`
	WordCount int       `json:"wordcount"`
	Timestamp time.Time `json:"timestamp"`
}

// PageLink is an internal link found on a parsed page.
type PageLink struct {
	Title     string `json:"title"`
	Namespace int    `json:"ns"`
	Exists    bool   `json:"exists"`
}

// PageSection is one table-of-contents section of a parsed page.
type PageSection struct {
	Level  string `json:"level"`
	Line   string `json:"line"`
	Anchor string `json:"anchor"`
	Index  string `json:"index"`
}

// ParsedPage is the rendered content of a single page.
type ParsedPage struct {
	Title      string        `json:"title"`
	PageID     int64         `json:"pageid"`
	HTML       string        `json:"html"`
	Categories []string      `json:"categories"`
	Links      []PageLink    `json:"links"`
	Sections   []PageSection `json:"sections"`
}

// PageSummary is the plain-text intro extract of a page.
type PageSummary struct {
	Title   string `json:"title"`
	PageID  int64  `json:"pageid"`
	Extract string `json:"extract"`
}

// LanguageLink points to the same article in another language.
type LanguageLink struct {
	Lang  string `json:"lang"`
	Title string `json:"title"`
}

// RandomPage is a randomly chosen article reference.
type RandomPage struct {
	ID        int64  `json:"id"`
	Namespace int    `json:"ns"`
	Title     string `json:"title"`
}

// BatchResult carries the per-item outcome of a batch operation. Exactly one
// of Value and Err is meaningful.
type BatchResult[T any] struct {
	Value T
	Err   error
}

// apiError is the upstream API-level error envelope, delivered with HTTP 200.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *apiError) toError() error {
	status := 0
	// Missing titles are reported at the API level, not as HTTP 404.
	if e.Code == "missingtitle" || e.Code == "nosuchpage" || e.Code == "nosuchpageid" {
		status = 404
	}
	return &Error{
		Kind:       KindHTTP,
		Message:    fmt.Sprintf("upstream API error %s: %s", e.Code, e.Info),
		StatusCode: status,
		Timestamp:  time.Now(),
	}
}

func decodeError(what string, cause error) error {
	return &Error{
		Kind:      KindDecode,
		Message:   fmt.Sprintf("cannot decode %s response", what),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// notFoundError reports a title the upstream knows nothing about.
func notFoundError(title string) error {
	return &Error{
		Kind:       KindHTTP,
		Message:    fmt.Sprintf("page %q not found", title),
		StatusCode: 404,
		Timestamp:  time.Now(),
	}
}

// All envelopes below follow the formatversion=2 JSON layout.

type searchEnvelope struct {
	Error *apiError `json:"error"`
	Query struct {
		SearchInfo struct {
			TotalHits int `json:"totalhits"`
		} `json:"searchinfo"`
		Search []SearchResult `json:"search"`
	} `json:"query"`
}

func decodeSearch(body []byte) ([]SearchResult, error) {
	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("search", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError()
	}
	if env.Query.Search == nil {
		return []SearchResult{}, nil
	}
	return env.Query.Search, nil
}

type parseEnvelope struct {
	Error *apiError `json:"error"`
	Parse *struct {
		Title      string `json:"title"`
		PageID     int64  `json:"pageid"`
		Text       string `json:"text"`
		Categories []struct {
			Category string `json:"category"`
			SortKey  string `json:"sortkey"`
		} `json:"categories"`
		Links    []PageLink    `json:"links"`
		Sections []PageSection `json:"sections"`
	} `json:"parse"`
}

func decodePage(title string, body []byte) (*ParsedPage, error) {
	var env parseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("page", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError()
	}
	if env.Parse == nil {
		return nil, notFoundError(title)
	}

	page := &ParsedPage{
		Title:    env.Parse.Title,
		PageID:   env.Parse.PageID,
		HTML:     env.Parse.Text,
		Links:    env.Parse.Links,
		Sections: env.Parse.Sections,
	}
	for _, c := range env.Parse.Categories {
		page.Categories = append(page.Categories, c.Category)
	}
	return page, nil
}

type queryPagesEnvelope struct {
	Error *apiError `json:"error"`
	Query struct {
		Pages []struct {
			PageID    int64          `json:"pageid"`
			Title     string         `json:"title"`
			Missing   bool           `json:"missing"`
			Invalid   bool           `json:"invalid"`
			Extract   string         `json:"extract"`
			LangLinks []LanguageLink `json:"langlinks"`
		} `json:"pages"`
	} `json:"query"`
}

func decodeSummary(title string, body []byte) (*PageSummary, error) {
	var env queryPagesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("summary", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError()
	}
	if len(env.Query.Pages) == 0 {
		return nil, notFoundError(title)
	}

	page := env.Query.Pages[0]
	if page.Invalid {
		return nil, &Error{
			Kind:      KindValidation,
			Message:   fmt.Sprintf("upstream rejected title %q as invalid", title),
			Timestamp: time.Now(),
		}
	}
	if page.Missing {
		return nil, notFoundError(title)
	}

	return &PageSummary{
		Title:   page.Title,
		PageID:  page.PageID,
		Extract: page.Extract,
	}, nil
}

func decodeLanguageLinks(title string, body []byte) ([]LanguageLink, error) {
	var env queryPagesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("langlinks", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError()
	}
	if len(env.Query.Pages) == 0 {
		return nil, notFoundError(title)
	}

	page := env.Query.Pages[0]
	if page.Invalid {
		return nil, &Error{
			Kind:      KindValidation,
			Message:   fmt.Sprintf("upstream rejected title %q as invalid", title),
			Timestamp: time.Now(),
		}
	}
	if page.Missing {
		return nil, notFoundError(title)
	}
	if page.LangLinks == nil {
		return []LanguageLink{}, nil
	}
	return page.LangLinks, nil
}

type randomEnvelope struct {
	Error *apiError `json:"error"`
	Query struct {
		Random []RandomPage `json:"random"`
	} `json:"query"`
}

func decodeRandom(body []byte) (*RandomPage, error) {
	var env randomEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, decodeError("random", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError()
	}
	if len(env.Query.Random) == 0 {
		return nil, decodeError("random", fmt.Errorf("upstream returned no pages"))
	}
	page := env.Query.Random[0]
	return &page, nil
}
