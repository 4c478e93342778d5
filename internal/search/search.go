// Package search resolves literal and regex queries against the metadata
// store.
package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"findit/internal/storage"
)

const (
	defaultMaxResults = 1000

	// defaultCandidateMultiplier sizes the candidate superset fetched before
	// in-process regex filtering, as a multiple of MaxResults. It is a
	// latency/completeness heuristic, not a guarantee: a pattern matching
	// sparsely across a huge corpus can under-return.
	defaultCandidateMultiplier = 10
)

// Request describes one search.
type Request struct {
	Query      string
	MatchCase  bool
	Regex      bool
	MaxResults int
	SearchPath bool
	Type       storage.TypeFilter
	Location   string
}

// Engine answers search requests from the store. Literal queries are pushed
// down to the store's indexed lookup; regex queries filter a bounded ordered
// candidate set in-process.
type Engine struct {
	store               storage.Store
	candidateMultiplier int
}

// New constructs an Engine. A non-positive candidateMultiplier falls back to
// the default.
func New(store storage.Store, candidateMultiplier int) *Engine {
	if candidateMultiplier <= 0 {
		candidateMultiplier = defaultCandidateMultiplier
	}
	return &Engine{store: store, candidateMultiplier: candidateMultiplier}
}

// Search resolves req. An empty query yields an empty result set, never an
// error; an invalid regex pattern is reported as an error and touches nothing.
// Results never exceed MaxResults and are ordered directories first, then
// name ascending case-insensitively.
func (e *Engine) Search(ctx context.Context, req Request) ([]storage.Entry, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []storage.Entry{}, nil
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	if req.Regex {
		return e.searchRegex(ctx, query, req, maxResults)
	}

	results, err := e.store.Query(ctx, storage.Query{
		Substring:  query,
		MatchCase:  req.MatchCase,
		SearchPath: req.SearchPath,
		Type:       req.Type,
		Location:   req.Location,
		Limit:      maxResults,
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []storage.Entry{}
	}
	return results, nil
}

func (e *Engine) searchRegex(ctx context.Context, query string, req Request, maxResults int) ([]storage.Entry, error) {
	// Case sensitivity is a compilation flag, never pre-folded text.
	pattern := query
	if !req.MatchCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", query, err)
	}

	// An arbitrary pattern cannot use a prefix index, so fetch a bounded
	// ordered superset and filter it here, stopping at maxResults.
	candidates, err := e.store.Query(ctx, storage.Query{
		Type:     req.Type,
		Location: req.Location,
		Limit:    maxResults * e.candidateMultiplier,
	})
	if err != nil {
		return nil, err
	}

	results := make([]storage.Entry, 0)
	for _, entry := range candidates {
		target := entry.Name
		if req.SearchPath {
			target = entry.Path
		}
		if re.MatchString(target) {
			results = append(results, entry)
			if len(results) >= maxResults {
				break
			}
		}
	}
	return results, nil
}
