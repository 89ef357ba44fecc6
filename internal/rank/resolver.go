package rank

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Defaults for the search walk
const (
	DefaultSearchURL = "https://www.coupang.com/search"
	DefaultMaxPages  = 20
)

// PageFetcher loads a search page and returns its rendered HTML
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Outcome is the result of walking the search pages for one keyword
type Outcome struct {
	Found        bool
	Rank         int
	TotalSeen    int
	PagesChecked int
	Strategy     string
}

// Resolver walks paginated search results looking for a product
type Resolver struct {
	SearchURL  string
	MaxPages   int
	Strategies []Strategy
}

// NewResolver creates a resolver with default settings
func NewResolver() *Resolver {
	return &Resolver{
		SearchURL:  DefaultSearchURL,
		MaxPages:   DefaultMaxPages,
		Strategies: DefaultStrategies,
	}
}

// PageURL returns the search URL for keyword on the given 1-based page
func (r *Resolver) PageURL(keyword string, page int) string {
	u := r.SearchURL + "?q=" + url.QueryEscape(keyword)
	if page > 1 {
		u += "&page=" + strconv.Itoa(page)
	}
	return u
}

// Resolve returns the 1-based rank of productID among the distinct products listed for
// keyword. Rank is the number of distinct products seen up to and including the match,
// so listings repeated across pages are counted once. A first page without result cards
// ends the search as not found, as does any later empty page. A fetch or parse failure
// is returned as an error together with the progress made so far.
func (r *Resolver) Resolve(ctx context.Context, fetcher PageFetcher, keyword, productID string) (Outcome, error) {
	maxPages := r.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	strategies := r.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	log := logrus.WithFields(logrus.Fields{
		"keyword":    keyword,
		"product_id": productID,
	})

	tracker := NewTracker()
	out := Outcome{}

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			out.TotalSeen = tracker.Len()
			return out, err
		}

		html, err := fetcher.Fetch(ctx, r.PageURL(keyword, page))
		if err != nil {
			out.TotalSeen = tracker.Len()
			return out, fmt.Errorf("failed to load page %d: %w", page, err)
		}
		out.PagesChecked = page

		cards, strategy, err := ExtractCards(html, strategies)
		if err != nil {
			out.TotalSeen = tracker.Len()
			return out, fmt.Errorf("page %d: %w", page, err)
		}
		if len(cards) == 0 {
			if page == 1 {
				log.Info("No result cards on first page, treating as no results")
			} else {
				log.WithField("page", page).Debug("Empty results page, end of listing")
			}
			break
		}
		if out.Strategy == "" {
			out.Strategy = strategy
		}

		log.WithFields(logrus.Fields{
			"page":     page,
			"cards":    len(cards),
			"strategy": strategy,
		}).Debug("Scanned results page")

		for _, card := range cards {
			if card.Matches(productID) {
				out.Found = true
				out.Rank = tracker.Add(productID)
				out.TotalSeen = tracker.Len()
				return out, nil
			}
			if key := card.Key(); key != "" {
				tracker.Add(key)
			}
		}
	}

	out.TotalSeen = tracker.Len()
	return out, nil
}
