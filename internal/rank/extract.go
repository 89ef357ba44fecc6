// Package rank resolves the position of a product in paginated search results.
package rank

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var productPath = regexp.MustCompile(`/products/(\d+)`)

// ExtractProductID returns the numeric product id in a /products/<digits> link
func ExtractProductID(link string) (string, bool) {
	m := productPath.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Card is one search result as found on the page
type Card struct {
	// ProductID is the data-product-id attribute, if present
	ProductID string
	// Href is the first link inside the card
	Href string
}

// Key identifies the card's product for distinct counting. Empty when the card
// carries no recognisable product id.
func (c Card) Key() string {
	if c.ProductID != "" {
		return c.ProductID
	}
	id, _ := ExtractProductID(c.Href)
	return id
}

// Matches reports whether the card refers to productID
func (c Card) Matches(productID string) bool {
	if c.ProductID != "" && c.ProductID == productID {
		return true
	}
	id, ok := ExtractProductID(c.Href)
	return ok && id == productID
}

// ExtractCards parses rendered search page HTML and returns the cards found by the
// first strategy that matches anything, along with that strategy's name.
func ExtractCards(html string, strategies []Strategy) ([]Card, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse search page: %w", err)
	}

	for _, strategy := range strategies {
		sel := doc.Find(strategy.Selector)
		if sel.Length() == 0 {
			continue
		}

		cards := make([]Card, 0, sel.Length())
		sel.Each(func(_ int, item *goquery.Selection) {
			card := Card{}
			card.ProductID, _ = item.Attr("data-product-id")
			card.ProductID = strings.TrimSpace(card.ProductID)
			if goquery.NodeName(item) == "a" {
				card.Href, _ = item.Attr("href")
			} else {
				card.Href, _ = item.Find("a[href]").First().Attr("href")
			}
			cards = append(cards, card)
		})
		return cards, strategy.Name, nil
	}

	return nil, "", nil
}
