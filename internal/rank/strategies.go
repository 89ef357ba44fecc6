package rank

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy is one selector tried when locating result cards on a search page
type Strategy struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

// DefaultStrategies is the cascade tried in order; the first selector with any match wins
var DefaultStrategies = []Strategy{
	{Name: "search-product-li", Selector: "li.search-product"},
	{Name: "search-product", Selector: ".search-product"},
	{Name: "data-product-id", Selector: "[data-product-id]"},
	{Name: "search-product-partial", Selector: `li[class*="search-product"]`},
	{Name: "product-li", Selector: `li[class*="product"]`},
	{Name: "product-div", Selector: `div[class*="product"]`},
}

type strategiesFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// LoadStrategies reads an ordered strategy list from a YAML file of the form
//
//	strategies:
//	  - name: search-product-li
//	    selector: li.search-product
func LoadStrategies(path string) ([]Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selectors file: %w", err)
	}
	return ParseStrategies(data)
}

// ParseStrategies decodes and validates a YAML strategy list
func ParseStrategies(data []byte) ([]Strategy, error) {
	var file strategiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse selectors file: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("selectors file defines no strategies")
	}

	for i := range file.Strategies {
		s := &file.Strategies[i]
		s.Selector = strings.TrimSpace(s.Selector)
		if s.Selector == "" {
			return nil, fmt.Errorf("strategy %d has an empty selector", i+1)
		}
		if s.Name == "" {
			s.Name = s.Selector
		}
	}
	return file.Strategies, nil
}

// ReadySelector joins all strategy selectors into one selector group that matches
// as soon as any strategy would yield a card.
func ReadySelector(strategies []Strategy) string {
	selectors := make([]string, 0, len(strategies))
	for _, s := range strategies {
		selectors = append(selectors, s.Selector)
	}
	return strings.Join(selectors, ", ")
}
