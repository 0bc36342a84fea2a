package main

import (
	"context"
	"sort"
	"strings"

	"github.com/abgdnv/shopstate/internal/catalog"
	"github.com/shopspring/decimal"
)

// fixtureClient is an in-process catalog collaborator serving a small fixed
// listing. It stands in for the remote catalog service, which is outside
// this module's scope.
type fixtureClient struct {
	products []catalog.Product
}

func newFixtureClient() *fixtureClient {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return &fixtureClient{
		products: []catalog.Product{
			{ID: "p-1001", Title: "Wireless Headphones", Description: "Over-ear, noise cancelling", Price: price("99.99"), Brand: "Aural", Category: "electronics", Thumbnail: "/img/p-1001.jpg"},
			{ID: "p-1002", Title: "Mechanical Keyboard", Description: "Tenkeyless, brown switches", Price: price("79.50"), Brand: "KeyWorks", Category: "electronics", Thumbnail: "/img/p-1002.jpg"},
			{ID: "p-1003", Title: "Espresso Grinder", Description: "Conical burr grinder", Price: price("149.00"), Brand: "Crema", Category: "kitchen", Thumbnail: "/img/p-1003.jpg"},
			{ID: "p-1004", Title: "Chef's Knife", Description: "20cm stainless blade", Price: price("49.99"), Brand: "Crema", Category: "kitchen", Thumbnail: "/img/p-1004.jpg"},
			{ID: "p-1005", Title: "Trail Backpack", Description: "28L, rain cover included", Price: price("89.90"), Brand: "Ridge", Category: "outdoors", Thumbnail: "/img/p-1005.jpg"},
		},
	}
}

func (f *fixtureClient) FetchProducts(_ context.Context, params catalog.FetchParams) ([]catalog.Product, error) {
	matched := make([]catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		if params.Category != "" && p.Category != params.Category {
			continue
		}
		if params.SearchQuery != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(params.SearchQuery)) {
			continue
		}
		matched = append(matched, p)
	}
	if params.Offset >= len(matched) {
		return []catalog.Product{}, nil
	}
	end := params.Offset + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[params.Offset:end], nil
}

func (f *fixtureClient) FetchCategories(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range f.products {
		seen[p.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}
