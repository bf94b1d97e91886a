package tasks

import (
	"context"

	"github.com/viant/asyncauth"
)

// Searcher finds an item for a user. A nil item means nothing was found.
type Searcher interface {
	Search(ctx context.Context, userID, query string) (*asyncauth.Item, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, userID, query string) (*asyncauth.Item, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, userID, query string) (*asyncauth.Item, error) {
	return f(ctx, userID, query)
}

// MockSearcher always finds the same item.
type MockSearcher struct{}

// Search implements Searcher.
func (MockSearcher) Search(ctx context.Context, userID, query string) (*asyncauth.Item, error) {
	return &asyncauth.Item{
		Name:        "Mock Item",
		Description: "This is a randomly found item for testing purposes.",
	}, nil
}
