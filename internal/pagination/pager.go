// Package pagination walks page-numbered server listings as lazy sequences.
package pagination

import (
	"context"
	"iter"
)

const (
	firstPageNumberConstant = 1
	defaultPageSizeConstant = 100
)

// PageRequest selects one page of a listing. Page numbers start at 1.
type PageRequest struct {
	PageNumber int `url:"pageNumber"`
	PageSize   int `url:"pageSize"`
}

// PageFetcher returns the items of one page. An empty page ends the listing.
type PageFetcher[Item any] func(executionContext context.Context, request PageRequest) ([]Item, error)

// DefaultPageSize is applied when a non-positive page size is requested.
func DefaultPageSize() int {
	return defaultPageSizeConstant
}

// Items lazily yields every item across pages, fetching the next page only when
// the previous one has been consumed. A fetch error is yielded once and ends the
// sequence. Iteration restarts from the first page on every range.
func Items[Item any](executionContext context.Context, pageSize int, fetcher PageFetcher[Item]) iter.Seq2[Item, error] {
	if pageSize <= 0 {
		pageSize = defaultPageSizeConstant
	}

	return func(yield func(Item, error) bool) {
		var zeroItem Item
		for pageNumber := firstPageNumberConstant; ; pageNumber++ {
			if contextError := executionContext.Err(); contextError != nil {
				yield(zeroItem, contextError)
				return
			}

			pageItems, fetchError := fetcher(executionContext, PageRequest{PageNumber: pageNumber, PageSize: pageSize})
			if fetchError != nil {
				yield(zeroItem, fetchError)
				return
			}
			if len(pageItems) == 0 {
				return
			}

			for _, pageItem := range pageItems {
				if !yield(pageItem, nil) {
					return
				}
			}
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[Item any](sequence iter.Seq2[Item, error]) ([]Item, error) {
	var collected []Item
	for item, itemError := range sequence {
		if itemError != nil {
			return collected, itemError
		}
		collected = append(collected, item)
	}
	return collected, nil
}
