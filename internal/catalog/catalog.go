// Package catalog enumerates server objects of one content kind and filters
// them by tag.
package catalog

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/pagination"
)

const (
	missingListerMessageConstant = "object lister not configured"
)

// ErrListerNotConfigured indicates a nil PageLister was supplied.
var ErrListerNotConfigured = errors.New(missingListerMessageConstant)

// PageLister returns one page of objects of a kind.
type PageLister interface {
	ListObjects(executionContext context.Context, kind content.Kind, page pagination.PageRequest) ([]content.ObjectDescriptor, error)
}

// Predicate selects descriptors.
type Predicate func(descriptor content.ObjectDescriptor) bool

// TagPredicate matches descriptors carrying tag exactly.
func TagPredicate(tag string) Predicate {
	trimmedTag := strings.TrimSpace(tag)
	return func(descriptor content.ObjectDescriptor) bool {
		return descriptor.HasTag(trimmedTag)
	}
}

// Catalog lists objects page by page.
type Catalog struct {
	pageSize int
}

// New constructs a Catalog; a non-positive pageSize uses the pagination default.
func New(pageSize int) *Catalog {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize()
	}
	return &Catalog{pageSize: pageSize}
}

// List lazily yields every object of kind. Each range restarts from the first page.
func (catalog *Catalog) List(executionContext context.Context, lister PageLister, kind content.Kind) iter.Seq2[content.ObjectDescriptor, error] {
	if lister == nil {
		return func(yield func(content.ObjectDescriptor, error) bool) {
			yield(content.ObjectDescriptor{}, ErrListerNotConfigured)
		}
	}
	return pagination.Items(executionContext, catalog.pageSize, func(pageContext context.Context, request pagination.PageRequest) ([]content.ObjectDescriptor, error) {
		return lister.ListObjects(pageContext, kind, request)
	})
}

// Filter yields descriptors accepted by predicate. Errors pass through unfiltered.
func Filter(sequence iter.Seq2[content.ObjectDescriptor, error], predicate Predicate) iter.Seq2[content.ObjectDescriptor, error] {
	return func(yield func(content.ObjectDescriptor, error) bool) {
		for descriptor, listError := range sequence {
			if listError != nil {
				yield(descriptor, listError)
				return
			}
			if predicate != nil && !predicate(descriptor) {
				continue
			}
			if !yield(descriptor, nil) {
				return
			}
		}
	}
}

// Tagged yields the objects of kind that carry tag.
func (catalog *Catalog) Tagged(executionContext context.Context, lister PageLister, kind content.Kind, tag string) iter.Seq2[content.ObjectDescriptor, error] {
	return Filter(catalog.List(executionContext, lister, kind), TagPredicate(tag))
}
