package pagination_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tabmigrate/internal/pagination"
)

type recordingFetcher struct {
	pages     [][]string
	failOn    int
	requested []pagination.PageRequest
}

func (fetcher *recordingFetcher) fetch(_ context.Context, request pagination.PageRequest) ([]string, error) {
	fetcher.requested = append(fetcher.requested, request)
	if fetcher.failOn == request.PageNumber {
		return nil, errors.New("listing failed")
	}
	pageIndex := request.PageNumber - 1
	if pageIndex >= len(fetcher.pages) {
		return nil, nil
	}
	return fetcher.pages[pageIndex], nil
}

func TestItemsWalksPagesUntilEmptyPage(testInstance *testing.T) {
	fetcher := &recordingFetcher{pages: [][]string{{"a", "b"}, {"c"}}}

	items, collectError := pagination.Collect(pagination.Items(context.Background(), 2, fetcher.fetch))
	require.NoError(testInstance, collectError)
	require.Equal(testInstance, []string{"a", "b", "c"}, items)
	require.Equal(testInstance, []pagination.PageRequest{
		{PageNumber: 1, PageSize: 2},
		{PageNumber: 2, PageSize: 2},
		{PageNumber: 3, PageSize: 2},
	}, fetcher.requested)
}

func TestItemsStopsFetchingWhenConsumerStops(testInstance *testing.T) {
	fetcher := &recordingFetcher{pages: [][]string{{"a", "b"}, {"c"}}}

	for item, itemError := range pagination.Items(context.Background(), 0, fetcher.fetch) {
		require.NoError(testInstance, itemError)
		require.Equal(testInstance, "a", item)
		break
	}
	require.Len(testInstance, fetcher.requested, 1)
	require.Equal(testInstance, pagination.DefaultPageSize(), fetcher.requested[0].PageSize)
}

func TestItemsYieldsFetchErrorOnce(testInstance *testing.T) {
	fetcher := &recordingFetcher{pages: [][]string{{"a"}, {"b"}}, failOn: 2}

	items, collectError := pagination.Collect(pagination.Items(context.Background(), 1, fetcher.fetch))
	require.EqualError(testInstance, collectError, "listing failed")
	require.Equal(testInstance, []string{"a"}, items)
}

func TestItemsRestartsOnEveryRange(testInstance *testing.T) {
	fetcher := &recordingFetcher{pages: [][]string{{"a"}}}
	sequence := pagination.Items(context.Background(), 1, fetcher.fetch)

	firstPass, firstError := pagination.Collect(sequence)
	require.NoError(testInstance, firstError)
	secondPass, secondError := pagination.Collect(sequence)
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, firstPass, secondPass)
	require.Len(testInstance, fetcher.requested, 4)
}

func TestItemsHonorsCanceledContext(testInstance *testing.T) {
	fetcher := &recordingFetcher{pages: [][]string{{"a"}}}
	canceledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, collectError := pagination.Collect(pagination.Items(canceledContext, 1, fetcher.fetch))
	require.ErrorIs(testInstance, collectError, context.Canceled)
	require.Empty(testInstance, fetcher.requested)
}
