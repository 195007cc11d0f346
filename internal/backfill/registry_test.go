package backfill

import (
	"testing"

	"github.com/openshelf/openshelf/internal/mocks"
	"github.com/openshelf/openshelf/internal/provider"
	"github.com/stretchr/testify/assert"
)

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("openlibrary", Provider{
		Fetcher: &mocks.MockFetcher{},
		Map:     provider.MapDocument,
	})

	p, ok := registry.Lookup("openlibrary")
	assert.True(t, ok)
	assert.NotNil(t, p.Fetcher)
	assert.NotNil(t, p.Map)

	_, ok = registry.Lookup("unknownsource")
	assert.False(t, ok)
}

func TestRegistrySources(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	assert.Empty(t, registry.Sources())

	registry.Register("googlebooks", Provider{Fetcher: &mocks.MockFetcher{}, Map: provider.MapDocument})
	registry.Register("openlibrary", Provider{Fetcher: &mocks.MockFetcher{}, Map: provider.MapDocument})

	assert.Equal(t, []string{"googlebooks", "openlibrary"}, registry.Sources())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	first := &mocks.MockFetcher{}
	second := &mocks.MockFetcher{}

	registry := NewRegistry()
	registry.Register("openlibrary", Provider{Fetcher: first, Map: provider.MapDocument})
	registry.Register("openlibrary", Provider{Fetcher: second, Map: provider.MapDocument})

	p, ok := registry.Lookup("openlibrary")
	assert.True(t, ok)
	assert.Same(t, second, p.Fetcher)
	assert.Len(t, registry.Sources(), 1)
}
