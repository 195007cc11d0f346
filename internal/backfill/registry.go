package backfill

import (
	"context"
	"sort"

	"github.com/openshelf/openshelf/internal/books"
	"github.com/openshelf/openshelf/internal/provider"
)

// Fetcher retrieves a provider document for an external identifier. A nil
// document with a nil error means the record does not exist at the provider;
// errors are reserved for transport and service failures.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID string) (*provider.Document, error)
}

// MapperFunc converts a provider document into a book aggregate. A nil result
// signals invalid or unmappable data.
type MapperFunc func(doc *provider.Document) *books.Book

// Provider pairs the fetch client and mapper for one external source
type Provider struct {
	Fetcher Fetcher
	Map     MapperFunc
}

// Registry maps source identifiers to their fetch/map capabilities. Looking
// up an unregistered source is a first-class unsupported outcome, not a
// default branch.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces the capabilities for a source
func (r *Registry) Register(source string, p Provider) {
	r.providers[source] = p
}

// Lookup returns the capabilities for a source
func (r *Registry) Lookup(source string) (Provider, bool) {
	p, ok := r.providers[source]
	return p, ok
}

// Sources returns the registered source identifiers, sorted
func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.providers))
	for source := range r.providers {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
