package pipelineworker

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Document is one retrieved source.
type Document struct {
	ID            string
	Title         string
	URL           string
	Source        string
	CitedBy       int
	PublishedYear int
}

// SearchProvider retrieves documents for a query. Production
// deployments adapt a real search backend; MemProvider serves a fixed
// corpus deterministically.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// MemProvider is the default in-memory SearchProvider. Its corpus is
// fixed, so identical queries always return identical batches, which
// keeps validation scores reproducible.
type MemProvider struct {
	mu     sync.Mutex
	corpus []Document
}

// NewMemProvider returns a provider seeded with a small mixed-tier
// corpus.
func NewMemProvider() *MemProvider {
	return &MemProvider{corpus: []Document{
		{ID: "doc-1", Title: "Adaptive Scheduling in Distributed Workers", URL: "https://journals.example.org/asdw", Source: "journal", CitedBy: 420, PublishedYear: 2021},
		{ID: "doc-2", Title: "State Machines for Fault-Tolerant Pipelines", URL: "https://conf.example.org/smftp", Source: "conference", CitedBy: 188, PublishedYear: 2022},
		{ID: "doc-3", Title: "The Worker Pattern", URL: "https://books.example.org/twp", Source: "book", CitedBy: 950, PublishedYear: 2019},
		{ID: "doc-4", Title: "Backoff Strategies Revisited", URL: "https://arxiv.example.org/bsr", Source: "preprint", CitedBy: 34, PublishedYear: 2024},
		{ID: "doc-5", Title: "Queueing Under Pressure", URL: "https://blog.example.org/qup", Source: "web", CitedBy: 12, PublishedYear: 2023},
		{ID: "doc-6", Title: "Recovery Semantics in Long-Running Systems", URL: "https://journals.example.org/rsls", Source: "journal", CitedBy: 260, PublishedYear: 2020},
	}}
}

var _ SearchProvider = (*MemProvider)(nil)

// Add extends the corpus. Tests use it to shape score distributions.
func (p *MemProvider) Add(docs ...Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corpus = append(p.corpus, docs...)
}

// Search matches the query case-insensitively against titles; the
// special query "*" returns the whole corpus. A limit of zero means
// unlimited.
func (p *MemProvider) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	needle := strings.ToLower(query)
	var out []Document
	for _, doc := range p.corpus {
		if query != "*" && !strings.Contains(strings.ToLower(doc.Title), needle) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
