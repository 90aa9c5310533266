// Package retriever provides document retrieval for the retrieval
// phase of task execution. Documents are policy texts, templates, and
// playbook guidance; results carry relevance scores that become
// grounding references on artifacts.
package retriever

import (
	"context"
	"errors"
)

// ErrNoDocuments is returned when a search runs against an empty index.
var ErrNoDocuments = errors.New("no documents indexed")

// Document is an indexable reference text.
type Document struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Kind       string            `json:"kind"` // policy, template, guidance, benchmark
	CategoryID string            `json:"category_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is one search hit.
type Result struct {
	Document  Document
	Relevance float64 // 0 to 1, higher is closer
}

// Retriever is the retrieval contract used by task execution.
type Retriever interface {
	// Index adds documents to the store. Re-indexing an existing ID
	// replaces it.
	Index(ctx context.Context, docs []Document) error
	// Search returns up to k documents relevant to the query, filtered
	// by metadata when filter is non-nil.
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error)
}
