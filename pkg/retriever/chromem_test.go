package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEmptyIndex(t *testing.T) {
	r := NewChromemRetriever()
	_, err := r.Search(context.Background(), "anything", 3, nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestIndexAndSearch(t *testing.T) {
	r := NewChromemRetriever()
	ctx := context.Background()
	require.NoError(t, IndexBuiltinCorpus(ctx, r))

	results, err := r.Search(ctx, "request for proposal evaluation criteria pricing", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The RFP template should rank first for an RFP-shaped query.
	assert.Equal(t, "DOC-TMPL-RFP", results[0].Document.ID)
	assert.Positive(t, results[0].Relevance)
}

func TestSearchWithKindFilter(t *testing.T) {
	r := NewChromemRetriever()
	ctx := context.Background()
	require.NoError(t, IndexBuiltinCorpus(ctx, r))

	results, err := r.Search(ctx, "supplier risk sourcing pathway", 5, map[string]string{"kind": "policy"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.Equal(t, "policy", res.Document.Kind)
	}
}

func TestSearchValidatesInput(t *testing.T) {
	r := NewChromemRetriever()
	_, err := r.Search(context.Background(), "", 3, nil)
	assert.Error(t, err)

	_, err = r.Search(context.Background(), "query", 0, nil)
	assert.Error(t, err)
}

func TestIndexRequiresIDs(t *testing.T) {
	r := NewChromemRetriever()
	err := r.Index(context.Background(), []Document{{Title: "no id"}})
	assert.Error(t, err)
}

func TestHashEmbedDeterministic(t *testing.T) {
	a := hashEmbed("negotiation leverage benchmark")
	b := hashEmbed("negotiation leverage benchmark")
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.001)
}
