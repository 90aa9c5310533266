package retriever

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"caseflow/pkg/logx"
)

const (
	defaultCollection = "caseflow_docs"
	embeddingDim      = 128
)

// ChromemRetriever implements Retriever on an embedded chromem-go
// database. Embeddings are produced locally by hashed bag-of-words, so
// retrieval works offline and deterministically; swap the embedding
// func for a real embedder when semantic quality matters.
type ChromemRetriever struct {
	db     *chromem.DB
	logger *logx.Logger
}

// NewChromemRetriever creates an in-memory retriever.
func NewChromemRetriever() *ChromemRetriever {
	return &ChromemRetriever{
		db:     chromem.NewDB(),
		logger: logx.NewLogger("retriever"),
	}
}

// NewPersistentChromemRetriever creates a retriever persisted under dir.
func NewPersistentChromemRetriever(dir string) (*ChromemRetriever, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistent retriever: %w", err)
	}
	return &ChromemRetriever{db: db, logger: logx.NewLogger("retriever")}, nil
}

func embeddingFunc() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return hashEmbed(text), nil
	}
}

// hashEmbed maps lowercase terms into a fixed-size vector by FNV hash
// and L2-normalizes. Shared terms between query and document produce
// cosine similarity without any model.
func hashEmbed(text string) []float32 {
	vec := make([]float32, embeddingDim)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		term = strings.Trim(term, ".,;:!?()[]\"'")
		if len(term) < 3 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func (r *ChromemRetriever) collection() (*chromem.Collection, error) {
	c, err := r.db.GetOrCreateCollection(defaultCollection, nil, embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	return c, nil
}

// Index implements Retriever.
func (r *ChromemRetriever) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	c, err := r.collection()
	if err != nil {
		return err
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			return fmt.Errorf("document %d (%q) has no ID", i, doc.Title)
		}
		metadata := map[string]string{
			"title": doc.Title,
			"kind":  doc.Kind,
		}
		if doc.CategoryID != "" {
			metadata["category_id"] = doc.CategoryID
		}
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadata,
			Embedding: hashEmbed(doc.Title + " " + doc.Content),
		})
	}

	if err := c.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}
	r.logger.Debug("indexed %d documents", len(docs))
	return nil
}

// Search implements Retriever.
func (r *ChromemRetriever) Search(ctx context.Context, query string, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	c, err := r.collection()
	if err != nil {
		return nil, err
	}

	count := c.Count()
	if count == 0 {
		return nil, ErrNoDocuments
	}
	if k > count {
		k = count
	}

	hits, err := c.Query(ctx, query, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		doc := Document{
			ID:      h.ID,
			Title:   h.Metadata["title"],
			Content: h.Content,
			Kind:    h.Metadata["kind"],
		}
		if cat, ok := h.Metadata["category_id"]; ok {
			doc.CategoryID = cat
		}
		results = append(results, Result{Document: doc, Relevance: float64(h.Similarity)})
	}
	return results, nil
}
