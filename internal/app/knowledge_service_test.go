package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aken1023/llamaindex-faiss-system1/internal/ai"
	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
	"github.com/aken1023/llamaindex-faiss-system1/internal/vectorindex"
)

// keywordEmbedder maps each text onto fixed topic axes, so similarity is
// exact keyword overlap and ranking in tests is fully deterministic.
type keywordEmbedder struct{}

var topicAxes = []string{"golang", "pasta", "music"}

func (keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(topicAxes)+1)
		matched := false
		for axis, keyword := range topicAxes {
			if strings.Contains(strings.ToLower(text), keyword) {
				v[axis] = 1
				matched = true
			}
		}
		if !matched {
			v[len(topicAxes)] = 1
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (keywordEmbedder) Dimension() int {
	return len(topicAxes) + 1
}

func newTestEngine(t *testing.T, router *ai.Router) *KnowledgeService {
	t.Helper()
	embedder := keywordEmbedder{}
	store := vectorindex.NewStore(t.TempDir(), embedder)
	return NewKnowledgeService(t.TempDir(), store, embedder, router, nil, nil)
}

func ingest(t *testing.T, engine *KnowledgeService, userID uint, filename, content string) *IngestResult {
	t.Helper()
	result, err := engine.IngestAndReindex(context.Background(), userID, filename, "text/plain", []byte(content))
	require.NoError(t, err)
	require.True(t, result.Indexed)
	return result
}

func TestSearchFindsUploadedDocument(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "notes.txt", "golang concurrency patterns")

	results, err := engine.Search(context.Background(), 1, "golang channels", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "golang concurrency patterns", results[0].Content)
	assert.Equal(t, uint(1), results[0].Metadata.UserID)
}

func TestSearchTenantsAreIsolated(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "go.txt", "golang concurrency patterns")
	ingest(t, engine, 2, "food.txt", "pasta carbonara recipe")

	results, err := engine.Search(context.Background(), 1, "pasta recipe", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Content, "pasta")
	}

	results, err = engine.Search(context.Background(), 2, "pasta recipe", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "pasta")
}

func TestSearchRanksNewDocumentAfterRebuild(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "go.txt", "golang concurrency patterns")
	ingest(t, engine, 1, "food.txt", "pasta carbonara recipe")

	results, err := engine.Search(context.Background(), 1, "pasta", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, "pasta")
	assert.Equal(t, 1, results[0].Rank)
}

func TestSearchRespectsTopK(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "a.txt", "golang basics")
	ingest(t, engine, 1, "b.txt", "golang advanced")
	ingest(t, engine, 1, "c.txt", "golang internals")

	results, err := engine.Search(context.Background(), 1, "golang", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = engine.Search(context.Background(), 1, "golang", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchWithoutIndexReturnsEmpty(t *testing.T) {
	engine := newTestEngine(t, nil)

	results, err := engine.Search(context.Background(), 99, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRejectsZeroUserID(t *testing.T) {
	engine := newTestEngine(t, nil)
	_, err := engine.Search(context.Background(), 0, "anything", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchTruncatesLongContent(t *testing.T) {
	engine := newTestEngine(t, nil)
	long := "golang " + strings.Repeat("x", 600)
	ingest(t, engine, 1, "long.txt", long)

	results, err := engine.Search(context.Background(), 1, "golang", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.HasSuffix(results[0].Content, "..."))
	assert.Len(t, []rune(results[0].Content), 503)
}

func TestDeleteLastDocumentEmptiesSearch(t *testing.T) {
	engine := newTestEngine(t, nil)
	result := ingest(t, engine, 1, "only.txt", "golang concurrency")

	require.NoError(t, engine.DeleteDocument(context.Background(), 1, result.StoredFilename))

	results, err := engine.Search(context.Background(), 1, "golang", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteDocumentValidation(t *testing.T) {
	engine := newTestEngine(t, nil)

	err := engine.DeleteDocument(context.Background(), 1, "missing.txt")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = engine.DeleteDocument(context.Background(), 1, "../escape.txt")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPurgeTenant(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "doc.txt", "golang concurrency")

	require.NoError(t, engine.PurgeTenant(1))

	docs, err := engine.ListStoredDocuments(1)
	require.NoError(t, err)
	assert.Empty(t, docs)

	results, err := engine.Search(context.Background(), 1, "golang", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListStoredDocuments(t *testing.T) {
	engine := newTestEngine(t, nil)
	ingest(t, engine, 1, "a.txt", "golang one")
	ingest(t, engine, 1, "b.txt", "golang two")

	docs, err := engine.ListStoredDocuments(1)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestAskWithoutGenerationBackend(t *testing.T) {
	engine := newTestEngine(t, nil)
	assert.False(t, engine.GenerationAvailable())

	result, err := engine.Ask(context.Background(), 1, "anything", 5)
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "unavailable")
	assert.Empty(t, result.Sources)
}

func TestAskWithoutDocuments(t *testing.T) {
	router := ai.NewRouter(nil, config.GenerationConfig{})
	engine := newTestEngine(t, router)

	result, err := engine.Ask(context.Background(), 1, "anything", 5)
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "no relevant information")
	assert.Empty(t, result.Sources)
	assert.GreaterOrEqual(t, result.ProcessingTime, 0.0)
}

func TestAskGeneratesGroundedAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":"channels are typed conduits"}}]}`)
	}))
	defer server.Close()

	router := ai.NewRouter(nil, config.GenerationConfig{
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4",
		DefaultBaseURL:  server.URL,
		ContextDocs:     2,
	})
	t.Setenv("OPENAI_API_KEY", "test-key")

	engine := newTestEngine(t, router)
	ingest(t, engine, 1, "go.txt", "golang channels explained")

	result, err := engine.Ask(context.Background(), 1, "what are golang channels?", 5)
	require.NoError(t, err)
	assert.Equal(t, "channels are typed conduits", result.Answer)
	require.NotEmpty(t, result.Sources)
	assert.Contains(t, result.Sources[0].Content, "golang channels")
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t, nil)

	_, err := engine.IngestAndReindex(context.Background(), 0, "a.txt", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.IngestAndReindex(context.Background(), 1, "  ", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// fakeDocumentStore keeps document rows in memory with the same contract as
// the gorm repository.
type fakeDocumentStore struct {
	nextID uint
	rows   []model.Document
}

func (f *fakeDocumentStore) Create(doc *model.Document) error {
	f.nextID++
	doc.ID = f.nextID
	f.rows = append(f.rows, *doc)
	return nil
}

func (f *fakeDocumentStore) ListByUserID(userID uint) ([]model.Document, error) {
	var list []model.Document
	for _, row := range f.rows {
		if row.UserID == userID {
			list = append(list, row)
		}
	}
	return list, nil
}

func (f *fakeDocumentStore) MarkIndexed(id uint, indexed bool) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Indexed = indexed
		}
	}
	return nil
}

func (f *fakeDocumentStore) DeleteByStoredFilename(userID uint, storedFilename string) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.UserID != userID || row.StoredFilename != storedFilename {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeDocumentStore) DeleteByUserID(userID uint) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.UserID != userID {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

func newTestEngineWithDocs(t *testing.T) (*KnowledgeService, *fakeDocumentStore) {
	t.Helper()
	embedder := keywordEmbedder{}
	store := vectorindex.NewStore(t.TempDir(), embedder)
	docs := &fakeDocumentStore{}
	return NewKnowledgeService(t.TempDir(), store, embedder, nil, nil, docs), docs
}

func TestRebuildRefreshesIndexedFlags(t *testing.T) {
	engine, docs := newTestEngineWithDocs(t)

	good := ingest(t, engine, 1, "go.txt", "golang concurrency patterns")

	// An upload that extracts to nothing is stored but stays unindexed.
	empty, err := engine.IngestAndReindex(context.Background(), 1, "blank.txt", "text/plain", []byte("   "))
	require.NoError(t, err)
	assert.False(t, empty.Indexed)

	rows, err := docs.ListByUserID(1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byStored := map[string]bool{}
	for _, row := range rows {
		byStored[row.StoredFilename] = row.Indexed
	}
	assert.True(t, byStored[good.StoredFilename])
	assert.False(t, byStored[empty.StoredFilename])
}

func TestDeleteLastDocumentClearsIndexedFlags(t *testing.T) {
	engine, docs := newTestEngineWithDocs(t)
	result := ingest(t, engine, 1, "go.txt", "golang concurrency patterns")

	require.NoError(t, engine.DeleteDocument(context.Background(), 1, result.StoredFilename))

	rows, err := docs.ListByUserID(1)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPurgeTenantDeletesDocumentRows(t *testing.T) {
	engine, docs := newTestEngineWithDocs(t)
	ingest(t, engine, 1, "go.txt", "golang concurrency patterns")
	ingest(t, engine, 2, "food.txt", "pasta carbonara recipe")

	require.NoError(t, engine.PurgeTenant(1))

	rows, err := docs.ListByUserID(1)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = docs.ListByUserID(2)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.True(t, rows[0].Indexed)
}
