package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aken1023/llamaindex-faiss-system1/internal/ai"
	"github.com/aken1023/llamaindex-faiss-system1/internal/embedding"
	"github.com/aken1023/llamaindex-faiss-system1/internal/extract"
	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
	"github.com/aken1023/llamaindex-faiss-system1/internal/vectorindex"
)

// previewLen bounds the document body returned with each search result.
const previewLen = 500

var ErrDocumentNotFound = errors.New("document not found")

const (
	eventActionIngest  = "ingest"
	eventActionDelete  = "delete"
	eventActionRebuild = "rebuild"
)

// EventSink receives index audit events. May be nil when no broker is wired.
type EventSink interface {
	Publish(ctx context.Context, event model.IndexEvent) error
}

// DocumentStore persists document rows alongside the on-disk files. May be
// nil when the engine runs without a database.
type DocumentStore interface {
	Create(doc *model.Document) error
	ListByUserID(userID uint) ([]model.Document, error)
	MarkIndexed(id uint, indexed bool) error
	DeleteByStoredFilename(userID uint, storedFilename string) error
	DeleteByUserID(userID uint) error
}

// KnowledgeService is the per-tenant knowledge engine: it owns the document
// tree, drives extraction and indexing, answers searches, and routes
// grounded questions to the generation backend.
//
// Index rebuilds for the same tenant serialize on a per-tenant mutex, so two
// racing ingestions cannot lose each other's documents; reads never take the
// lock and always see the last fully written bundle.
type KnowledgeService struct {
	docsDir  string
	store    *vectorindex.Store
	embedder embedding.Client
	router   *ai.Router
	events   EventSink
	docs     DocumentStore

	tenantLocks sync.Map // map[uint]*sync.Mutex
}

// NewKnowledgeService wires the engine. router may be nil, in which case the
// generation capability is reported unavailable and Ask degrades to a typed
// notice instead of calling any backend. events and docs may be nil.
func NewKnowledgeService(docsDir string, store *vectorindex.Store, embedder embedding.Client, router *ai.Router, events EventSink, docs DocumentStore) *KnowledgeService {
	return &KnowledgeService{
		docsDir:  docsDir,
		store:    store,
		embedder: embedder,
		router:   router,
		events:   events,
		docs:     docs,
	}
}

// GenerationAvailable reports whether a generation backend is wired.
func (s *KnowledgeService) GenerationAvailable() bool {
	return s.router != nil
}

type SearchResult struct {
	Rank     int                      `json:"rank"`
	Score    float32                  `json:"score"`
	Content  string                   `json:"content"`
	Metadata vectorindex.DocumentMeta `json:"metadata"`
}

type AskResult struct {
	Query          string         `json:"query"`
	Answer         string         `json:"answer"`
	Sources        []SearchResult `json:"sources"`
	ProcessingTime float64        `json:"processing_time"`
}

type IngestResult struct {
	StoredFilename string `json:"stored_filename"`
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	Indexed        bool   `json:"indexed"`
}

type StoredDocument struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// IngestAndReindex persists the uploaded bytes under a collision-proof name
// inside the tenant's directory, then rebuilds the tenant's index over the
// full corpus. Storage failure aborts; index failure degrades to "stored but
// not searchable" and is reported through Indexed.
func (s *KnowledgeService) IngestAndReindex(ctx context.Context, userID uint, filename, contentType string, content []byte) (*IngestResult, error) {
	if userID == 0 || strings.TrimSpace(filename) == "" {
		return nil, ErrInvalidInput
	}

	dir := s.tenantDocsDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tenant document dir failed: %w", err)
	}

	storedName := randomHex(8) + "_" + filepath.Base(filename)
	path := filepath.Join(dir, storedName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("write document failed: %w", err)
	}
	logger.Infow("document stored", "user_id", userID, "filename", filename, "stored", storedName)

	// The row exists before the rebuild so the rebuild's flag reconciliation
	// covers it like any other document.
	if s.docs != nil {
		row := &model.Document{
			UserID:           userID,
			OriginalFilename: filepath.Base(filename),
			StoredFilename:   storedName,
			Path:             path,
			Size:             int64(len(content)),
			ContentType:      contentType,
		}
		if err := s.docs.Create(row); err != nil {
			logger.Warnf("record document row failed: %v", err)
		}
	}

	indexErr := s.Reindex(ctx, userID)
	if indexErr != nil && !errors.Is(indexErr, vectorindex.ErrEmptyCorpus) {
		logger.Errorf("reindex after ingest for user %d failed: %v", userID, indexErr)
	}

	indexed := indexErr == nil
	if s.docs != nil {
		if rows, err := s.docs.ListByUserID(userID); err == nil {
			for _, row := range rows {
				if row.StoredFilename == storedName {
					indexed = row.Indexed
					break
				}
			}
		}
	}

	s.publishEvent(ctx, model.IndexEvent{
		UserID:    userID,
		Action:    eventActionIngest,
		Filename:  filename,
		Succeeded: indexed,
	})

	return &IngestResult{
		StoredFilename: storedName,
		Path:           path,
		Size:           int64(len(content)),
		Indexed:        indexed,
	}, nil
}

// Reindex rebuilds the tenant's bundle from every supported file currently
// in the tenant's document directory. Rebuilds for the same tenant
// serialize; an empty extracted corpus removes the bundle so subsequent
// searches see "absent" rather than stale documents.
func (s *KnowledgeService) Reindex(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrInvalidInput
	}

	lock := s.tenantLock(userID)
	lock.Lock()
	defer lock.Unlock()

	documents, metadata := s.loadCorpus(userID)
	if len(documents) == 0 {
		if err := s.store.Remove(userID); err != nil {
			return err
		}
		s.refreshIndexedFlags(userID, nil)
		return vectorindex.ErrEmptyCorpus
	}

	if err := s.store.Build(ctx, userID, documents, metadata); err != nil {
		return err
	}
	s.refreshIndexedFlags(userID, metadata)

	s.publishEvent(ctx, model.IndexEvent{
		UserID:        userID,
		Action:        eventActionRebuild,
		DocumentCount: len(documents),
		Succeeded:     true,
	})
	return nil
}

// refreshIndexedFlags reconciles the Indexed flag on the tenant's document
// rows with what the freshly built bundle contains. A stored file that
// yielded no text keeps its row but stays unindexed.
func (s *KnowledgeService) refreshIndexedFlags(userID uint, metadata []vectorindex.DocumentMeta) {
	if s.docs == nil {
		return
	}
	inBundle := make(map[string]bool, len(metadata))
	for _, meta := range metadata {
		inBundle[meta.Filename] = true
	}
	rows, err := s.docs.ListByUserID(userID)
	if err != nil {
		logger.Warnf("list document rows for user %d failed: %v", userID, err)
		return
	}
	for _, row := range rows {
		if want := inBundle[row.StoredFilename]; want != row.Indexed {
			if err := s.docs.MarkIndexed(row.ID, want); err != nil {
				logger.Warnf("mark document %d indexed=%t failed: %v", row.ID, want, err)
			}
		}
	}
}

// loadCorpus extracts every supported file in the tenant directory. Files
// that yield no text are skipped with a warning; extraction never aborts the
// rebuild.
func (s *KnowledgeService) loadCorpus(userID uint) ([]string, []vectorindex.DocumentMeta) {
	dir := s.tenantDocsDir(userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Errorf("read tenant document dir %s failed: %v", dir, err)
		}
		return nil, nil
	}

	// Deterministic corpus order keeps rebuilds reproducible.
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	var documents []string
	var metadata []vectorindex.DocumentMeta
	for _, entry := range entries {
		if entry.IsDir() || !extract.IsSupported(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content := extract.Text(path)
		if strings.TrimSpace(content) == "" {
			logger.Warnf("document %s of user %d yielded no text", entry.Name(), userID)
			continue
		}
		documents = append(documents, content)
		metadata = append(metadata, vectorindex.DocumentMeta{
			Filename: entry.Name(),
			Path:     path,
			Size:     len(content),
			UserID:   userID,
		})
	}
	return documents, metadata
}

// Search embeds the query and returns the topK most similar documents in
// descending score order. An absent index or topK <= 0 yields an empty
// result; a dimension mismatch is returned as an error distinct from absent.
func (s *KnowledgeService) Search(ctx context.Context, userID uint, query string, topK int) ([]SearchResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	bundle, err := s.store.Load(userID)
	if errors.Is(err, vectorindex.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	hits, err := bundle.Index.Search(vectors[0], topK)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for i, hit := range hits {
		if hit.Index >= len(bundle.Documents) {
			continue
		}
		results = append(results, SearchResult{
			Rank:     i + 1,
			Score:    hit.Score,
			Content:  truncate(bundle.Documents[hit.Index], previewLen),
			Metadata: bundle.Metadata[hit.Index],
		})
	}
	return results, nil
}

// Ask retrieves the topK most relevant documents and has the tenant's
// preferred model answer from them. Absent index, missing generation
// backend, and provider failure all come back as structured results; only a
// malformed tenant id is an error.
func (s *KnowledgeService) Ask(ctx context.Context, userID uint, query string, topK int) (*AskResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	start := time.Now()

	result := &AskResult{Query: query, Sources: []SearchResult{}}

	if !s.GenerationAvailable() {
		result.Answer = "AI generation is currently unavailable. Your documents are stored safely and will become searchable once the capability is restored."
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	sources, err := s.Search(ctx, userID, query, topK)
	if err != nil {
		logger.Errorf("search for user %d failed: %v", userID, err)
		if errors.Is(err, vectorindex.ErrDimensionMismatch) {
			result.Answer = "Your index was built with a different embedding model. Re-upload or delete a document to trigger a rebuild."
		} else {
			result.Answer = fmt.Sprintf("The query could not be processed: %v. Please retry later.", err)
		}
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	if len(sources) == 0 {
		result.Answer = "Sorry, no relevant information was found in your documents. Please upload some documents first."
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	contextDocs := make([]string, len(sources))
	for i, src := range sources {
		contextDocs[i] = src.Content
	}

	result.Answer = s.router.Answer(ctx, userID, query, contextDocs)
	result.Sources = sources
	result.ProcessingTime = time.Since(start).Seconds()
	return result, nil
}

// DeleteDocument removes one stored file and rebuilds the tenant's index.
// Deleting the last document leaves the tenant with no bundle, so searches
// return empty from then on.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, userID uint, storedFilename string) error {
	if userID == 0 || storedFilename == "" || storedFilename != filepath.Base(storedFilename) {
		return ErrInvalidInput
	}

	path := filepath.Join(s.tenantDocsDir(userID), storedFilename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("remove document failed: %w", err)
	}

	if s.docs != nil {
		if err := s.docs.DeleteByStoredFilename(userID, storedFilename); err != nil {
			logger.Warnf("delete document row failed: %v", err)
		}
	}

	err := s.Reindex(ctx, userID)
	if err != nil && !errors.Is(err, vectorindex.ErrEmptyCorpus) {
		logger.Errorf("reindex after delete for user %d failed: %v", userID, err)
	}

	s.publishEvent(ctx, model.IndexEvent{
		UserID:    userID,
		Action:    eventActionDelete,
		Filename:  storedFilename,
		Succeeded: err == nil || errors.Is(err, vectorindex.ErrEmptyCorpus),
	})
	return nil
}

// ListDocuments returns the tenant's document records. Without a database it
// falls back to the on-disk view.
func (s *KnowledgeService) ListDocuments(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if s.docs == nil {
		stored, err := s.ListStoredDocuments(userID)
		if err != nil {
			return nil, err
		}
		rows := make([]model.Document, 0, len(stored))
		for _, doc := range stored {
			rows = append(rows, model.Document{
				UserID:         userID,
				StoredFilename: doc.Filename,
				Size:           doc.Size,
			})
		}
		return rows, nil
	}
	return s.docs.ListByUserID(userID)
}

// ListStoredDocuments lists the tenant's files as stored on disk.
func (s *KnowledgeService) ListStoredDocuments(userID uint) ([]StoredDocument, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	entries, err := os.ReadDir(s.tenantDocsDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return []StoredDocument{}, nil
		}
		return nil, fmt.Errorf("read tenant document dir failed: %w", err)
	}

	docs := make([]StoredDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docs = append(docs, StoredDocument{
			Filename: entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return docs, nil
}

// PurgeTenant deletes everything the engine holds for a tenant: the document
// tree and the index bundle.
func (s *KnowledgeService) PurgeTenant(userID uint) error {
	if userID == 0 {
		return ErrInvalidInput
	}

	lock := s.tenantLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.tenantDocsDir(userID)); err != nil {
		return fmt.Errorf("remove tenant documents failed: %w", err)
	}
	if err := s.store.Remove(userID); err != nil {
		return err
	}
	if s.docs != nil {
		if err := s.docs.DeleteByUserID(userID); err != nil {
			logger.Warnf("delete document rows failed: %v", err)
		}
	}
	logger.Infow("tenant data purged", "user_id", userID)
	return nil
}

func (s *KnowledgeService) tenantDocsDir(userID uint) string {
	return filepath.Join(s.docsDir, fmt.Sprintf("user_%d", userID))
}

func (s *KnowledgeService) tenantLock(userID uint) *sync.Mutex {
	lock, _ := s.tenantLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *KnowledgeService) publishEvent(ctx context.Context, event model.IndexEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warnf("publish index event failed: %v", err)
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
