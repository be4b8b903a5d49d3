// Package vectorindex builds, persists, and loads per-tenant index bundles.
//
// A bundle is three co-located artifacts under the tenant's index directory:
// the flat vector index, the ordered document bodies, and parallel metadata.
// Position i in the index corresponds to position i in both sequences.
package vectorindex

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aken1023/llamaindex-faiss-system1/internal/embedding"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
)

const (
	indexFile     = "index.gob"
	documentsFile = "documents.gob"
	metadataFile  = "metadata.gob"
)

var (
	// ErrAbsent marks a tenant with no readable bundle. A partially written
	// or unreadable bundle is reported as absent, never partially loaded.
	ErrAbsent = errors.New("index bundle absent")

	// ErrDimensionMismatch marks a bundle built with a different embedding
	// model; it is fatal for search until the tenant's corpus is rebuilt.
	ErrDimensionMismatch = errors.New("index dimension mismatch")

	// ErrEmptyCorpus marks a build attempt with no documents.
	ErrEmptyCorpus = errors.New("no documents to index")
)

// DocumentMeta describes one indexed document, parallel to the body sequence.
type DocumentMeta struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int    `json:"size"`
	UserID   uint   `json:"user_id"`
}

// Bundle is one tenant's searchable corpus at a point in time.
type Bundle struct {
	Index     *FlatIndex
	Documents []string
	Metadata  []DocumentMeta
}

// Store owns the on-disk index tree: one subdirectory per tenant, each
// holding exactly the three bundle artifacts.
type Store struct {
	baseDir  string
	embedder embedding.Client
}

func NewStore(baseDir string, embedder embedding.Client) *Store {
	return &Store{
		baseDir:  baseDir,
		embedder: embedder,
	}
}

func (s *Store) tenantDir(userID uint) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("user_%d", userID))
}

// Build embeds every document, constructs a fresh flat index, and replaces
// the tenant's bundle. The three artifacts are written to a fresh version
// directory and the tenant pointer is retargeted at it, so readers see
// either the old complete bundle or the new one, never a mix and never a
// transient absence. On failure the previous bundle stays untouched.
func (s *Store) Build(ctx context.Context, userID uint, documents []string, metadata []DocumentMeta) error {
	if len(documents) == 0 {
		return ErrEmptyCorpus
	}
	if len(documents) != len(metadata) {
		return fmt.Errorf("documents and metadata length mismatch: %d vs %d", len(documents), len(metadata))
	}

	vectors, err := s.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed corpus failed: %w", err)
	}

	index := NewFlatIndex(s.embedder.Dimension())
	if err := index.Add(vectors); err != nil {
		return fmt.Errorf("build flat index failed: %w", err)
	}

	if err := s.writeBundle(userID, &Bundle{Index: index, Documents: documents, Metadata: metadata}); err != nil {
		return err
	}

	logger.Infow("index bundle built", "user_id", userID, "documents", len(documents))
	return nil
}

// Load reads the tenant's bundle. Missing or unreadable artifacts yield
// ErrAbsent; a bundle whose vectors do not match the configured embedding
// dimension yields ErrDimensionMismatch.
func (s *Store) Load(userID uint) (*Bundle, error) {
	dir := s.resolveDir(userID)

	var index FlatIndex
	if err := readGob(filepath.Join(dir, indexFile), &index); err != nil {
		return nil, ErrAbsent
	}
	var documents []string
	if err := readGob(filepath.Join(dir, documentsFile), &documents); err != nil {
		return nil, ErrAbsent
	}
	var metadata []DocumentMeta
	if err := readGob(filepath.Join(dir, metadataFile), &metadata); err != nil {
		return nil, ErrAbsent
	}

	if len(documents) != index.Len() || len(metadata) != index.Len() {
		logger.Errorf("bundle for user %d has unequal artifact lengths", userID)
		return nil, ErrAbsent
	}
	if index.Dimension != s.embedder.Dimension() {
		return nil, fmt.Errorf("%w: bundle built with dimension %d, engine configured for %d",
			ErrDimensionMismatch, index.Dimension, s.embedder.Dimension())
	}

	return &Bundle{Index: &index, Documents: documents, Metadata: metadata}, nil
}

// Remove deletes the tenant's bundle pointer and every version directory,
// returning the tenant to the absent state. Called when a tenant's last
// document is removed or on purge.
func (s *Store) Remove(userID uint) error {
	if err := os.RemoveAll(s.tenantDir(userID)); err != nil {
		return fmt.Errorf("remove index bundle failed: %w", err)
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan index base dir failed: %w", err)
	}
	prefix := fmt.Sprintf("user_%d.v", userID)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix) {
			if err := os.RemoveAll(filepath.Join(s.baseDir, entry.Name())); err != nil {
				return fmt.Errorf("remove bundle version failed: %w", err)
			}
		}
	}
	return nil
}

// resolveDir follows the tenant pointer to the live version directory. A
// plain directory from an older layout is read in place.
func (s *Store) resolveDir(userID uint) string {
	dir := s.tenantDir(userID)
	target, err := os.Readlink(dir)
	if err != nil {
		return dir
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.baseDir, target)
	}
	return target
}

// writeBundle writes the three artifacts into a fresh version directory and
// retargets the tenant pointer at it with a single rename. The immediately
// previous version survives one more build so a reader that resolved the
// pointer just before the swap can still finish its reads.
func (s *Store) writeBundle(userID uint, bundle *Bundle) error {
	dir := s.tenantDir(userID)
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create index base dir failed: %w", err)
	}

	versionDir, err := os.MkdirTemp(s.baseDir, fmt.Sprintf("user_%d.v", userID))
	if err != nil {
		return fmt.Errorf("create bundle version dir failed: %w", err)
	}
	if err := writeGob(filepath.Join(versionDir, indexFile), bundle.Index); err != nil {
		os.RemoveAll(versionDir)
		return err
	}
	if err := writeGob(filepath.Join(versionDir, documentsFile), bundle.Documents); err != nil {
		os.RemoveAll(versionDir)
		return err
	}
	if err := writeGob(filepath.Join(versionDir, metadataFile), bundle.Metadata); err != nil {
		os.RemoveAll(versionDir)
		return err
	}

	previous, _ := os.Readlink(dir)

	// A plain directory from an older layout blocks the pointer rename; move
	// it into the versioned namespace so it is kept one generation and then
	// pruned like any stale version.
	if info, err := os.Lstat(dir); err == nil && info.Mode()&os.ModeSymlink == 0 {
		legacy := versionDir + "-prev"
		if err := os.Rename(dir, legacy); err != nil {
			os.RemoveAll(versionDir)
			return fmt.Errorf("stage legacy bundle failed: %w", err)
		}
		previous = filepath.Base(legacy)
	}

	linkTmp := versionDir + ".ln"
	if err := os.Symlink(filepath.Base(versionDir), linkTmp); err != nil {
		os.RemoveAll(versionDir)
		return fmt.Errorf("stage bundle pointer failed: %w", err)
	}
	if err := os.Rename(linkTmp, dir); err != nil {
		os.Remove(linkTmp)
		os.RemoveAll(versionDir)
		return fmt.Errorf("install bundle pointer failed: %w", err)
	}

	s.pruneVersions(userID, filepath.Base(versionDir), previous)
	return nil
}

// pruneVersions removes the tenant's version directories except the ones in
// keep. Pruning is best effort; a leftover directory is retried on the next
// build.
func (s *Store) pruneVersions(userID uint, keep ...string) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}
	prefix := fmt.Sprintf("user_%d.v", userID)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		kept := false
		for _, k := range keep {
			if k != "" && name == k {
				kept = true
				break
			}
		}
		if !kept {
			_ = os.RemoveAll(filepath.Join(s.baseDir, name))
		}
	}
}

func writeGob(path string, value interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact %s failed: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(value); err != nil {
		return fmt.Errorf("encode artifact %s failed: %w", filepath.Base(path), err)
	}
	return nil
}

func readGob(path string, value interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(value)
}
