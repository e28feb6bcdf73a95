// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package index

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/index/tokenize"
)

// Config configures an Engine. It is derived from
// internal/config.EventHandlerConfig by the daemon wiring.
type Config struct {
	PersistentDir          string
	VolatileFlushInterval  time.Duration
	PersistentFlushInterval time.Duration
	FileTypeMapping        map[string]string
}

// Engine is the persistent, concurrently-writable inverted index of
// spec.md §4.3. Writes land in an in-memory volatile tier first and are
// periodically merged into the on-disk persistent tier (spec.md
// "Durability"); queries run against an alias over both tiers so a write
// is visible to readers the instant it lands, matching spec.md §5's
// "readers wait only for short critical sections".
//
// Shape grounded on _examples/other_examples/7af524ed_c12simple-cells__
// common-dao-bleve-indexer.go.go (Indexer wraps a bleve.IndexAlias over
// multiple bleve.Index instances, with a background flush).
type Engine struct {
	log *zap.SugaredLogger
	cfg Config

	tok *tokenize.Tokenizer

	persistent bleve.Index
	volatile   bleve.Index
	alias      bleve.IndexAlias

	mu      sync.RWMutex
	staged  map[string]bleveDoc // doc id -> doc, staged in volatile pending merge
	session string              // correlates one engine lifetime's log lines

	// StaleHook is invoked (outside the engine's own lock) whenever
	// Search discovers a document whose FullPath no longer exists on
	// disk, so the caller can resubmit it as a Remove job (spec.md §4.3
	// "Self-healing"). Wired by the daemon to the job batcher to avoid an
	// import cycle between index and jobqueue.
	StaleHook func(path string)
}

// Open builds (or reopens) the persistent index at cfg.PersistentDir and
// a fresh in-memory volatile tier, and wires both into a search alias.
func Open(log *zap.SugaredLogger, cfg Config) (*Engine, error) {
	tok, err := tokenize.New()
	if err != nil {
		return nil, fmt.Errorf("index: loading tokenizer: %w", err)
	}

	im := buildMapping()

	persistent, err := openOrCreate(cfg.PersistentDir, im)
	if err != nil {
		return nil, fmt.Errorf("index: opening persistent index: %w", err)
	}

	volatile, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("index: creating volatile index: %w", err)
	}

	alias := bleve.NewIndexAlias(persistent, volatile)

	return &Engine{
		log:        log,
		cfg:        cfg,
		tok:        tok,
		persistent: persistent,
		volatile:   volatile,
		alias:      alias,
		staged:     make(map[string]bleveDoc),
		session:    uuid.NewString(),
	}, nil
}

func openOrCreate(dir string, im mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(dir)
	if err == nil {
		return idx, nil
	}
	return bleve.NewUsing(dir, im, bleve.Config.DefaultIndexType, bleve.Config.DefaultKVStore, nil)
}

// buildMapping defines the document mapping: tokens/pinyin use a plain
// unicode+lowercase analyzer (Han segmentation and pinyin romanization
// already happened upstream in internal/index/tokenize), and
// full_path/file_name use bleve's built-in "keyword" analyzer so prefix
// and wildcard queries see the exact stored bytes.
func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	_ = im.AddCustomAnalyzer("pathtoken", map[string]interface{}{
		"type":          "custom",
		"tokenizer":     "unicode",
		"token_filters": []string{"to_lower"},
	})

	tokenField := bleve.NewTextFieldMapping()
	tokenField.Analyzer = "pathtoken"
	tokenField.Store = true

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	keywordField.Store = true

	plainField := bleve.NewTextFieldMapping()
	plainField.Analyzer = "keyword"
	plainField.Store = true
	plainField.Index = false

	boolField := bleve.NewBooleanFieldMapping()
	boolField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("tokens", tokenField)
	doc.AddFieldMappingsAt("pinyin", tokenField)
	doc.AddFieldMappingsAt("full_path", keywordField)
	doc.AddFieldMappingsAt("file_name", keywordField)
	doc.AddFieldMappingsAt("parent_dir", plainField)
	doc.AddFieldMappingsAt("file_ext", plainField)
	doc.AddFieldMappingsAt("file_type", plainField)
	doc.AddFieldMappingsAt("modify_time_str", plainField)
	doc.AddFieldMappingsAt("file_size_str", plainField)
	doc.AddFieldMappingsAt("is_hidden", boolField)

	im.DefaultMapping = doc
	return im
}

// docID derives a stable bleve document id from a normalized full path.
func docID(fullPath string) string {
	return normalizePath(fullPath)
}

func normalizePath(p string) string {
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func toBleveDoc(d Document, tok *tokenize.Tokenizer) bleveDoc {
	tokens := tok.Tokens(d.FileName)
	pinyin := tok.Pinyin(d.FileName)
	return bleveDoc{
		FullPath:      d.FullPath,
		FileName:      strings.ToLower(d.FileName),
		Tokens:        strings.Join(append(tokens, pinyin...), " "),
		Pinyin:        strings.Join(pinyin, " "),
		ParentDir:     d.ParentDir,
		FileExt:       d.FileExt,
		FileType:      d.FileType,
		ModifyTimeStr: d.ModifyTimeStr,
		FileSizeStr:   d.FileSizeStr,
		IsHidden:      d.IsHidden,
	}
}

// Add indexes path, or updates the mutable fields of an existing document
// with the same FullPath (spec.md §4.3: "idempotent; inserting an
// existing full_path updates mutable fields ... but must not create a
// duplicate").
func (e *Engine) Add(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("index: stat %s: %w", path, err)
	}

	doc := buildDocument(path, info, e.cfg.FileTypeMapping)
	bd := toBleveDoc(doc, e.tok)
	id := docID(doc.FullPath)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Remove any stale copy from the persistent tier first so the alias
	// never returns two hits for one FullPath while the doc is staged in
	// the volatile tier (spec.md §3 FullPath uniqueness invariant).
	_ = e.persistent.Delete(id)

	if err := e.volatile.Index(id, bd); err != nil {
		return fmt.Errorf("index: volatile index %s: %w", path, err)
	}
	e.staged[id] = bd
	return nil
}

// Remove deletes the document for path, if any is present, from both
// tiers. Returns success even if the path was never indexed (spec.md
// §4.3 "removes the exact path; returns success even if not present").
func (e *Engine) Remove(path string) error {
	id := docID(normalizePath(path))

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.staged, id)
	if err := e.volatile.Delete(id); err != nil {
		return fmt.Errorf("index: volatile delete %s: %w", path, err)
	}
	if err := e.persistent.Delete(id); err != nil {
		return fmt.Errorf("index: persistent delete %s: %w", path, err)
	}
	return nil
}

// Update is semantically remove(src); add(dst). Each half takes the
// engine's write lock on its own; src is removed before dst is added, so
// no query can observe both src and dst at once (spec.md §4.3, §5
// "Rename coalescing").
func (e *Engine) Update(src, dst string) error {
	if err := e.Remove(src); err != nil {
		return err
	}
	return e.Add(dst)
}

// DocumentExists reports whether path is currently indexed. exact is
// accepted for API-contract parity with spec.md §4.3 but both modes
// perform the same exact-id lookup, since FullPath is the engine's sole
// identity key.
func (e *Engine) DocumentExists(path string, exact bool) bool {
	_ = exact
	id := docID(normalizePath(path))

	e.mu.RLock()
	if _, staged := e.staged[id]; staged {
		e.mu.RUnlock()
		return true
	}
	e.mu.RUnlock()

	doc, err := e.persistent.Document(id)
	return err == nil && doc != nil
}

// FlushVolatile merges every currently staged document into the
// persistent tier and swaps in a fresh, empty volatile index, run on the
// commit_volatile_index_timeout_ms cadence and once more during clean
// shutdown (spec.md §4.3 "Durability").
func (e *Engine) FlushVolatile() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.staged) == 0 {
		return nil
	}

	batch := e.persistent.NewBatch()
	for id, bd := range e.staged {
		if err := batch.Index(id, bd); err != nil {
			return fmt.Errorf("index: staging batch entry %s: %w", id, err)
		}
	}
	if err := e.persistent.Batch(batch); err != nil {
		return fmt.Errorf("index: committing persistent batch: %w", err)
	}

	fresh, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return fmt.Errorf("index: creating fresh volatile index: %w", err)
	}
	old := e.volatile
	e.alias.Swap([]bleve.Index{fresh}, []bleve.Index{old})
	e.volatile = fresh
	_ = old.Close()

	e.staged = make(map[string]bleveDoc)
	if e.log != nil {
		e.log.Debugw("flushed volatile index to persistent tier", "session", e.session)
	}
	return nil
}

// FlushPersistent is the hook for the commit_persistent_index_timeout_ms
// tick. It performs no work of its own: the persistent tier is already
// committed by each Index/Batch call made against it.
func (e *Engine) FlushPersistent() error {
	// scorch commits on every batch/Index call already; nothing further
	// is needed here beyond giving callers a stable place to hang this
	// cadence, matching the two distinct timeouts spec.md §4.3 calls for.
	return nil
}

// Close flushes the volatile tier and closes both underlying indexes
// (spec.md §5 "flush volatile index" on clean shutdown).
func (e *Engine) Close() error {
	if err := e.FlushVolatile(); err != nil {
		return err
	}
	if err := e.volatile.Close(); err != nil {
		return err
	}
	return e.persistent.Close()
}

// IndexDirectory returns the persistent index directory, exposed to the
// control surface as cache_dir() (spec.md §6).
func (e *Engine) IndexDirectory() string {
	return e.cfg.PersistentDir
}
