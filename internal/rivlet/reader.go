package rivlet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/hidden-states/constants"
)

// Default field names in Impira-preprocessed rivlets.
const (
	TextField     = "processed_word"
	LocationField = "location"
)

// Document is one rivlet file flattened into parallel word and box slices.
type Document struct {
	ID    string // path relative to the rivlets directory
	Path  string
	Words []string
	Boxes []Box
}

// Options controls which fields are read and whether boxes are normalized.
type Options struct {
	TextField          string
	LocationField      string
	PositionProcessing bool
}

// Reader loads rivlet documents from disk.
type Reader struct {
	opts   Options
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewReader compiles the record schema for the configured field names.
func NewReader(opts Options, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(opts.TextField) == "" || strings.TrimSpace(opts.LocationField) == "" {
		return nil, errors.New("text and location field names are required")
	}
	schema, err := compileSchema(BuildFileJSONSchema(opts.TextField, opts.LocationField))
	if err != nil {
		return nil, err
	}
	return &Reader{opts: opts, schema: schema, logger: logger}, nil
}

// ReadDir walks dir in lexical order, skipping hidden entries, and reads every
// rivlet file it finds. The first invalid file aborts the walk.
func (r *Reader) ReadDir(ctx context.Context, dir string) ([]Document, error) {
	start := time.Now()
	var docs []Document
	var skipped int

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != dir && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.RivletExtensions[ext]; !ok {
			skipped++
			return nil
		}

		doc, err := r.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		doc.ID = DocumentID(rel)
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read rivlets: %w", err)
	}

	r.logger.Info("rivlet.read_dir",
		"dir", dir,
		"documents", len(docs),
		"skipped_files", skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return docs, nil
}

// ReadFile validates and flattens one rivlet file.
func (r *Reader) ReadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return Document{}, fmt.Errorf("%s: decode: %w", path, err)
	}
	if err := r.schema.Validate(generic); err != nil {
		return Document{}, fmt.Errorf("%s: json does not match schema: %w", path, err)
	}

	records, err := r.records(raw)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}

	doc := Document{ID: DocumentID(filepath.Base(path)), Path: path}
	for i, rec := range records {
		var word string
		if err := json.Unmarshal(rec[r.opts.TextField], &word); err != nil {
			return Document{}, fmt.Errorf("%s: record %d: %s: %w", path, i, r.opts.TextField, err)
		}
		if strings.TrimSpace(word) == "" {
			continue
		}
		coords, err := parseLocation(rec[r.opts.LocationField])
		if err != nil {
			return Document{}, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		box := rawBox(coords)
		if r.opts.PositionProcessing {
			box = NormalizeBox(coords)
		}
		doc.Words = append(doc.Words, word)
		doc.Boxes = append(doc.Boxes, box)
	}
	if len(doc.Words) == 0 {
		r.logger.Warn("rivlet.empty_document", "path", path, "records", len(records))
	}
	return doc, nil
}

func (r *Reader) records(raw []byte) ([]map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var recs []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	var wrapped struct {
		Rivlets []map[string]json.RawMessage `json:"rivlets"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Rivlets, nil
}

// DocumentID turns a relative path into a slash-separated ID. Bytes that are
// not valid UTF-8 become U+FFFD so the ID survives JSON and pickle.
func DocumentID(rel string) string {
	return strings.ToValidUTF8(filepath.ToSlash(rel), "\uFFFD")
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
