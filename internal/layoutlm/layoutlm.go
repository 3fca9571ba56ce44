// Package layoutlm wraps LayoutLM (v1) hidden-state extraction: rivlet
// ingestion, tokenization on the model server, batched forward passes and
// pickling of the result.
package layoutlm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/hidden-states/internal/hiddenstate"
	"github.com/joseph-ayodele/hidden-states/internal/inference"
	"github.com/joseph-ayodele/hidden-states/internal/rivlet"
)

const (
	// BaseModel is the pretrained checkpoint used when no model path is given.
	BaseModel = "microsoft/layoutlm-base-uncased"

	DefaultBatchSize = 8
)

var ErrNotProcessed = errors.New("layoutlm: ProcessJSON has not been called")

// Inferencer is the part of the model server LayoutLM needs.
type Inferencer interface {
	Encode(ctx context.Context, req inference.EncodeRequest) (*inference.EncodeResponse, error)
	HiddenStates(ctx context.Context, req inference.HiddenStatesRequest) (*inference.HiddenStatesResponse, error)
}

type Config struct {
	BaseModel string
	BatchSize int
}

// HiddenStateOptions are the optional arguments of HiddenState. A nil
// BatchSize means the configured default applies; an empty ModelPath means
// the base model.
type HiddenStateOptions struct {
	BatchSize *int
	ModelPath string
}

// LayoutLM holds documents and encodings between calls. Not safe for concurrent use.
type LayoutLM struct {
	client Inferencer
	cfg    Config
	logger *slog.Logger

	docs      []rivlet.Document
	processed bool
	encodings []inference.Encoding
}

func New(client Inferencer, cfg Config, logger *slog.Logger) *LayoutLM {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseModel == "" {
		cfg.BaseModel = BaseModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &LayoutLM{client: client, cfg: cfg, logger: logger.With("component", "layoutlm")}
}

// ProcessJSON reads every rivlet file under dir, taking words from textField
// and boxes from locationField. Previous documents and encodings are dropped.
func (m *LayoutLM) ProcessJSON(ctx context.Context, dir, textField, locationField string, positionProcessing bool) ([]rivlet.Document, error) {
	reader, err := rivlet.NewReader(rivlet.Options{
		TextField:          textField,
		LocationField:      locationField,
		PositionProcessing: positionProcessing,
	}, m.logger)
	if err != nil {
		return nil, err
	}
	docs, err := reader.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	m.docs = docs
	m.processed = true
	m.encodings = nil
	return docs, nil
}

// Encodings tokenizes the processed documents on the model server. The result is cached.
func (m *LayoutLM) Encodings(ctx context.Context) ([]inference.Encoding, error) {
	if !m.processed {
		return nil, ErrNotProcessed
	}
	if m.encodings != nil {
		return m.encodings, nil
	}

	req := inference.EncodeRequest{Model: m.cfg.BaseModel, Documents: make([]inference.EncodeDocument, 0, len(m.docs))}
	for _, d := range m.docs {
		boxes := make([][4]int, len(d.Boxes))
		for i, b := range d.Boxes {
			boxes[i] = b
		}
		req.Documents = append(req.Documents, inference.EncodeDocument{ID: d.ID, Words: d.Words, Boxes: boxes})
	}

	start := time.Now()
	resp, err := m.client.Encode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(resp.Encodings) != len(m.docs) {
		return nil, fmt.Errorf("encode: got %d encodings for %d documents", len(resp.Encodings), len(m.docs))
	}
	m.logger.Info("layoutlm.encoded", "documents", len(m.docs), "elapsed_ms", time.Since(start).Milliseconds())

	m.encodings = resp.Encodings
	return m.encodings, nil
}

// HiddenState runs the forward pass in batches, writes the pickled table to
// outpath and returns it.
func (m *LayoutLM) HiddenState(ctx context.Context, outpath string, opts HiddenStateOptions) (*hiddenstate.Table, error) {
	batchSize := m.cfg.BatchSize
	if opts.BatchSize != nil {
		if *opts.BatchSize < 1 {
			return nil, fmt.Errorf("batch size must be positive, got %d", *opts.BatchSize)
		}
		batchSize = *opts.BatchSize
	}

	encodings, err := m.Encodings(ctx)
	if err != nil {
		return nil, err
	}

	model := m.cfg.BaseModel
	if opts.ModelPath != "" {
		model = opts.ModelPath
	}
	table := &hiddenstate.Table{Model: model, ModelPath: opts.ModelPath}

	start := time.Now()
	for lo := 0; lo < len(encodings); lo += batchSize {
		hi := min(lo+batchSize, len(encodings))
		batch := encodings[lo:hi]

		resp, err := m.client.HiddenStates(ctx, inference.HiddenStatesRequest{
			Model:     m.cfg.BaseModel,
			ModelPath: opts.ModelPath,
			Encodings: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("hidden states for documents %d-%d: %w", lo, hi-1, err)
		}
		if err := matchIDs(batch, resp.HiddenStates); err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, hiddenstate.FromInference(resp.HiddenStates)...)
		m.logger.Debug("layoutlm.batch_done", "from", lo, "to", hi-1)
	}

	if err := hiddenstate.WritePickle(outpath, table); err != nil {
		return nil, fmt.Errorf("write %s: %w", outpath, err)
	}
	m.logger.Info("layoutlm.hidden_states_written",
		"outpath", outpath,
		"model", model,
		"rows", table.Len(),
		"batch_size", batchSize,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

func matchIDs(batch []inference.Encoding, states []inference.HiddenState) error {
	if len(states) != len(batch) {
		return fmt.Errorf("hidden states: got %d results for %d documents", len(states), len(batch))
	}
	for i := range batch {
		if states[i].ID != batch[i].ID {
			return fmt.Errorf("hidden states: result %d is for %q, want %q", i, states[i].ID, batch[i].ID)
		}
	}
	return nil
}
