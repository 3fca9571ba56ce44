// Package layoutlmv2 wraps LayoutLMv2 hidden-state extraction. LayoutLMv2
// reads page images directly; OCR and the forward pass run on the model server.
package layoutlmv2

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/hidden-states/constants"
	"github.com/joseph-ayodele/hidden-states/internal/hiddenstate"
	"github.com/joseph-ayodele/hidden-states/internal/inference"
)

const (
	BaseModel        = "microsoft/layoutlmv2-base-uncased"
	DefaultBatchSize = 4
)

var ErrNoImages = errors.New("layoutlmv2: no matching image files")

// Inferencer is the part of the model server LayoutLMv2 needs.
type Inferencer interface {
	Outputs(ctx context.Context, req inference.OutputsRequest) (*inference.OutputsResponse, error)
}

type Config struct {
	BaseModel        string
	BatchSize        int
	HeicConverter    string
	ArtifactCacheDir string
}

// OutputOptions are the optional arguments of GetOutputs. Empty Model means
// the base checkpoint; empty FileType means the default image extensions.
type OutputOptions struct {
	Model    string
	FileType string
}

type LayoutLMv2 struct {
	client Inferencer
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(client Inferencer, cfg Config, logger *slog.Logger) *LayoutLMv2 {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseModel == "" {
		cfg.BaseModel = BaseModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &LayoutLMv2{client: client, cfg: cfg, runner: execRunner{}, logger: logger.With("component", "layoutlmv2")}
}

// GetOutputs sends every matching image under dir to the model server, writes
// the pickled hidden states to outpath and returns them.
func (m *LayoutLMv2) GetOutputs(ctx context.Context, dir, outpath string, opts OutputOptions) (*hiddenstate.Table, error) {
	files, err := collectImages(dir, opts.FileType)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (file type %q)", ErrNoImages, dir, opts.FileType)
	}

	model := m.cfg.BaseModel
	if opts.Model != "" {
		model = opts.Model
	}
	table := &hiddenstate.Table{Model: model, ModelPath: opts.Model}

	start := time.Now()
	for lo := 0; lo < len(files); lo += m.cfg.BatchSize {
		hi := min(lo+m.cfg.BatchSize, len(files))

		images := make([]inference.Image, 0, hi-lo)
		for _, f := range files[lo:hi] {
			img, err := m.loadImage(ctx, f)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}

		resp, err := m.client.Outputs(ctx, inference.OutputsRequest{
			Model:     m.cfg.BaseModel,
			ModelPath: opts.Model,
			Images:    images,
		})
		if err != nil {
			return nil, fmt.Errorf("outputs for images %d-%d: %w", lo, hi-1, err)
		}
		if len(resp.Outputs) != len(images) {
			return nil, fmt.Errorf("outputs: got %d results for %d images", len(resp.Outputs), len(images))
		}
		for i := range images {
			if resp.Outputs[i].ID != images[i].ID {
				return nil, fmt.Errorf("outputs: result %d is for %q, want %q", i, resp.Outputs[i].ID, images[i].ID)
			}
		}
		table.Rows = append(table.Rows, hiddenstate.FromInference(resp.Outputs)...)
	}

	if err := hiddenstate.WritePickle(outpath, table); err != nil {
		return nil, fmt.Errorf("write %s: %w", outpath, err)
	}
	m.logger.Info("layoutlmv2.outputs_written",
		"outpath", outpath,
		"model", model,
		"images", len(files),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

func (m *LayoutLMv2) loadImage(ctx context.Context, f imageFile) (inference.Image, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return inference.Image{}, err
	}
	format := f.Ext
	if _, ok := constants.HEICExtensions[f.Ext]; ok {
		raw, err = heicToPNG(ctx, m.runner, m.logger, m.cfg.HeicConverter, f.Path, raw, m.cfg.ArtifactCacheDir)
		if err != nil {
			return inference.Image{}, fmt.Errorf("%s: %w", f.Path, err)
		}
		format = "png"
	}
	return inference.Image{
		ID:     f.ID,
		Format: format,
		Data:   base64.StdEncoding.EncodeToString(raw),
	}, nil
}
