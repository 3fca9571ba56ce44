package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/hidden-states/constants"
	"github.com/joseph-ayodele/hidden-states/internal/common"
	"github.com/joseph-ayodele/hidden-states/internal/hiddenstate"
	"github.com/joseph-ayodele/hidden-states/internal/inference"
	"github.com/joseph-ayodele/hidden-states/internal/layoutlm"
	"github.com/joseph-ayodele/hidden-states/internal/layoutlmv2"
	"github.com/joseph-ayodele/hidden-states/internal/rivlet"
)

// Invocation is one validated request to extract hidden states.
type Invocation struct {
	Mode         constants.Mode
	RivletsDir   string
	EmbeddingDir string
	ModelsDir    string
	BatchSize    *int
	FileType     string
}

// TokenModel is wrapper A (LayoutLM v1).
type TokenModel interface {
	ProcessJSON(ctx context.Context, dir, textField, locationField string, positionProcessing bool) ([]rivlet.Document, error)
	Encodings(ctx context.Context) ([]inference.Encoding, error)
	HiddenState(ctx context.Context, outpath string, opts layoutlm.HiddenStateOptions) (*hiddenstate.Table, error)
}

// ImageModel is wrapper B (LayoutLMv2).
type ImageModel interface {
	GetOutputs(ctx context.Context, dir, outpath string, opts layoutlmv2.OutputOptions) (*hiddenstate.Table, error)
}

// Factory constructs a fresh wrapper per run.
type Factory struct {
	NewTokenModel func() TokenModel
	NewImageModel func() ImageModel
}

// Result describes what a run produced.
type Result struct {
	Spec       ModeSpec
	OutputPath string
	ModelPath  string
	Table      *hiddenstate.Table
	Elapsed    time.Duration
}

type Dispatcher struct {
	factory Factory
	out     io.Writer
	logger  *slog.Logger
}

// NewDispatcher prints result tables to out.
func NewDispatcher(factory Factory, out io.Writer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{factory: factory, out: out, logger: logger}
}

// Run executes the mode selected by inv, writes its pickle and prints the table.
// Wrapper errors are returned wrapped but otherwise untouched.
func (d *Dispatcher) Run(ctx context.Context, inv Invocation) (*Result, error) {
	spec, ok := Lookup(string(inv.Mode))
	if !ok {
		return nil, common.InvalidArgument("unknown model %q", inv.Mode)
	}

	res := &Result{
		Spec:       spec,
		OutputPath: spec.OutputPath(inv.EmbeddingDir),
		ModelPath:  spec.ModelPath(inv.ModelsDir),
	}
	d.logger.Info("dispatch.start",
		"mode", spec.Mode,
		"family", spec.Family.String(),
		"rivlets_dir", inv.RivletsDir,
		"outpath", res.OutputPath,
		"model_path", res.ModelPath,
	)

	start := time.Now()
	var err error
	switch spec.Family {
	case FamilyLayoutLM:
		res.Table, err = d.runLayoutLM(ctx, inv, res)
	case FamilyLayoutLMv2:
		res.Table, err = d.runLayoutLMv2(ctx, inv, res)
	default:
		err = fmt.Errorf("mode %s has no wrapper", spec.Mode)
	}
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("%s: %w", spec.Mode, err)
	}

	if err := hiddenstate.Render(d.out, res.Table); err != nil {
		return res, fmt.Errorf("print table: %w", err)
	}
	d.logger.Info("dispatch.done",
		"mode", spec.Mode,
		"outpath", res.OutputPath,
		"rows", res.Table.Len(),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (d *Dispatcher) runLayoutLM(ctx context.Context, inv Invocation, res *Result) (*hiddenstate.Table, error) {
	m := d.factory.NewTokenModel()
	if _, err := m.ProcessJSON(ctx, inv.RivletsDir, rivlet.TextField, rivlet.LocationField, true); err != nil {
		return nil, err
	}
	if _, err := m.Encodings(ctx); err != nil {
		return nil, err
	}
	if inv.BatchSize != nil && res.Spec.FineTuned() {
		d.logger.Debug("dispatch.batch_size_fine_tuned", "mode", res.Spec.Mode, "batch_size", *inv.BatchSize)
	}
	return m.HiddenState(ctx, res.OutputPath, layoutlm.HiddenStateOptions{
		BatchSize: inv.BatchSize,
		ModelPath: res.ModelPath,
	})
}

func (d *Dispatcher) runLayoutLMv2(ctx context.Context, inv Invocation, res *Result) (*hiddenstate.Table, error) {
	m := d.factory.NewImageModel()
	return m.GetOutputs(ctx, inv.RivletsDir, res.OutputPath, layoutlmv2.OutputOptions{
		Model:    res.ModelPath,
		FileType: inv.FileType,
	})
}

// NewFactory wires both wrappers to one model-server client.
func NewFactory(client *inference.Client, cfg *common.Config, logger *slog.Logger) Factory {
	return Factory{
		NewTokenModel: func() TokenModel {
			return layoutlm.New(client, layoutlm.Config{BatchSize: cfg.Inference.BatchSize}, logger)
		},
		NewImageModel: func() ImageModel {
			return layoutlmv2.New(client, layoutlmv2.Config{
				BatchSize:        cfg.Images.BatchSize,
				HeicConverter:    cfg.Images.HeicConverter,
				ArtifactCacheDir: cfg.Images.ArtifactCacheDir,
			}, logger)
		},
	}
}
