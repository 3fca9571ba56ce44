// Package cli is the hidden-states command line: argument validation, one
// dispatch per invocation, and the run ledger subcommand.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/hidden-states/constants"
	"github.com/joseph-ayodele/hidden-states/internal/common"
	"github.com/joseph-ayodele/hidden-states/internal/dispatch"
	"github.com/joseph-ayodele/hidden-states/internal/hiddenstate"
	"github.com/joseph-ayodele/hidden-states/internal/inference"
)

const probeTimeout = 5 * time.Second

var logLevels = []string{"debug", "info", "warn", "error"}

// Deps are the collaborators of the command tree. Zero values get defaults.
type Deps struct {
	Config *common.Config
	Stdout io.Writer
	Stderr io.Writer

	// NewFactory builds the wrapper factory for one run. Defaults to wrappers
	// backed by the HTTP model server in Config.Inference.
	NewFactory func(cfg *common.Config, logger *slog.Logger) dispatch.Factory
}

type app struct {
	deps   Deps
	logger *slog.Logger
}

type extractOptions struct {
	rivletsDir   string
	embeddingDir string
	modelsDir    string
	batchSize    int
	fileType     string
	xlsxPath     string
}

// NewRootCommand builds `hidden-states <model> [flags]` with its subcommands.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.Config == nil {
		deps.Config = common.LoadConfig()
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.NewFactory == nil {
		deps.NewFactory = defaultFactory
	}
	a := &app{deps: deps, logger: common.NewLogger(deps.Stderr, deps.Config.LogLevel)}

	var (
		opts     extractOptions
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("hidden-states {%s}", strings.Join(constants.ModeStrings(), ",")),
		Short: "Extract LayoutLM hidden states for a directory of documents",
		Long: `hidden-states runs one of five LayoutLM / LayoutLMv2 configurations over a
directory of rivlet JSON files or page images and writes the resulting hidden
states as a pickled table into the embedding directory.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return common.InvalidArgument("expected exactly one model argument, got %d (choose from %s)",
					len(args), strings.Join(constants.ModeStrings(), ", "))
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("log-level") {
				if err := common.NewValidator().Field("--log-level", logLevel, common.OneOf(logLevels...)).Err(); err != nil {
					return err
				}
				a.deps.Config.LogLevel = logLevel
				a.logger = common.NewLogger(a.deps.Stderr, logLevel)
			}
			return a.deps.Config.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.invocation(args[0], cmd.Flags().Changed("batch-size"))
			if err != nil {
				return err
			}
			return a.extract(cmd.Context(), inv, opts.xlsxPath)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return common.InvalidArgument("%v", err)
	})

	bindExtractFlags(cmd.Flags(), &opts)
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", deps.Config.LogLevel, "log level: "+strings.Join(logLevels, "|"))

	cmd.AddCommand(newRunsCommand(a))
	return cmd
}

func bindExtractFlags(f *pflag.FlagSet, opts *extractOptions) {
	f.SortFlags = false
	f.StringVarP(&opts.rivletsDir, "rivlets-dir", "r", "", "directory of rivlet JSON files or page images (required)")
	f.StringVarP(&opts.embeddingDir, "embedding-dir", "e", "embeddings/", "directory the pickle is written to")
	f.StringVarP(&opts.modelsDir, "models-dir", "m", "models/", "directory holding fine-tuned checkpoints")
	f.IntVarP(&opts.batchSize, "batch-size", "b", 0, "LayoutLM forward-pass batch size (wrapper default when omitted)")
	f.StringVarP(&opts.fileType, "file-type", "f", "", "image extension for LayoutLMv2 modes, e.g. png")
	f.StringVar(&opts.xlsxPath, "xlsx", "", "also write a per-document summary workbook to this path")
}

// invocation validates the parsed arguments. Nothing is constructed before it passes.
func (o extractOptions) invocation(mode string, batchSizeSet bool) (dispatch.Invocation, error) {
	v := common.NewValidator().
		Field("model", mode, common.OneOf(constants.ModeStrings()...)).
		Field("--rivlets-dir", o.rivletsDir, common.Required, common.ExistingDirectory).
		Field("--embedding-dir", o.embeddingDir, common.Required, common.ExistingDirectory).
		Field("--models-dir", o.modelsDir, common.Required, common.ExistingDirectory)

	inv := dispatch.Invocation{
		Mode:         constants.Mode(mode),
		RivletsDir:   o.rivletsDir,
		EmbeddingDir: o.embeddingDir,
		ModelsDir:    o.modelsDir,
		FileType:     o.fileType,
	}
	if batchSizeSet {
		bs := o.batchSize
		v.Field("--batch-size", &bs, common.PositiveInt)
		inv.BatchSize = &bs
	}
	if err := v.Err(); err != nil {
		return dispatch.Invocation{}, err
	}
	return inv, nil
}

func (a *app) extract(ctx context.Context, inv dispatch.Invocation, xlsxPath string) error {
	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID.String())
	logger := a.logger.With("run_id", runID.String())
	cfg := a.deps.Config

	if cfg.Inference.GRPCAddr != "" {
		if err := inference.Probe(ctx, cfg.Inference.GRPCAddr, probeTimeout, logger); err != nil {
			return common.WrapError(err, "model server health")
		}
	}

	started := time.Now()
	res, err := dispatch.NewDispatcher(a.deps.NewFactory(cfg, logger), a.deps.Stdout, logger).Run(ctx, inv)
	a.recordRun(ctx, runID, inv, res, started, err, logger)
	if err != nil {
		return err
	}

	if xlsxPath != "" {
		if err := hiddenstate.WriteXLSX(xlsxPath, res.Table); err != nil {
			return common.WrapError(err, "write xlsx")
		}
		logger.Info("cli.xlsx_written", "path", xlsxPath, "rows", res.Table.Len())
	}
	return nil
}

func defaultFactory(cfg *common.Config, logger *slog.Logger) dispatch.Factory {
	client := inference.NewClient(inference.Config{
		BaseURL: cfg.Inference.BaseURL,
		Token:   cfg.Inference.Token,
		Timeout: cfg.Inference.Timeout,
	}, logger)
	return dispatch.NewFactory(client, cfg, logger)
}
