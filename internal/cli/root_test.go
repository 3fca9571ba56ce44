package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/hidden-states/internal/common"
	"github.com/joseph-ayodele/hidden-states/internal/dispatch"
	"github.com/joseph-ayodele/hidden-states/internal/hiddenstate"
	"github.com/joseph-ayodele/hidden-states/internal/inference"
	"github.com/joseph-ayodele/hidden-states/internal/layoutlm"
	"github.com/joseph-ayodele/hidden-states/internal/layoutlmv2"
	"github.com/joseph-ayodele/hidden-states/internal/rivlet"
)

type recorder struct {
	calls     []string
	batchSize *int
	v2        layoutlmv2.OutputOptions
	err       error
}

func sampleTable() *hiddenstate.Table {
	return &hiddenstate.Table{Rows: []hiddenstate.Row{
		{Document: "form.json", Tokens: 2, HiddenState: [][]float32{{1, 2}, {3, 4}}},
	}}
}

type fakeToken struct{ r *recorder }

func (f fakeToken) ProcessJSON(context.Context, string, string, string, bool) ([]rivlet.Document, error) {
	f.r.calls = append(f.r.calls, "ProcessJSON")
	return nil, f.r.err
}

func (f fakeToken) Encodings(context.Context) ([]inference.Encoding, error) {
	f.r.calls = append(f.r.calls, "Encodings")
	return nil, nil
}

func (f fakeToken) HiddenState(_ context.Context, outpath string, opts layoutlm.HiddenStateOptions) (*hiddenstate.Table, error) {
	f.r.calls = append(f.r.calls, "HiddenState")
	f.r.batchSize = opts.BatchSize
	t := sampleTable()
	return t, hiddenstate.WritePickle(outpath, t)
}

type fakeImage struct{ r *recorder }

func (f fakeImage) GetOutputs(_ context.Context, _, outpath string, opts layoutlmv2.OutputOptions) (*hiddenstate.Table, error) {
	f.r.calls = append(f.r.calls, "GetOutputs")
	f.r.v2 = opts
	if f.r.err != nil {
		return nil, f.r.err
	}
	t := sampleTable()
	return t, hiddenstate.WritePickle(outpath, t)
}

type fixture struct {
	rec        *recorder
	cfg        *common.Config
	rivlets    string
	embeddings string
	models     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := common.LoadConfig()
	cfg.LogLevel = "error"
	cfg.Inference.GRPCAddr = ""
	cfg.Ledger.DSN = ""
	return &fixture{
		rec:        &recorder{},
		cfg:        cfg,
		rivlets:    t.TempDir(),
		embeddings: t.TempDir(),
		models:     t.TempDir(),
	}
}

func (fx *fixture) execute(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(Deps{
		Config: fx.cfg,
		Stdout: &stdout,
		Stderr: &stderr,
		NewFactory: func(*common.Config, *slog.Logger) dispatch.Factory {
			return dispatch.Factory{
				NewTokenModel: func() dispatch.TokenModel { return fakeToken{fx.rec} },
				NewImageModel: func() dispatch.ImageModel { return fakeImage{fx.rec} },
			}
		},
	})
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (fx *fixture) dirArgs(mode string, extra ...string) []string {
	return append([]string{mode, "-r", fx.rivlets, "-e", fx.embeddings, "-m", fx.models}, extra...)
}

func TestEveryModeWritesItsPickle(t *testing.T) {
	files := map[string]string{
		"vanilla_lmv1":             "layoutlm_noft_encodings.pkl",
		"finetuned_lmv1_related":   "layoutlm_ft_encodings.pkl",
		"finetuned_lmv1_unrelated": "layoutlm_ft_ur_encodings.pkl",
		"vanilla_lmv2":             "layoutlmv2_noft_encodings.pkl",
		"finetuned_lmv2_related":   "layoutlmv2_ft_encodings.pkl",
	}
	for mode, file := range files {
		t.Run(mode, func(t *testing.T) {
			fx := newFixture(t)
			out, err := fx.execute(fx.dirArgs(mode)...)
			require.NoError(t, err)

			entries, err := os.ReadDir(fx.embeddings)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, file, entries[0].Name())
			assert.Contains(t, out, "form.json")
			assert.Contains(t, out, "[1 rows x 2 dims]")
		})
	}
}

func TestInvalidArgumentsInvokeNothing(t *testing.T) {
	tests := []struct {
		name string
		args func(fx *fixture) []string
	}{
		{"unknown mode", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv3") }},
		{"no mode", func(fx *fixture) []string { return []string{"-r", fx.rivlets} }},
		{"two modes", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv1", "vanilla_lmv2") }},
		{"missing rivlets dir", func(fx *fixture) []string { return []string{"vanilla_lmv1", "-e", fx.embeddings, "-m", fx.models} }},
		{"nonexistent rivlets dir", func(fx *fixture) []string {
			return []string{"vanilla_lmv1", "-r", filepath.Join(fx.rivlets, "nope"), "-e", fx.embeddings, "-m", fx.models}
		}},
		{"nonexistent embedding dir", func(fx *fixture) []string {
			return []string{"vanilla_lmv1", "-r", fx.rivlets, "-e", filepath.Join(fx.embeddings, "nope"), "-m", fx.models}
		}},
		{"nonexistent models dir", func(fx *fixture) []string {
			return []string{"finetuned_lmv1_related", "-r", fx.rivlets, "-e", fx.embeddings, "-m", filepath.Join(fx.models, "nope")}
		}},
		{"non-integer batch size", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv1", "-b", "eight") }},
		{"zero batch size", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv1", "-b", "0") }},
		{"unknown flag", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv1", "--epochs", "3") }},
		{"bad log level", func(fx *fixture) []string { return fx.dirArgs("vanilla_lmv1", "--log-level", "chatty") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			_, err := fx.execute(tt.args(fx)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Equal(t, common.ExitUsage, common.ExitCode(err))
			assert.Empty(t, fx.rec.calls)

			entries, _ := os.ReadDir(fx.embeddings)
			assert.Empty(t, entries)
		})
	}
}

func TestFileIsNotADirectory(t *testing.T) {
	fx := newFixture(t)
	file := filepath.Join(fx.rivlets, "form.json")
	require.NoError(t, os.WriteFile(file, []byte("[]"), 0o644))

	_, err := fx.execute("vanilla_lmv1", "-r", fx.rivlets, "-e", file, "-m", fx.models)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestBatchSizeForwarding(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.execute(fx.dirArgs("vanilla_lmv1")...)
	require.NoError(t, err)
	assert.Nil(t, fx.rec.batchSize)
	assert.Equal(t, []string{"ProcessJSON", "Encodings", "HiddenState"}, fx.rec.calls)

	fx = newFixture(t)
	_, err = fx.execute(fx.dirArgs("finetuned_lmv1_related", "--batch-size", "3")...)
	require.NoError(t, err)
	require.NotNil(t, fx.rec.batchSize)
	assert.Equal(t, 3, *fx.rec.batchSize)
}

func TestLayoutLMv2Flags(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.execute(fx.dirArgs("finetuned_lmv2_related", "-f", "png")...)
	require.NoError(t, err)
	assert.Equal(t, layoutlmv2.OutputOptions{
		Model:    filepath.Join(fx.models, "fine_tune_related_v2"),
		FileType: "png",
	}, fx.rec.v2)
}

func TestWrapperFailureExitsOne(t *testing.T) {
	fx := newFixture(t)
	fx.rec.err = errors.New("tesseract not found")

	_, err := fx.execute(fx.dirArgs("vanilla_lmv2")...)
	require.Error(t, err)
	assert.ErrorIs(t, err, fx.rec.err)
	assert.Equal(t, common.ExitFailure, common.ExitCode(err))
}

func TestXLSXSummary(t *testing.T) {
	fx := newFixture(t)
	path := filepath.Join(t.TempDir(), "summary.xlsx")

	_, err := fx.execute(fx.dirArgs("vanilla_lmv1", "--xlsx", path)...)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestRunsLedger(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Ledger.DSN = "sqlite://" + filepath.Join(t.TempDir(), "runs.db")

	_, err := fx.execute(fx.dirArgs("vanilla_lmv1")...)
	require.NoError(t, err)

	fx.rec.err = errors.New("ocr engine crashed")
	_, err = fx.execute(fx.dirArgs("vanilla_lmv2")...)
	require.Error(t, err)

	out, err := fx.execute("runs", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "vanilla_lmv1")
	assert.Contains(t, out, "SUCCEEDED")
	assert.Contains(t, out, "vanilla_lmv2")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "ocr engine crashed")
}

func TestRunsWithoutLedger(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.execute("runs")
	require.Error(t, err)
	assert.Equal(t, common.ExitUsage, common.ExitCode(err))
	assert.Contains(t, err.Error(), "RUNS_DB_URL")
}

func TestLedgerFailureDoesNotFailRun(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.Ledger.DSN = "sqlite://" + filepath.Join(t.TempDir(), "missing", "dir", "runs.db")

	_, err := fx.execute(fx.dirArgs("vanilla_lmv1")...)
	assert.NoError(t, err)
}
