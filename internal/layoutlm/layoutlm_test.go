package layoutlm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/hidden-states/internal/inference"
	"github.com/joseph-ayodele/hidden-states/internal/rivlet"
)

type fakeServer struct {
	encodeCalls  int
	batches      [][]string
	modelPaths   []string
	encodeErr    error
	hiddenErr    error
	lastEncodeRq inference.EncodeRequest
}

func (f *fakeServer) Encode(_ context.Context, req inference.EncodeRequest) (*inference.EncodeResponse, error) {
	f.encodeCalls++
	f.lastEncodeRq = req
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	resp := &inference.EncodeResponse{}
	for _, d := range req.Documents {
		ids := make([]int, len(d.Words))
		mask := make([]int, len(d.Words))
		for i := range d.Words {
			ids[i], mask[i] = 1000+i, 1
		}
		resp.Encodings = append(resp.Encodings, inference.Encoding{ID: d.ID, InputIDs: ids, AttentionMask: mask, BBox: d.Boxes})
	}
	return resp, nil
}

func (f *fakeServer) HiddenStates(_ context.Context, req inference.HiddenStatesRequest) (*inference.HiddenStatesResponse, error) {
	if f.hiddenErr != nil {
		return nil, f.hiddenErr
	}
	var ids []string
	resp := &inference.HiddenStatesResponse{}
	for _, e := range req.Encodings {
		ids = append(ids, e.ID)
		state := make([][]float32, len(e.InputIDs))
		for i := range state {
			state[i] = []float32{float32(i), 0.5}
		}
		resp.HiddenStates = append(resp.HiddenStates, inference.HiddenState{ID: e.ID, NumTokens: len(e.InputIDs), HiddenState: state})
	}
	f.batches = append(f.batches, ids)
	f.modelPaths = append(f.modelPaths, req.ModelPath)
	return resp, nil
}

func rivletsDir(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		body := fmt.Sprintf(`[{"processed_word": "w%d", "location": [0.1, 0.1, 0.2, 0.2]}]`, i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("doc%02d.json", i)), []byte(body), 0o644))
	}
	return dir
}

func TestHiddenStateDefaultBatchSize(t *testing.T) {
	srv := &fakeServer{}
	m := New(srv, Config{}, nil)
	ctx := context.Background()

	docs, err := m.ProcessJSON(ctx, rivletsDir(t, 10), rivlet.TextField, rivlet.LocationField, true)
	require.NoError(t, err)
	require.Len(t, docs, 10)
	assert.Equal(t, rivlet.Box{100, 100, 200, 200}, docs[0].Boxes[0])

	_, err = m.Encodings(ctx)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "layoutlm_noft_encodings.pkl")
	table, err := m.HiddenState(ctx, out, HiddenStateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, srv.encodeCalls, "encodings are cached")
	assert.Equal(t, BaseModel, srv.lastEncodeRq.Model)
	require.Len(t, srv.batches, 2)
	assert.Len(t, srv.batches[0], DefaultBatchSize)
	assert.Len(t, srv.batches[1], 2)
	assert.Equal(t, []string{"", ""}, srv.modelPaths)

	assert.Equal(t, BaseModel, table.Model)
	assert.Equal(t, 10, table.Len())
	assert.Equal(t, "doc00.json", table.Rows[0].Document)
	assert.FileExists(t, out)
}

func TestHiddenStateExplicitBatchAndModelPath(t *testing.T) {
	srv := &fakeServer{}
	m := New(srv, Config{BatchSize: 8}, nil)
	ctx := context.Background()

	_, err := m.ProcessJSON(ctx, rivletsDir(t, 5), rivlet.TextField, rivlet.LocationField, true)
	require.NoError(t, err)

	two := 2
	table, err := m.HiddenState(ctx, filepath.Join(t.TempDir(), "out.pkl"), HiddenStateOptions{
		BatchSize: &two,
		ModelPath: "models/fine_tune_related",
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"doc00.json", "doc01.json"}, {"doc02.json", "doc03.json"}, {"doc04.json"}}, srv.batches)
	assert.Equal(t, "models/fine_tune_related", srv.modelPaths[0])
	assert.Equal(t, "models/fine_tune_related", table.Model)
	assert.Equal(t, "models/fine_tune_related", table.ModelPath)
}

func TestHiddenStateRejectsBadBatchSize(t *testing.T) {
	m := New(&fakeServer{}, Config{}, nil)
	zero := 0
	_, err := m.HiddenState(context.Background(), "unused.pkl", HiddenStateOptions{BatchSize: &zero})
	assert.Error(t, err)
}

func TestEncodingsRequiresProcessJSON(t *testing.T) {
	m := New(&fakeServer{}, Config{}, nil)
	_, err := m.Encodings(context.Background())
	assert.ErrorIs(t, err, ErrNotProcessed)
}

func TestHiddenStatePropagatesServerErrors(t *testing.T) {
	boom := errors.New("model load failed")
	srv := &fakeServer{hiddenErr: boom}
	m := New(srv, Config{}, nil)
	ctx := context.Background()
	_, err := m.ProcessJSON(ctx, rivletsDir(t, 1), rivlet.TextField, rivlet.LocationField, true)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.pkl")
	_, err = m.HiddenState(ctx, out, HiddenStateOptions{})
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, out)
}

func TestMatchIDs(t *testing.T) {
	batch := []inference.Encoding{{ID: "a"}, {ID: "b"}}
	assert.NoError(t, matchIDs(batch, []inference.HiddenState{{ID: "a"}, {ID: "b"}}))
	assert.Error(t, matchIDs(batch, []inference.HiddenState{{ID: "a"}}))
	assert.Error(t, matchIDs(batch, []inference.HiddenState{{ID: "b"}, {ID: "a"}}))
}

func TestProcessJSONResetsEncodings(t *testing.T) {
	srv := &fakeServer{}
	m := New(srv, Config{}, nil)
	ctx := context.Background()

	_, err := m.ProcessJSON(ctx, rivletsDir(t, 1), rivlet.TextField, rivlet.LocationField, true)
	require.NoError(t, err)
	_, err = m.Encodings(ctx)
	require.NoError(t, err)

	_, err = m.ProcessJSON(ctx, rivletsDir(t, 3), rivlet.TextField, rivlet.LocationField, true)
	require.NoError(t, err)
	enc, err := m.Encodings(ctx)
	require.NoError(t, err)
	assert.Len(t, enc, 3)
	assert.Equal(t, 2, srv.encodeCalls)
}
