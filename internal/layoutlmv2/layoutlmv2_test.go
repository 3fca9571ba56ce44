package layoutlmv2

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/hidden-states/internal/inference"
)

type fakeServer struct {
	requests []inference.OutputsRequest
	err      error
}

func (f *fakeServer) Outputs(_ context.Context, req inference.OutputsRequest) (*inference.OutputsResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &inference.OutputsResponse{}
	for _, img := range req.Images {
		resp.Outputs = append(resp.Outputs, inference.HiddenState{
			ID:          img.ID,
			NumTokens:   1,
			HiddenState: [][]float32{{0.25, 0.75}},
		})
	}
	return resp, nil
}

// fakeRunner writes a PNG stand-in to the converter's output path.
type fakeRunner struct {
	calls []string
	err   error
}

func (r *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, name)
	if r.err != nil {
		return nil, []byte("no decoder"), r.err
	}
	out := args[len(args)-1]
	return nil, nil, os.WriteFile(out, []byte("png-bytes"), 0o644)
}

func imagesDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("img:"+n), 0o644))
	}
	return dir
}

func TestCollectImagesDefaults(t *testing.T) {
	dir := imagesDir(t, "b.png", "a.JPG", "scan.tiff", "notes.txt", "photo.heic", ".thumbs/x.png", "sub/c.tif")

	files, err := collectImages(dir, "")
	require.NoError(t, err)

	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"a.JPG", "b.png", "scan.tiff", "sub/c.tif"}, ids)
}

func TestCollectImagesFileType(t *testing.T) {
	dir := imagesDir(t, "a.png", "b.tif", "c.TIF")

	files, err := collectImages(dir, ".TIF")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b.tif", files[0].ID)
	assert.Equal(t, "c.TIF", files[1].ID)
}

func TestCollectImagesInvalidUTF8Name(t *testing.T) {
	dir := imagesDir(t, "page_\xff.png")

	files, err := collectImages(dir, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "page_\uFFFD.png", files[0].ID)
	assert.FileExists(t, files[0].Path)
}

func TestGetOutputsBatches(t *testing.T) {
	dir := imagesDir(t, "p1.png", "p2.png", "p3.png", "p4.png", "p5.png")
	srv := &fakeServer{}
	m := New(srv, Config{BatchSize: 2}, nil)

	out := filepath.Join(t.TempDir(), "layoutlmv2_noft_encodings.pkl")
	table, err := m.GetOutputs(context.Background(), dir, out, OutputOptions{FileType: "png"})
	require.NoError(t, err)

	require.Len(t, srv.requests, 3)
	assert.Len(t, srv.requests[0].Images, 2)
	assert.Len(t, srv.requests[2].Images, 1)
	assert.Equal(t, BaseModel, srv.requests[0].Model)
	assert.Empty(t, srv.requests[0].ModelPath)

	img := srv.requests[0].Images[0]
	assert.Equal(t, "p1.png", img.ID)
	assert.Equal(t, "png", img.Format)
	data, err := base64.StdEncoding.DecodeString(img.Data)
	require.NoError(t, err)
	assert.Equal(t, "img:p1.png", string(data))

	assert.Equal(t, 5, table.Len())
	assert.Equal(t, BaseModel, table.Model)
	assert.FileExists(t, out)
}

func TestGetOutputsFineTuned(t *testing.T) {
	dir := imagesDir(t, "p1.png")
	srv := &fakeServer{}
	m := New(srv, Config{}, nil)

	table, err := m.GetOutputs(context.Background(), dir, filepath.Join(t.TempDir(), "out.pkl"), OutputOptions{
		Model: "models/fine_tune_related_v2",
	})
	require.NoError(t, err)
	assert.Equal(t, "models/fine_tune_related_v2", srv.requests[0].ModelPath)
	assert.Equal(t, "models/fine_tune_related_v2", table.Model)
}

func TestGetOutputsNoImages(t *testing.T) {
	dir := imagesDir(t, "a.png")
	_, err := New(&fakeServer{}, Config{}, nil).GetOutputs(context.Background(), dir, "unused.pkl", OutputOptions{FileType: "jpg"})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestGetOutputsPropagatesServerError(t *testing.T) {
	boom := errors.New("ocr engine crashed")
	dir := imagesDir(t, "a.png")
	out := filepath.Join(t.TempDir(), "out.pkl")

	_, err := New(&fakeServer{err: boom}, Config{}, nil).GetOutputs(context.Background(), dir, out, OutputOptions{})
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, out)
}

func TestGetOutputsConvertsHEIC(t *testing.T) {
	dir := imagesDir(t, "photo.heic")
	cache := filepath.Join(t.TempDir(), "cache")
	srv := &fakeServer{}
	runner := &fakeRunner{}

	m := New(srv, Config{HeicConverter: "magick", ArtifactCacheDir: cache}, nil)
	m.runner = runner

	for i := 0; i < 2; i++ {
		_, err := m.GetOutputs(context.Background(), dir, filepath.Join(t.TempDir(), "out.pkl"), OutputOptions{FileType: "heic"})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"magick"}, runner.calls, "second run uses the cached PNG")
	img := srv.requests[1].Images[0]
	assert.Equal(t, "png", img.Format)
	data, _ := base64.StdEncoding.DecodeString(img.Data)
	assert.Equal(t, "png-bytes", string(data))
}

func TestHEICConverterFailure(t *testing.T) {
	dir := imagesDir(t, "photo.heic")
	m := New(&fakeServer{}, Config{HeicConverter: "sips"}, nil)
	m.runner = &fakeRunner{err: errors.New("exit status 1")}

	_, err := m.GetOutputs(context.Background(), dir, filepath.Join(t.TempDir(), "out.pkl"), OutputOptions{FileType: "heic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sips failed")
	assert.Contains(t, err.Error(), "no decoder")
}

func TestHEICUnknownConverter(t *testing.T) {
	dir := imagesDir(t, "photo.heif")
	m := New(&fakeServer{}, Config{HeicConverter: "gimp"}, nil)
	m.runner = &fakeRunner{}

	_, err := m.GetOutputs(context.Background(), dir, filepath.Join(t.TempDir(), "out.pkl"), OutputOptions{FileType: "heif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEIC not supported")
}
