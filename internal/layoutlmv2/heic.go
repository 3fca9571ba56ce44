package layoutlmv2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// heicToPNG converts a HEIC/HEIF image with the configured converter
// (heif-convert | magick | sips) and returns the PNG bytes. When cacheDir is
// set the PNG is kept as {cacheDir}/{sha256 of the source}.png and reused.
func heicToPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in string, src []byte, cacheDir string) ([]byte, error) {
	sum := sha256.Sum256(src)
	hashHex := hex.EncodeToString(sum[:])

	var cached string
	if cacheDir != "" {
		cached = filepath.Join(cacheDir, hashHex+".png")
		if b, err := os.ReadFile(cached); err == nil {
			logger.Debug("using cached heic->png", "cache", cached)
			return b, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "hs-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	out := filepath.Join(tmpDir, "page.png")

	var errb []byte
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", logger, in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", logger, in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", logger, "-s", "format", "png", in, "--out", out)
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", converter, err, strings.TrimSpace(string(errb)))
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	if cached != "" {
		if err := os.WriteFile(cached, png, 0o644); err != nil {
			logger.Warn("failed to cache heic->png", "cache", cached, "error", err)
		} else {
			logger.Debug("cached heic->png", "cache", cached)
		}
	}
	return png, nil
}
