package rivlet

import (
	"encoding/json"
	"fmt"
	"math"
)

// GridSize is the coordinate range LayoutLM's 2-D position embeddings expect.
const GridSize = 1000

// Box is [x0, y0, x1, y1].
type Box [4]int

type rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// parseLocation accepts [x0, y0, x1, y1] or {left, top, width, height}.
func parseLocation(raw json.RawMessage) ([4]float64, error) {
	var coords [4]float64
	if len(raw) > 0 && raw[0] == '[' {
		var arr []float64
		if err := json.Unmarshal(raw, &arr); err != nil {
			return coords, fmt.Errorf("location: %w", err)
		}
		if len(arr) != 4 {
			return coords, fmt.Errorf("location: want 4 coordinates, got %d", len(arr))
		}
		copy(coords[:], arr)
		return coords, nil
	}
	var r rect
	if err := json.Unmarshal(raw, &r); err != nil {
		return coords, fmt.Errorf("location: %w", err)
	}
	return [4]float64{r.Left, r.Top, r.Left + r.Width, r.Top + r.Height}, nil
}

// NormalizeBox maps coordinates onto the 0..GridSize grid. Page-relative
// coordinates (all within [0, 1]) are scaled; anything else is clamped.
// The result always has x0 <= x1 and y0 <= y1.
func NormalizeBox(c [4]float64) Box {
	scale := 1.0
	if isFractional(c) {
		scale = GridSize
	}
	var b Box
	for i, v := range c {
		b[i] = int(clamp(math.Round(v*scale), 0, GridSize))
	}
	return ordered(b)
}

// rawBox rounds coordinates without scaling, for position_processing=false.
// Values outside the int32 range are saturated.
func rawBox(c [4]float64) Box {
	var b Box
	for i, v := range c {
		b[i] = int(clamp(math.Round(v), math.MinInt32, math.MaxInt32))
	}
	return ordered(b)
}

func ordered(b Box) Box {
	if b[2] < b[0] {
		b[0], b[2] = b[2], b[0]
	}
	if b[3] < b[1] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}

func isFractional(c [4]float64) bool {
	for _, v := range c {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
